package claimstore

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	baseerr "github.com/dimitrisb35/volume-broker/pkg/base/error"
)

func setupStore() *Store {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewStore(logger)
}

func testClaim(id string) *apiV1.Claim {
	return &apiV1.Claim{
		ID:          id,
		Size:        10 * 1 << 30,
		AccessModes: []string{apiV1.ModeRWO},
		State:       apiV1.ClaimPending,
		CreatedAt:   time.Now(),
	}
}

func testVolume(id string, size int64, modes ...string) *apiV1.Volume {
	return &apiV1.Volume{
		ID:          id,
		Size:        size,
		AccessModes: modes,
		State:       apiV1.VolumeAvailable,
		CreatedAt:   time.Now(),
	}
}

func TestStore_ClaimCRUD(t *testing.T) {
	s := setupStore()

	err := s.AddClaim(testClaim("claim-1"))
	assert.Nil(t, err)
	err = s.AddClaim(testClaim("claim-1"))
	assert.ErrorIs(t, err, baseerr.ErrorAlreadyExists)

	claim, version, err := s.GetClaim("claim-1")
	assert.Nil(t, err)
	assert.Equal(t, uint64(1), version)
	assert.Equal(t, apiV1.ClaimPending, claim.State)

	claim.Attempts = 3
	err = s.UpdateClaim(claim, version)
	assert.Nil(t, err)

	// stale version must be rejected
	err = s.UpdateClaim(claim, version)
	assert.ErrorIs(t, err, baseerr.ErrorVersionConflict)

	updated, version, err := s.GetClaim("claim-1")
	assert.Nil(t, err)
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, 3, updated.Attempts)

	err = s.DeleteClaim("claim-1")
	assert.Nil(t, err)
	_, _, err = s.GetClaim("claim-1")
	assert.ErrorIs(t, err, baseerr.ErrorNotFound)
}

func TestStore_SnapshotsAreCopies(t *testing.T) {
	s := setupStore()

	assert.Nil(t, s.AddClaim(testClaim("claim-1")))
	claim, _, err := s.GetClaim("claim-1")
	assert.Nil(t, err)

	// mutating the snapshot must not leak into the store
	claim.State = apiV1.ClaimLost
	claim.AccessModes[0] = apiV1.ModeRWX

	fresh, _, err := s.GetClaim("claim-1")
	assert.Nil(t, err)
	assert.Equal(t, apiV1.ClaimPending, fresh.State)
	assert.Equal(t, []string{apiV1.ModeRWO}, fresh.AccessModes)
}

func TestStore_Bind(t *testing.T) {
	s := setupStore()

	assert.Nil(t, s.AddClaim(testClaim("claim-1")))
	assert.Nil(t, s.AddVolume(testVolume("vol-1", 12*1<<30, apiV1.ModeRWO)))

	err := s.Bind("claim-1", 1, "vol-1", 1)
	assert.Nil(t, err)

	claim, _, err := s.GetClaim("claim-1")
	assert.Nil(t, err)
	assert.Equal(t, apiV1.ClaimBound, claim.State)
	assert.Equal(t, "vol-1", claim.VolumeRef)

	volume, _, err := s.GetVolume("vol-1")
	assert.Nil(t, err)
	assert.Equal(t, apiV1.VolumeBound, volume.State)
	assert.Equal(t, []string{"claim-1"}, volume.ClaimRefs)
}

func TestStore_BindStaleVersionConflicts(t *testing.T) {
	s := setupStore()

	assert.Nil(t, s.AddClaim(testClaim("claim-1")))
	assert.Nil(t, s.AddVolume(testVolume("vol-1", 12*1<<30, apiV1.ModeRWO)))

	err := s.Bind("claim-1", 1, "vol-1", 99)
	assert.ErrorIs(t, err, baseerr.ErrorConcurrentBindConflict)

	// nothing must have changed
	claim, _, _ := s.GetClaim("claim-1")
	assert.Equal(t, apiV1.ClaimPending, claim.State)
	volume, _, _ := s.GetVolume("vol-1")
	assert.Equal(t, apiV1.VolumeAvailable, volume.State)
}

func TestStore_BindExclusive(t *testing.T) {
	s := setupStore()

	assert.Nil(t, s.AddClaim(testClaim("claim-1")))
	assert.Nil(t, s.AddClaim(testClaim("claim-2")))
	assert.Nil(t, s.AddVolume(testVolume("vol-1", 12*1<<30, apiV1.ModeRWO)))

	assert.Nil(t, s.Bind("claim-1", 1, "vol-1", 1))

	// RWO volume is held exclusively
	_, version, _ := s.GetVolume("vol-1")
	err := s.Bind("claim-2", 1, "vol-1", version)
	assert.ErrorIs(t, err, baseerr.ErrorConcurrentBindConflict)
}

func TestStore_BindShared(t *testing.T) {
	s := setupStore()

	sharedClaim := func(id string) *apiV1.Claim {
		c := testClaim(id)
		c.AccessModes = []string{apiV1.ModeRWX}
		return c
	}
	assert.Nil(t, s.AddClaim(sharedClaim("claim-a")))
	assert.Nil(t, s.AddClaim(sharedClaim("claim-b")))
	assert.Nil(t, s.AddVolume(testVolume("vol-1", 20*1<<30, apiV1.ModeRWO, apiV1.ModeRWX)))

	assert.Nil(t, s.Bind("claim-a", 1, "vol-1", 1))
	_, version, _ := s.GetVolume("vol-1")
	assert.Nil(t, s.Bind("claim-b", 1, "vol-1", version))

	volume, _, err := s.GetVolume("vol-1")
	assert.Nil(t, err)
	assert.ElementsMatch(t, []string{"claim-a", "claim-b"}, volume.ClaimRefs)
}

func TestStore_BindRejectsIncompatible(t *testing.T) {
	s := setupStore()

	claim := testClaim("claim-1")
	claim.AccessModes = []string{apiV1.ModeRWO, apiV1.ModeROX}
	assert.Nil(t, s.AddClaim(claim))
	assert.Nil(t, s.AddVolume(testVolume("vol-small", 1<<30, apiV1.ModeRWO, apiV1.ModeROX)))
	assert.Nil(t, s.AddVolume(testVolume("vol-modes", 20*1<<30, apiV1.ModeRWO)))

	err := s.Bind("claim-1", 1, "vol-small", 1)
	assert.NotNil(t, err)
	err = s.Bind("claim-1", 1, "vol-modes", 1)
	assert.NotNil(t, err)

	claim, _, _ = s.GetClaim("claim-1")
	assert.Equal(t, apiV1.ClaimPending, claim.State)
}

func TestStore_ReleaseClaim(t *testing.T) {
	s := setupStore()

	assert.Nil(t, s.AddClaim(testClaim("claim-1")))
	assert.Nil(t, s.AddVolume(testVolume("vol-1", 12*1<<30, apiV1.ModeRWO)))
	assert.Nil(t, s.Bind("claim-1", 1, "vol-1", 1))

	released, err := s.ReleaseClaim("claim-1")
	assert.Nil(t, err)
	assert.Equal(t, "vol-1", released)

	_, _, err = s.GetClaim("claim-1")
	assert.ErrorIs(t, err, baseerr.ErrorNotFound)
	volume, _, err := s.GetVolume("vol-1")
	assert.Nil(t, err)
	assert.Equal(t, apiV1.VolumeReleased, volume.State)
	assert.Empty(t, volume.ClaimRefs)
}

func TestStore_ReleaseSharedClaimKeepsVolumeBound(t *testing.T) {
	s := setupStore()

	sharedClaim := func(id string) *apiV1.Claim {
		c := testClaim(id)
		c.AccessModes = []string{apiV1.ModeRWX}
		return c
	}
	assert.Nil(t, s.AddClaim(sharedClaim("claim-a")))
	assert.Nil(t, s.AddClaim(sharedClaim("claim-b")))
	assert.Nil(t, s.AddVolume(testVolume("vol-1", 20*1<<30, apiV1.ModeRWX)))
	assert.Nil(t, s.Bind("claim-a", 1, "vol-1", 1))
	_, version, _ := s.GetVolume("vol-1")
	assert.Nil(t, s.Bind("claim-b", 1, "vol-1", version))

	released, err := s.ReleaseClaim("claim-a")
	assert.Nil(t, err)
	assert.Equal(t, "", released)

	volume, _, _ := s.GetVolume("vol-1")
	assert.Equal(t, apiV1.VolumeBound, volume.State)
	assert.Equal(t, []string{"claim-b"}, volume.ClaimRefs)

	released, err = s.ReleaseClaim("claim-b")
	assert.Nil(t, err)
	assert.Equal(t, "vol-1", released)
}

func TestStore_ListFilters(t *testing.T) {
	s := setupStore()

	assert.Nil(t, s.AddClaim(testClaim("claim-1")))
	assert.Nil(t, s.AddClaim(testClaim("claim-2")))
	assert.Nil(t, s.AddVolume(testVolume("vol-1", 1<<30, apiV1.ModeRWO)))
	assert.Nil(t, s.Bind("claim-1", 1, "vol-1", 1))

	assert.Len(t, s.ListClaims(""), 2)
	assert.Len(t, s.ListClaims(apiV1.ClaimPending), 1)
	assert.Len(t, s.ListClaims(apiV1.ClaimBound), 1)
	assert.Len(t, s.ListVolumes(apiV1.VolumeAvailable), 0)
	assert.Len(t, s.ListVolumes(apiV1.VolumeBound), 1)
}

func TestStore_ConcurrentBindSingleWinner(t *testing.T) {
	s := setupStore()

	const claims = 32
	assert.Nil(t, s.AddVolume(testVolume("vol-1", 100*1<<30, apiV1.ModeRWO)))
	for i := 0; i < claims; i++ {
		assert.Nil(t, s.AddClaim(testClaim(claimID(i))))
	}

	var (
		wg   sync.WaitGroup
		wins sync.Map
	)
	for i := 0; i < claims; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := s.Bind(id, 1, "vol-1", 1); err == nil {
				wins.Store(id, struct{}{})
			}
		}(claimID(i))
	}
	wg.Wait()

	winners := 0
	wins.Range(func(_, _ interface{}) bool {
		winners++
		return true
	})
	assert.Equal(t, 1, winners)

	volume, _, _ := s.GetVolume("vol-1")
	assert.Len(t, volume.ClaimRefs, 1)
}

func claimID(i int) string {
	return "claim-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}
