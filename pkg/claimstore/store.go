// Package claimstore is the source of truth for claim and volume binding state.
// Records carry a version counter; every mutation is a compare-and-swap so
// that Binder workers for unrelated claims never block each other and races
// introduced while a backend call was in flight are detected, not overwritten.
package claimstore

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	baseerr "github.com/dimitrisb35/volume-broker/pkg/base/error"
)

type claimRecord struct {
	claim   *apiV1.Claim
	version uint64
}

type volumeRecord struct {
	volume  *apiV1.Volume
	version uint64
}

// Store keeps claim and volume records in memory.
// The mutex guards the maps only; it is never held across backend I/O.
type Store struct {
	mu      sync.RWMutex
	claims  map[string]*claimRecord
	volumes map[string]*volumeRecord

	log *logrus.Entry
}

// NewStore is a constructor for Store
func NewStore(logger *logrus.Logger) *Store {
	return &Store{
		claims:  make(map[string]*claimRecord),
		volumes: make(map[string]*volumeRecord),
		log:     logger.WithField("component", "ClaimStore"),
	}
}

// AddClaim inserts a new claim record at version 1.
// Returns ErrorAlreadyExists when the ID is taken
func (s *Store) AddClaim(claim *apiV1.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.claims[claim.ID]; ok {
		return fmt.Errorf("%w: claim %s", baseerr.ErrorAlreadyExists, claim.ID)
	}
	s.claims[claim.ID] = &claimRecord{claim: claim.DeepCopy(), version: 1}
	return nil
}

// GetClaim returns a copy of the claim and its current version
func (s *Store) GetClaim(id string) (*apiV1.Claim, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.claims[id]
	if !ok {
		return nil, 0, fmt.Errorf("%w: claim %s", baseerr.ErrorNotFound, id)
	}
	return rec.claim.DeepCopy(), rec.version, nil
}

// UpdateClaim replaces the claim record if version still matches.
// Returns ErrorVersionConflict when another writer won the race
func (s *Store) UpdateClaim(claim *apiV1.Claim, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.claims[claim.ID]
	if !ok {
		return fmt.Errorf("%w: claim %s", baseerr.ErrorNotFound, claim.ID)
	}
	if rec.version != version {
		return fmt.Errorf("%w: claim %s", baseerr.ErrorVersionConflict, claim.ID)
	}
	rec.claim = claim.DeepCopy()
	rec.version++
	return nil
}

// DeleteClaim drops the claim record
func (s *Store) DeleteClaim(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.claims[id]; !ok {
		return fmt.Errorf("%w: claim %s", baseerr.ErrorNotFound, id)
	}
	delete(s.claims, id)
	return nil
}

// AddVolume inserts a new volume record at version 1
func (s *Store) AddVolume(volume *apiV1.Volume) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.volumes[volume.ID]; ok {
		return fmt.Errorf("%w: volume %s", baseerr.ErrorAlreadyExists, volume.ID)
	}
	s.volumes[volume.ID] = &volumeRecord{volume: volume.DeepCopy(), version: 1}
	return nil
}

// GetVolume returns a copy of the volume and its current version
func (s *Store) GetVolume(id string) (*apiV1.Volume, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.volumes[id]
	if !ok {
		return nil, 0, fmt.Errorf("%w: volume %s", baseerr.ErrorNotFound, id)
	}
	return rec.volume.DeepCopy(), rec.version, nil
}

// UpdateVolume replaces the volume record if version still matches
func (s *Store) UpdateVolume(volume *apiV1.Volume, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.volumes[volume.ID]
	if !ok {
		return fmt.Errorf("%w: volume %s", baseerr.ErrorNotFound, volume.ID)
	}
	if rec.version != version {
		return fmt.Errorf("%w: volume %s", baseerr.ErrorVersionConflict, volume.ID)
	}
	rec.volume = volume.DeepCopy()
	rec.version++
	return nil
}

// DeleteVolume drops the volume record
func (s *Store) DeleteVolume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.volumes[id]; !ok {
		return fmt.Errorf("%w: volume %s", baseerr.ErrorNotFound, id)
	}
	delete(s.volumes, id)
	return nil
}

// ListClaims returns a snapshot of claims, optionally filtered by state.
// Empty stateFilter means all states
func (s *Store) ListClaims(stateFilter string) []*apiV1.Claim {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*apiV1.Claim, 0, len(s.claims))
	for _, rec := range s.claims {
		if stateFilter != "" && rec.claim.State != stateFilter {
			continue
		}
		result = append(result, rec.claim.DeepCopy())
	}
	return result
}

// ListVolumes returns a snapshot of volumes, optionally filtered by state
func (s *Store) ListVolumes(stateFilter string) []*apiV1.Volume {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*apiV1.Volume, 0, len(s.volumes))
	for _, rec := range s.volumes {
		if stateFilter != "" && rec.volume.State != stateFilter {
			continue
		}
		result = append(result, rec.volume.DeepCopy())
	}
	return result
}
