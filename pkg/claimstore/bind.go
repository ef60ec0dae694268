package claimstore

import (
	"fmt"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	baseerr "github.com/dimitrisb35/volume-broker/pkg/base/error"
)

// Bind atomically marks the claim and the volume Bound together.
// Caller passes the versions it based its matching decision on; if either
// entity moved in the meantime the bind fails with ErrorConcurrentBindConflict
// and the caller restarts matching from scratch.
func (s *Store) Bind(claimID string, claimVersion uint64, volumeID string, volumeVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cRec, ok := s.claims[claimID]
	if !ok {
		return fmt.Errorf("%w: claim %s", baseerr.ErrorNotFound, claimID)
	}
	vRec, ok := s.volumes[volumeID]
	if !ok {
		return fmt.Errorf("%w: volume %s", baseerr.ErrorNotFound, volumeID)
	}
	if cRec.version != claimVersion || vRec.version != volumeVersion {
		return fmt.Errorf("%w: claim %s / volume %s", baseerr.ErrorConcurrentBindConflict, claimID, volumeID)
	}
	if cRec.claim.State != apiV1.ClaimPending {
		return fmt.Errorf("%w: claim %s is %s", baseerr.ErrorConcurrentBindConflict, claimID, cRec.claim.State)
	}

	claim, volume := cRec.claim, vRec.volume
	switch volume.State {
	case apiV1.VolumeAvailable:
	case apiV1.VolumeBound:
		// multi-reader sharing: allowed only when every party requests
		// shared modes and the volume supports them
		if !claim.SharedOnly() {
			return fmt.Errorf("%w: volume %s already bound", baseerr.ErrorConcurrentBindConflict, volumeID)
		}
		for _, ref := range volume.ClaimRefs {
			bound, boundOK := s.claims[ref]
			if !boundOK || !bound.claim.SharedOnly() {
				return fmt.Errorf("%w: volume %s held exclusively", baseerr.ErrorConcurrentBindConflict, volumeID)
			}
		}
	default:
		return fmt.Errorf("%w: volume %s is %s", baseerr.ErrorConcurrentBindConflict, volumeID, volume.State)
	}

	// the store is the single chokepoint for the binding invariants
	if !volume.HasModes(claim.AccessModes) {
		return fmt.Errorf("volume %s access modes %v do not cover claim %s request %v",
			volumeID, volume.AccessModes, claimID, claim.AccessModes)
	}
	if volume.Size < claim.Size {
		return fmt.Errorf("volume %s size %d below claim %s request %d",
			volumeID, volume.Size, claimID, claim.Size)
	}

	claim.State = apiV1.ClaimBound
	claim.VolumeRef = volumeID
	volume.State = apiV1.VolumeBound
	volume.ClaimRefs = append(volume.ClaimRefs, claimID)
	cRec.version++
	vRec.version++
	return nil
}

// ReleaseClaim detaches the claim and drops its record.
// A Bound claim releases its volume reference; the volume transitions to
// Released once no claims hold it. Returns the ID of the volume that went
// Released (empty when none did) so the caller can hand it to the Reclaimer.
func (s *Store) ReleaseClaim(claimID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cRec, ok := s.claims[claimID]
	if !ok {
		return "", fmt.Errorf("%w: claim %s", baseerr.ErrorNotFound, claimID)
	}

	released := ""
	if cRec.claim.State == apiV1.ClaimBound && cRec.claim.VolumeRef != "" {
		if vRec, vOK := s.volumes[cRec.claim.VolumeRef]; vOK {
			refs := vRec.volume.ClaimRefs[:0]
			for _, ref := range vRec.volume.ClaimRefs {
				if ref != claimID {
					refs = append(refs, ref)
				}
			}
			vRec.volume.ClaimRefs = refs
			if len(refs) == 0 {
				vRec.volume.State = apiV1.VolumeReleased
				released = vRec.volume.ID
			}
			vRec.version++
		}
	}
	delete(s.claims, claimID)
	return released, nil
}
