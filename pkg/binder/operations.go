package binder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	baseerr "github.com/dimitrisb35/volume-broker/pkg/base/error"
	"github.com/dimitrisb35/volume-broker/pkg/eventing"
)

// CreateClaim validates and registers a new claim, then schedules it for
// binding. A generated ID is assigned when the request carries none.
func (b *Binder) CreateClaim(_ context.Context, claim *apiV1.Claim) (*apiV1.Claim, error) {
	if claim.Size <= 0 {
		return nil, fmt.Errorf("claim capacity must be positive, got %d", claim.Size)
	}
	if len(claim.AccessModes) == 0 {
		return nil, fmt.Errorf("claim must request at least one access mode")
	}
	for _, mode := range claim.AccessModes {
		if !apiV1.IsValidAccessMode(mode) {
			return nil, fmt.Errorf("unknown access mode %q", mode)
		}
	}
	if claim.StorageClass != apiV1.StorageClassAny {
		if _, err := b.catalog.Lookup(claim.StorageClass); err != nil {
			return nil, err
		}
	}

	registered := claim.DeepCopy()
	if registered.ID == "" {
		registered.ID = uuid.New().String()
	}
	registered.State = apiV1.ClaimPending
	registered.VolumeRef = ""
	registered.Attempts = 0
	registered.CreatedAt = time.Now()

	if err := b.store.AddClaim(registered); err != nil {
		return nil, err
	}
	b.log.WithFields(logrus.Fields{
		"method":  "CreateClaim",
		"claimID": registered.ID,
	}).Infof("Accepted claim for %d bytes, modes %v, class %q", registered.Size, registered.AccessModes, registered.StorageClass)
	b.Enqueue(registered.ID)
	return registered.DeepCopy(), nil
}

// ReleaseClaim handles an external detach or deletion request.
// A Bound claim releases its volume for the Reclaimer. A Pending claim goes
// Lost immediately; an in-flight provisioning attempt is allowed to complete
// and its volume is orphaned, not bound. A Lost claim is removed.
func (b *Binder) ReleaseClaim(_ context.Context, claimID string) error {
	ll := b.log.WithFields(logrus.Fields{
		"method":  "ReleaseClaim",
		"claimID": claimID,
	})
	defer b.metrics.EvaluateDuration("ReleaseClaim", time.Now())

	for {
		claim, version, err := b.store.GetClaim(claimID)
		if err != nil {
			return err
		}

		switch claim.State {
		case apiV1.ClaimBound:
			releasedVolume, err := b.store.ReleaseClaim(claimID)
			if err != nil {
				return err
			}
			ll.Infof("Claim released, volume %s", claim.VolumeRef)
			b.recorder.Eventf(claimID, eventing.NormalType, eventing.ClaimReleased,
				"released volume %s", claim.VolumeRef)
			if releasedVolume != "" {
				b.recorder.Eventf(releasedVolume, eventing.NormalType, eventing.VolumeReleased,
					"released by claim %s, awaiting reclaim", claimID)
			}
			return nil
		case apiV1.ClaimPending:
			claim.State = apiV1.ClaimLost
			if err := b.store.UpdateClaim(claim, version); err != nil {
				if errors.Is(err, baseerr.ErrorVersionConflict) {
					continue
				}
				return err
			}
			ll.Info("Pending claim released before a volume existed, marked Lost")
			b.recorder.Eventf(claimID, eventing.NormalType, eventing.ClaimReleased,
				"released while no volume existed")
			return nil
		case apiV1.ClaimLost:
			if err := b.store.DeleteClaim(claimID); err != nil {
				return err
			}
			ll.Info("Lost claim removed")
			return nil
		default:
			return fmt.Errorf("claim %s in unexpected state %s", claimID, claim.State)
		}
	}
}

// SetPlacementHint stores an opaque consumer placement hint on a Pending
// claim, unblocking waitForFirstConsumer provisioning
func (b *Binder) SetPlacementHint(_ context.Context, claimID, hint string) error {
	for {
		claim, version, err := b.store.GetClaim(claimID)
		if err != nil {
			return err
		}
		if claim.State != apiV1.ClaimPending {
			return fmt.Errorf("claim %s is %s, placement hint only applies while pending", claimID, claim.State)
		}
		claim.PlacementHint = hint
		if err := b.store.UpdateClaim(claim, version); err != nil {
			if errors.Is(err, baseerr.ErrorVersionConflict) {
				continue
			}
			return err
		}
		b.Enqueue(claimID)
		return nil
	}
}

// UpdateClaimRequest changes the requested capacity and access modes of a
// Pending claim. The retry budget resets because the request changed.
func (b *Binder) UpdateClaimRequest(_ context.Context, claimID string, size int64, accessModes []string) error {
	if size <= 0 {
		return fmt.Errorf("claim capacity must be positive, got %d", size)
	}
	for _, mode := range accessModes {
		if !apiV1.IsValidAccessMode(mode) {
			return fmt.Errorf("unknown access mode %q", mode)
		}
	}
	for {
		claim, version, err := b.store.GetClaim(claimID)
		if err != nil {
			return err
		}
		if claim.State != apiV1.ClaimPending {
			return fmt.Errorf("claim %s is %s, request update only applies while pending", claimID, claim.State)
		}
		claim.Size = size
		if len(accessModes) > 0 {
			claim.AccessModes = append([]string(nil), accessModes...)
		}
		claim.Attempts = 0
		if err := b.store.UpdateClaim(claim, version); err != nil {
			if errors.Is(err, baseerr.ErrorVersionConflict) {
				continue
			}
			return err
		}
		b.Enqueue(claimID)
		return nil
	}
}

// ExpandClaim grows the volume bound to a claim. ResizeNotSupported is
// surfaced and never retried.
func (b *Binder) ExpandClaim(ctx context.Context, claimID string, newSize int64) error {
	ll := b.log.WithFields(logrus.Fields{
		"method":  "ExpandClaim",
		"claimID": claimID,
	})
	defer b.metrics.EvaluateDuration("ExpandClaim", time.Now())

	claim, _, err := b.store.GetClaim(claimID)
	if err != nil {
		return err
	}
	if claim.State != apiV1.ClaimBound || claim.VolumeRef == "" {
		return fmt.Errorf("claim %s is %s, expansion requires a bound volume", claimID, claim.State)
	}
	volume, _, err := b.store.GetVolume(claim.VolumeRef)
	if err != nil {
		return err
	}
	if newSize <= volume.Size {
		return fmt.Errorf("new size %d does not exceed current volume size %d", newSize, volume.Size)
	}
	class, err := b.catalog.Lookup(volume.StorageClass)
	if err != nil {
		return err
	}
	backend, err := b.backends.Get(class.Backend)
	if err != nil {
		return err
	}

	// suspension point, no store locks held
	if err := backend.Resize(ctx, volume.ID, newSize); err != nil {
		if errors.Is(err, baseerr.ErrorResizeNotSupported) {
			b.recorder.Eventf(claimID, eventing.WarningType, eventing.ResizeNotSupported, "%v", err)
		}
		return err
	}

	for {
		fresh, version, err := b.store.GetVolume(volume.ID)
		if err != nil {
			return err
		}
		if fresh.Size >= newSize {
			break
		}
		fresh.Size = newSize
		if err := b.store.UpdateVolume(fresh, version); err != nil {
			if errors.Is(err, baseerr.ErrorVersionConflict) {
				continue
			}
			return err
		}
		break
	}
	ll.Infof("Volume %s expanded to %d bytes", volume.ID, newSize)
	b.recorder.Eventf(volume.ID, eventing.NormalType, eventing.VolumeExpanded, "expanded to %d bytes", newSize)
	return nil
}

// workloadTearer is the optional backend capability of destroying every
// volume owned by a workload context at once
type workloadTearer interface {
	TeardownWorkload(workload string) []string
}

// TeardownWorkload destroys all ephemeral volumes owned by the workload
// context and drops their records. Returns the IDs of the destroyed volumes.
func (b *Binder) TeardownWorkload(ctx context.Context, workload string) ([]string, error) {
	ll := b.log.WithFields(logrus.Fields{
		"method":   "TeardownWorkload",
		"workload": workload,
	})
	defer b.metrics.EvaluateDuration("TeardownWorkload", time.Now())

	backend, err := b.backends.Get(apiV1.KindEphemeral)
	if err != nil {
		return nil, err
	}
	tearer, ok := backend.(workloadTearer)
	if !ok {
		return nil, fmt.Errorf("backend %s does not support workload teardown", backend.Kind())
	}

	volumeIDs := tearer.TeardownWorkload(workload)
	b.ForgetVolumes(ctx, volumeIDs)
	ll.Infof("Workload torn down, %d volumes destroyed", len(volumeIDs))
	return volumeIDs, nil
}

// ForgetVolumes drops store records for volumes destroyed outside the broker,
// such as ephemeral volumes removed by workload teardown. Claims bound to a
// forgotten volume go Lost.
func (b *Binder) ForgetVolumes(_ context.Context, volumeIDs []string) {
	ll := b.log.WithField("method", "ForgetVolumes")
	for _, volumeID := range volumeIDs {
		volume, _, err := b.store.GetVolume(volumeID)
		if err != nil {
			continue
		}
		for _, claimID := range volume.ClaimRefs {
			for {
				claim, version, getErr := b.store.GetClaim(claimID)
				if getErr != nil || claim.State == apiV1.ClaimLost {
					break
				}
				claim.State = apiV1.ClaimLost
				claim.VolumeRef = ""
				if updErr := b.store.UpdateClaim(claim, version); updErr != nil {
					if errors.Is(updErr, baseerr.ErrorVersionConflict) {
						continue
					}
					break
				}
				b.recorder.Eventf(claimID, eventing.CriticalType, eventing.ClaimLost,
					"backing volume %s destroyed by workload teardown", volumeID)
				break
			}
		}
		if err := b.store.DeleteVolume(volumeID); err != nil {
			ll.Errorf("Unable to drop volume %s: %v", volumeID, err)
			continue
		}
		ll.Infof("Volume %s forgotten after external teardown", volumeID)
	}
}
