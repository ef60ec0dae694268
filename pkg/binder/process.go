package binder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	"github.com/dimitrisb35/volume-broker/pkg/base"
	"github.com/dimitrisb35/volume-broker/pkg/base/backoff"
	baseerr "github.com/dimitrisb35/volume-broker/pkg/base/error"
	"github.com/dimitrisb35/volume-broker/pkg/eventing"
)

// maxBindRestarts bounds immediate restarts after bind conflicts before the
// claim goes back to the queue
const maxBindRestarts = 16

// processClaim runs the binding algorithm for one Pending claim:
// match an existing Available volume, otherwise provision a new one.
func (b *Binder) processClaim(ctx context.Context, claimID string) error {
	ll := b.log.WithFields(logrus.Fields{
		"method":  "processClaim",
		"claimID": claimID,
	})
	defer b.metrics.EvaluateDuration("processClaim", time.Now())

	for restart := 0; restart < maxBindRestarts; restart++ {
		claim, claimVersion, err := b.store.GetClaim(claimID)
		if err != nil {
			// claim is gone, nothing to do
			return nil
		}
		if claim.State != apiV1.ClaimPending {
			return nil
		}

		var class *apiV1.StorageClass
		if claim.StorageClass != apiV1.StorageClassAny {
			class, err = b.catalog.Lookup(claim.StorageClass)
			if err != nil {
				ll.Warnf("Storage class %s not found", claim.StorageClass)
				b.recorder.Eventf(claimID, eventing.WarningType, eventing.ClassNotFound,
					"storage class %s is not registered", claim.StorageClass)
				return nil
			}
		}

		volume, volumeVersion := b.findMatch(claim)
		if volume != nil {
			err = b.store.Bind(claimID, claimVersion, volume.ID, volumeVersion)
			if errors.Is(err, baseerr.ErrorConcurrentBindConflict) {
				ll.Debugf("Bind conflict on volume %s, restarting match", volume.ID)
				continue
			}
			if err != nil {
				ll.Warnf("Bind to volume %s rejected: %v", volume.ID, err)
				continue
			}
			ll.Infof("Claim bound to volume %s", volume.ID)
			b.recorder.Eventf(claimID, eventing.NormalType, eventing.ClaimBound,
				"bound to volume %s", volume.ID)
			b.recorder.Eventf(volume.ID, eventing.NormalType, eventing.VolumeBound,
				"bound by claim %s", claimID)
			return nil
		}

		if class == nil {
			// classless claim waits for a matching volume to appear
			ll.Debug("No matching volume for classless claim, staying pending")
			return nil
		}
		if class.BindingMode == apiV1.BindingWaitForFirstConsumer && claim.PlacementHint == "" {
			// deliberate suspension point, not a failure
			b.recorder.Eventf(claimID, eventing.NormalType, eventing.WaitingForConsumer,
				"binding deferred until a consumer placement hint is supplied")
			return nil
		}
		return b.provisionAndBind(ctx, claim, class)
	}

	// conflict storm, give the claim back to the queue
	b.Enqueue(claimID)
	return nil
}

// findMatch searches Available volumes satisfying the claim. Bound volumes
// join the candidate set when the claim requests shared modes only.
// Tie-break: smallest sufficient capacity first, then oldest volume.
// Returns the chosen volume with its current version, or nil.
func (b *Binder) findMatch(claim *apiV1.Claim) (*apiV1.Volume, uint64) {
	sharedOK := claim.SharedOnly()

	var candidates []*apiV1.Volume
	for _, vol := range b.store.ListVolumes("") {
		switch vol.State {
		case apiV1.VolumeAvailable:
		case apiV1.VolumeBound:
			if !sharedOK {
				continue
			}
		default:
			continue
		}
		if claim.StorageClass != apiV1.StorageClassAny && vol.StorageClass != claim.StorageClass {
			continue
		}
		if vol.Size < claim.Size || !vol.HasModes(claim.AccessModes) {
			continue
		}
		candidates = append(candidates, vol)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Size != candidates[j].Size {
			return candidates[i].Size < candidates[j].Size
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	for _, vol := range candidates {
		fresh, version, err := b.store.GetVolume(vol.ID)
		if err != nil {
			continue
		}
		if fresh.State != apiV1.VolumeAvailable && !(sharedOK && fresh.State == apiV1.VolumeBound) {
			continue
		}
		return fresh, version
	}
	return nil, 0
}

// provisionAndBind invokes the backend for the claim's class and binds the new
// volume. Transient backend failures are retried with exponential backoff
// against the claim's attempt budget; exhaustion makes the claim Lost.
// Backend calls run without any store lock held.
func (b *Binder) provisionAndBind(ctx context.Context, claim *apiV1.Claim, class *apiV1.StorageClass) error {
	ll := b.log.WithFields(logrus.Fields{
		"method":  "provisionAndBind",
		"claimID": claim.ID,
	})
	defer b.metrics.EvaluateDuration("provisionAndBind", time.Now())

	backend, err := b.backends.Get(class.Backend)
	if err != nil {
		b.recorder.Eventf(claim.ID, eventing.ErrorType, eventing.ProvisioningFailed, "%v", err)
		return err
	}

	ctxWithID := context.WithValue(ctx, base.RequestUUID, claim.ID)
	var volume *apiV1.Volume
	for {
		// cancellation check: the claim may have been released while we slept
		current, _, getErr := b.store.GetClaim(claim.ID)
		if getErr != nil || current.State != apiV1.ClaimPending {
			ll.Info("Claim left Pending during provisioning, aborting")
			return nil
		}

		volume, err = backend.Create(ctxWithID, class, claim.Size, claim.AccessModes)
		if err == nil {
			break
		}

		switch {
		case errors.Is(err, baseerr.ErrorInsufficientCapacity):
			ll.Warnf("Backend rejected request: %v", err)
			b.recorder.Eventf(claim.ID, eventing.WarningType, eventing.InsufficientCapacity, "%v", err)
			return nil
		case errors.Is(err, baseerr.ErrorIncompatibleAccessMode):
			ll.Warnf("Backend rejected request: %v", err)
			b.recorder.Eventf(claim.ID, eventing.WarningType, eventing.IncompatibleAccessMode, "%v", err)
			return nil
		case errors.Is(err, baseerr.ErrorBackendUnavailable):
			attempts, budgetErr := b.bumpAttempts(claim.ID)
			if budgetErr != nil {
				return nil
			}
			b.recorder.Eventf(claim.ID, eventing.WarningType, eventing.BackendUnavailable,
				"attempt %d/%d: %v", attempts, b.maxAttempts, err)
			if attempts >= b.maxAttempts {
				b.markClaimLost(claim.ID, fmt.Sprintf("provisioning failed after %d attempts: %v", attempts, err))
				return fmt.Errorf("%w: claim %s", backoff.ErrMaxRetriesExceeded, claim.ID)
			}
			delay := b.backoff.Handle(attempts - 1)
			ll.Infof("Backend unavailable, retrying in %s (attempt %d/%d)", delay, attempts, b.maxAttempts)
			b.recorder.Eventf(claim.ID, eventing.NormalType, eventing.ProvisioningRetried,
				"retrying in %s", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		default:
			// unclassified backend error: terminal for this attempt,
			// claim stays Pending for diagnosis
			ll.Errorf("Backend failed: %v", err)
			b.recorder.Eventf(claim.ID, eventing.ErrorType, eventing.ProvisioningFailed, "%v", err)
			return err
		}
	}

	if err := b.store.AddVolume(volume); err != nil {
		ll.Errorf("Unable to register provisioned volume %s: %v", volume.ID, err)
		return err
	}
	b.recorder.Eventf(volume.ID, eventing.NormalType, eventing.VolumeProvisioned,
		"provisioned %d bytes of %s storage for claim %s", volume.Size, class.Backend, claim.ID)

	// the claim may have been released while the backend call was in flight;
	// then the fresh volume goes to the Reclaimer instead of binding
	current, claimVersion, err := b.store.GetClaim(claim.ID)
	if err != nil || current.State != apiV1.ClaimPending {
		b.orphanVolume(volume.ID, claim.ID)
		return nil
	}
	_, volumeVersion, err := b.store.GetVolume(volume.ID)
	if err != nil {
		return err
	}
	if err := b.store.Bind(claim.ID, claimVersion, volume.ID, volumeVersion); err != nil {
		ll.Warnf("Unable to bind fresh volume %s: %v", volume.ID, err)
		b.orphanVolume(volume.ID, claim.ID)
		return nil
	}
	ll.Infof("Claim bound to provisioned volume %s", volume.ID)
	b.recorder.Eventf(claim.ID, eventing.NormalType, eventing.ClaimBound, "bound to volume %s", volume.ID)
	b.recorder.Eventf(volume.ID, eventing.NormalType, eventing.VolumeBound, "bound by claim %s", claim.ID)
	return nil
}

// bumpAttempts increments the claim's attempt counter with a CAS loop
func (b *Binder) bumpAttempts(claimID string) (int, error) {
	for {
		claim, version, err := b.store.GetClaim(claimID)
		if err != nil {
			return 0, err
		}
		claim.Attempts++
		if err := b.store.UpdateClaim(claim, version); err != nil {
			if errors.Is(err, baseerr.ErrorVersionConflict) {
				continue
			}
			return 0, err
		}
		return claim.Attempts, nil
	}
}

// markClaimLost transitions a Pending claim to Lost
func (b *Binder) markClaimLost(claimID, message string) {
	for {
		claim, version, err := b.store.GetClaim(claimID)
		if err != nil || claim.State != apiV1.ClaimPending {
			return
		}
		claim.State = apiV1.ClaimLost
		if err := b.store.UpdateClaim(claim, version); err != nil {
			if errors.Is(err, baseerr.ErrorVersionConflict) {
				continue
			}
			return
		}
		b.log.WithField("claimID", claimID).Errorf("Claim is lost: %s", message)
		b.recorder.Eventf(claimID, eventing.CriticalType, eventing.ClaimLost, "%s", message)
		return
	}
}

// orphanVolume hands a volume that can no longer bind over to the Reclaimer
func (b *Binder) orphanVolume(volumeID, claimID string) {
	for {
		volume, version, err := b.store.GetVolume(volumeID)
		if err != nil {
			return
		}
		volume.State = apiV1.VolumeReleased
		if err := b.store.UpdateVolume(volume, version); err != nil {
			if errors.Is(err, baseerr.ErrorVersionConflict) {
				continue
			}
			return
		}
		b.recorder.Eventf(volumeID, eventing.WarningType, eventing.VolumeOrphaned,
			"claim %s released during provisioning, volume handed to reclaimer", claimID)
		return
	}
}
