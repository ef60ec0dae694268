package provisioner

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	"github.com/dimitrisb35/volume-broker/pkg/base"
	baseerr "github.com/dimitrisb35/volume-broker/pkg/base/error"
)

// EphemeralProvisioner serves scratch volumes that live and die with their
// workload context. Create is always synchronous and local. Deletion happens
// on workload teardown, an external event, never a Binder action.
type EphemeralProvisioner struct {
	*pool
	// volume ID to owning workload context
	owners map[string]string
}

// NewEphemeralProvisioner is a constructor for EphemeralProvisioner
func NewEphemeralProvisioner(totalCapacity int64, logger *logrus.Logger) *EphemeralProvisioner {
	return &EphemeralProvisioner{
		pool: newPool(apiV1.KindEphemeral, totalCapacity, fileExtent,
			[]string{apiV1.ModeRWO, apiV1.ModeRWOP}, logger),
		owners: make(map[string]string),
	}
}

// Create provisions a scratch volume owned by the workload context carried in
// ctx under base.RequestUUID
func (e *EphemeralProvisioner) Create(ctx context.Context, class *apiV1.StorageClass, size int64, accessModes []string) (*apiV1.Volume, error) {
	vol, err := e.create(class, size, accessModes)
	if err != nil {
		return nil, err
	}
	if workload, ok := ctx.Value(base.RequestUUID).(string); ok && workload != "" {
		e.mu.Lock()
		e.owners[vol.ID] = workload
		e.mu.Unlock()
	}
	return vol, nil
}

// Delete destroys a scratch volume, idempotently
func (e *EphemeralProvisioner) Delete(_ context.Context, volumeID string) error {
	if err := e.delete(volumeID); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.owners, volumeID)
	e.mu.Unlock()
	return nil
}

// Resize always fails: scratch space is sized once
func (e *EphemeralProvisioner) Resize(_ context.Context, volumeID string, _ int64) error {
	return fmt.Errorf("%w: ephemeral volumes do not resize (volume %s)", baseerr.ErrorResizeNotSupported, volumeID)
}

// TeardownWorkload destroys every volume owned by the workload context and
// returns their IDs so the host can drop the matching store records
func (e *EphemeralProvisioner) TeardownWorkload(workload string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var removed []string
	for volID, owner := range e.owners {
		if owner != workload {
			continue
		}
		delete(e.allocated, volID)
		delete(e.owners, volID)
		removed = append(removed, volID)
	}
	if len(removed) > 0 {
		e.log.WithField("method", "TeardownWorkload").
			Infof("Workload %s torn down, removed %d ephemeral volumes", workload, len(removed))
	}
	return removed
}
