// Package reclaimer sweeps Released volumes and applies their class's
// reclaim policy: Delete destroys the backing volume and drops the record,
// Retain leaves the record Released for manual intervention.
package reclaimer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	baseerr "github.com/dimitrisb35/volume-broker/pkg/base/error"
	"github.com/dimitrisb35/volume-broker/pkg/base/polling"
	"github.com/dimitrisb35/volume-broker/pkg/catalog"
	"github.com/dimitrisb35/volume-broker/pkg/claimstore"
	"github.com/dimitrisb35/volume-broker/pkg/eventing"
	"github.com/dimitrisb35/volume-broker/pkg/metrics"
	"github.com/dimitrisb35/volume-broker/pkg/provisioner"
)

// Reclaimer runs the background reclaim sweep
type Reclaimer struct {
	catalog  *catalog.Catalog
	store    *claimstore.Store
	backends *provisioner.Registry
	recorder *eventing.Recorder
	metrics  metrics.Statistic
	interval time.Duration

	// volumes already reported as retained, to keep the event history quiet
	mu       sync.Mutex
	retained map[string]struct{}

	log *logrus.Entry
}

// NewReclaimer is a constructor for Reclaimer
func NewReclaimer(cat *catalog.Catalog, store *claimstore.Store, backends *provisioner.Registry,
	interval time.Duration, recorder *eventing.Recorder, stat metrics.Statistic, logger *logrus.Logger) *Reclaimer {
	return &Reclaimer{
		catalog:  cat,
		store:    store,
		backends: backends,
		recorder: recorder,
		metrics:  stat,
		interval: interval,
		retained: make(map[string]struct{}),
		log:      logger.WithField("component", "Reclaimer"),
	}
}

// Run sweeps periodically until ctx is done
func (r *Reclaimer) Run(ctx context.Context) {
	r.log.WithField("method", "Run").Infof("Starting reclaim sweep every %s", r.interval)
	polling.NewTimer(r.interval).Start(ctx, r.Sweep)
}

// Sweep processes every Released volume once
func (r *Reclaimer) Sweep(ctx context.Context) {
	ll := r.log.WithField("method", "Sweep")
	defer r.metrics.EvaluateDuration("Sweep", time.Now())

	for _, volume := range r.store.ListVolumes(apiV1.VolumeReleased) {
		class, err := r.catalog.Lookup(volume.StorageClass)
		if err != nil {
			ll.Warnf("Volume %s references unknown class %s, leaving as is", volume.ID, volume.StorageClass)
			continue
		}

		switch class.ReclaimPolicy {
		case apiV1.ReclaimDelete:
			r.reclaim(ctx, volume, class)
		case apiV1.ReclaimRetain:
			// record stays Released, never auto-rebound
			r.mu.Lock()
			_, seen := r.retained[volume.ID]
			if !seen {
				r.retained[volume.ID] = struct{}{}
			}
			r.mu.Unlock()
			if !seen {
				ll.Infof("Volume %s retained per class %s policy", volume.ID, class.Name)
				r.recorder.Eventf(volume.ID, eventing.NormalType, eventing.VolumeRetained,
					"retained for manual intervention per class %s", class.Name)
			}
		}
	}
}

// reclaim deletes the backing volume and drops the store record.
// The backend call is a suspension point; no store lock is held across it and
// deletion is idempotent, so a failed sweep just retries next round.
func (r *Reclaimer) reclaim(ctx context.Context, volume *apiV1.Volume, class *apiV1.StorageClass) {
	ll := r.log.WithField("method", "reclaim")

	backend, err := r.backends.Get(class.Backend)
	if err != nil {
		ll.Errorf("Volume %s: %v", volume.ID, err)
		return
	}
	if err := backend.Delete(ctx, volume.ID); err != nil {
		if errors.Is(err, baseerr.ErrorBackendUnavailable) {
			ll.Warnf("Backend for volume %s unavailable, will retry next sweep", volume.ID)
			return
		}
		ll.Errorf("Unable to delete volume %s: %v", volume.ID, err)
		return
	}
	if err := r.store.DeleteVolume(volume.ID); err != nil {
		if !errors.Is(err, baseerr.ErrorNotFound) {
			ll.Errorf("Unable to drop record of volume %s: %v", volume.ID, err)
		}
		return
	}
	ll.Infof("Volume %s reclaimed per class %s policy", volume.ID, class.Name)
	r.recorder.Eventf(volume.ID, eventing.NormalType, eventing.VolumeReclaimed,
		"backing %s volume deleted per class %s", class.Backend, class.Name)
}
