package provisioner

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	baseerr "github.com/dimitrisb35/volume-broker/pkg/base/error"
)

// pool is the shared bookkeeping embedded by the reference backends.
// It models a fixed budget of raw capacity per backend, the way a loopback
// device farm models physical drives.
type pool struct {
	mu        sync.Mutex
	kind      string
	total     int64
	allocated map[string]int64
	// supported access modes for this backend kind
	modes []string
	// granularity volumes are carved at; requests are rounded up to it
	extent int64
	online bool

	log *logrus.Entry
}

func newPool(kind string, total, extent int64, modes []string, logger *logrus.Logger) *pool {
	return &pool{
		kind:      kind,
		total:     total,
		extent:    extent,
		modes:     modes,
		allocated: make(map[string]int64),
		online:    true,
		log:       logger.WithField("component", fmt.Sprintf("%sProvisioner", kind)),
	}
}

// SetOnline toggles backend availability. While offline every operation
// fails with ErrorBackendUnavailable
func (p *pool) SetOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = online
}

func (p *pool) Kind() string {
	return p.kind
}

func (p *pool) used() int64 {
	var sum int64
	for _, size := range p.allocated {
		sum += size
	}
	return sum
}

// alignSize rounds size up to the pool extent
func (p *pool) alignSize(size int64) int64 {
	if p.extent <= 0 || size%p.extent == 0 {
		return size
	}
	return (size/p.extent + 1) * p.extent
}

func (p *pool) create(class *apiV1.StorageClass, size int64, accessModes []string) (*apiV1.Volume, error) {
	ll := p.log.WithField("method", "create")

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.online {
		return nil, fmt.Errorf("%w: %s backend is offline", baseerr.ErrorBackendUnavailable, p.kind)
	}
	if len(accessModes) == 0 || !apiV1.ContainsModes(p.modes, accessModes) {
		return nil, fmt.Errorf("%w: %s backend supports %v, requested %v",
			baseerr.ErrorIncompatibleAccessMode, p.kind, p.modes, accessModes)
	}
	allocSize := p.alignSize(size)
	if p.used()+allocSize > p.total {
		return nil, fmt.Errorf("%w: %s backend has %d bytes free, requested %d",
			baseerr.ErrorInsufficientCapacity, p.kind, p.total-p.used(), allocSize)
	}

	vol := &apiV1.Volume{
		ID:           uuid.New().String(),
		StorageClass: class.Name,
		Size:         allocSize,
		AccessModes:  append([]string(nil), accessModes...),
		State:        apiV1.VolumeAvailable,
		CreatedAt:    time.Now(),
	}
	p.allocated[vol.ID] = allocSize
	ll.Infof("Provisioned %s volume %s (%d bytes) for class %s", p.kind, vol.ID, allocSize, class.Name)
	return vol, nil
}

func (p *pool) delete(volumeID string) error {
	ll := p.log.WithField("method", "delete")

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.online {
		return fmt.Errorf("%w: %s backend is offline", baseerr.ErrorBackendUnavailable, p.kind)
	}
	if _, ok := p.allocated[volumeID]; !ok {
		// idempotent delete
		ll.Debugf("Volume %s already absent", volumeID)
		return nil
	}
	delete(p.allocated, volumeID)
	ll.Infof("Deleted %s volume %s", p.kind, volumeID)
	return nil
}

func (p *pool) resize(volumeID string, newSize int64) error {
	ll := p.log.WithField("method", "resize")

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.online {
		return fmt.Errorf("%w: %s backend is offline", baseerr.ErrorBackendUnavailable, p.kind)
	}
	current, ok := p.allocated[volumeID]
	if !ok {
		return fmt.Errorf("%w: volume %s", baseerr.ErrorVolumeNotFound, volumeID)
	}
	allocSize := p.alignSize(newSize)
	if allocSize < current {
		return fmt.Errorf("volume %s shrink from %d to %d is not allowed", volumeID, current, allocSize)
	}
	if p.used()-current+allocSize > p.total {
		return fmt.Errorf("%w: %s backend cannot grow volume %s to %d",
			baseerr.ErrorInsufficientCapacity, p.kind, volumeID, allocSize)
	}
	p.allocated[volumeID] = allocSize
	ll.Infof("Resized %s volume %s to %d bytes", p.kind, volumeID, allocSize)
	return nil
}
