// Package provisioner defines the backend plugin contract and the reference
// in-memory backends for every supported kind
package provisioner

import (
	"context"
	"fmt"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
)

// Provisioner is the capability contract every storage backend implements.
// Create and Resize may block on vendor I/O; callers must treat them as
// suspension points and never hold store locks across them.
type Provisioner interface {
	// Kind returns the backend kind this provisioner serves
	Kind() string
	// Create provisions a volume of at least size bytes supporting accessModes.
	// Fails with ErrorBackendUnavailable, ErrorInsufficientCapacity or
	// ErrorIncompatibleAccessMode
	Create(ctx context.Context, class *apiV1.StorageClass, size int64, accessModes []string) (*apiV1.Volume, error)
	// Delete destroys the backing volume. Idempotent: deleting an absent
	// volume is not an error. Fails with ErrorBackendUnavailable
	Delete(ctx context.Context, volumeID string) error
	// Resize grows the backing volume to newSize bytes.
	// Fails with ErrorBackendUnavailable, ErrorVolumeNotFound or ErrorResizeNotSupported
	Resize(ctx context.Context, volumeID string, newSize int64) error
}

// Registry dispatches to the Provisioner registered for a backend kind
type Registry struct {
	backends map[string]Provisioner
}

// NewRegistry is a constructor for Registry
func NewRegistry(backends ...Provisioner) *Registry {
	r := &Registry{backends: make(map[string]Provisioner, len(backends))}
	for _, b := range backends {
		r.backends[b.Kind()] = b
	}
	return r
}

// Get returns the Provisioner serving kind
func (r *Registry) Get(kind string) (Provisioner, error) {
	b, ok := r.backends[kind]
	if !ok {
		return nil, fmt.Errorf("no provisioner registered for backend kind %q", kind)
	}
	return b, nil
}
