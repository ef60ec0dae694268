// Package catalog is the registry of StorageClasses known to the broker
package catalog

import (
	"fmt"
	"iter"
	"sync"

	"github.com/sirupsen/logrus"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	baseerr "github.com/dimitrisb35/volume-broker/pkg/base/error"
)

// Catalog keeps StorageClass records keyed by unique name.
// Registration is rare, lookups are frequent, so a plain RWMutex is enough.
type Catalog struct {
	mu      sync.RWMutex
	classes map[string]*apiV1.StorageClass

	log *logrus.Entry
}

// NewCatalog is a constructor for Catalog
func NewCatalog(logger *logrus.Logger) *Catalog {
	return &Catalog{
		classes: make(map[string]*apiV1.StorageClass),
		log:     logger.WithField("component", "Catalog"),
	}
}

// Register adds sc to the catalog.
// Returns ErrorDuplicateClass if a class with the same name is already registered
func (c *Catalog) Register(sc *apiV1.StorageClass) error {
	if err := validate(sc); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.classes[sc.Name]; ok {
		return fmt.Errorf("%w: %s", baseerr.ErrorDuplicateClass, sc.Name)
	}
	c.classes[sc.Name] = sc.DeepCopy()
	c.log.WithField("method", "Register").Infof("Registered storage class %s (%s, %s, %s)",
		sc.Name, sc.Backend, sc.ReclaimPolicy, sc.BindingMode)
	return nil
}

// Lookup returns the class registered under name or ErrorClassNotFound
func (c *Catalog) Lookup(name string) (*apiV1.StorageClass, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sc, ok := c.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", baseerr.ErrorClassNotFound, name)
	}
	return sc.DeepCopy(), nil
}

// List returns a restartable sequence over a snapshot of all registered classes.
// Order is unspecified.
func (c *Catalog) List() iter.Seq[*apiV1.StorageClass] {
	c.mu.RLock()
	snapshot := make([]*apiV1.StorageClass, 0, len(c.classes))
	for _, sc := range c.classes {
		snapshot = append(snapshot, sc.DeepCopy())
	}
	c.mu.RUnlock()

	return func(yield func(*apiV1.StorageClass) bool) {
		for _, sc := range snapshot {
			if !yield(sc) {
				return
			}
		}
	}
}

func validate(sc *apiV1.StorageClass) error {
	if sc == nil || sc.Name == "" {
		return fmt.Errorf("storage class name must not be empty")
	}
	switch sc.Backend {
	case apiV1.KindBlock, apiV1.KindFile, apiV1.KindObject, apiV1.KindEphemeral:
	default:
		return fmt.Errorf("storage class %s has unknown backend kind %q", sc.Name, sc.Backend)
	}
	switch sc.ReclaimPolicy {
	case apiV1.ReclaimDelete, apiV1.ReclaimRetain:
	default:
		return fmt.Errorf("storage class %s has unknown reclaim policy %q", sc.Name, sc.ReclaimPolicy)
	}
	switch sc.BindingMode {
	case apiV1.BindingImmediate, apiV1.BindingWaitForFirstConsumer:
	default:
		return fmt.Errorf("storage class %s has unknown binding mode %q", sc.Name, sc.BindingMode)
	}
	return nil
}
