// Package observer exposes read-only status and events of the broker.
// Every answer is a snapshot copy; concurrent Binder mutation never blocks a
// read and no query has side effects.
package observer

import (
	"github.com/sirupsen/logrus"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	"github.com/dimitrisb35/volume-broker/pkg/catalog"
	"github.com/dimitrisb35/volume-broker/pkg/claimstore"
	"github.com/dimitrisb35/volume-broker/pkg/eventing"
)

// Observer is a read-only projection of ClaimStore, Catalog and event history
type Observer struct {
	catalog  *catalog.Catalog
	store    *claimstore.Store
	recorder *eventing.Recorder

	log *logrus.Entry
}

// NewObserver is a constructor for Observer
func NewObserver(cat *catalog.Catalog, store *claimstore.Store, recorder *eventing.Recorder, logger *logrus.Logger) *Observer {
	return &Observer{
		catalog:  cat,
		store:    store,
		recorder: recorder,
		log:      logger.WithField("component", "Observer"),
	}
}

// Claim returns a snapshot of one claim
func (o *Observer) Claim(id string) (*apiV1.Claim, error) {
	claim, _, err := o.store.GetClaim(id)
	return claim, err
}

// Volume returns a snapshot of one volume
func (o *Observer) Volume(id string) (*apiV1.Volume, error) {
	volume, _, err := o.store.GetVolume(id)
	return volume, err
}

// Claims returns a snapshot of claims, optionally filtered by state
func (o *Observer) Claims(stateFilter string) []*apiV1.Claim {
	return o.store.ListClaims(stateFilter)
}

// Volumes returns a snapshot of volumes, optionally filtered by state
func (o *Observer) Volumes(stateFilter string) []*apiV1.Volume {
	return o.store.ListVolumes(stateFilter)
}

// Classes returns a snapshot of all registered storage classes
func (o *Observer) Classes() []*apiV1.StorageClass {
	var classes []*apiV1.StorageClass
	for sc := range o.catalog.List() {
		classes = append(classes, sc)
	}
	return classes
}

// Events returns the recorded event history of a claim or volume
func (o *Observer) Events(objectID string) []eventing.Event {
	return o.recorder.List(objectID)
}
