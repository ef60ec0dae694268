// Package binder implements the claim/volume binding state machine, the core
// of the broker. For every Pending claim it finds or provisions a volume that
// satisfies the claim's constraints and performs the binding atomically with
// respect to other concurrent claims.
package binder

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	golock "github.com/viney-shih/go-lock"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	"github.com/dimitrisb35/volume-broker/pkg/base/backoff"
	"github.com/dimitrisb35/volume-broker/pkg/catalog"
	"github.com/dimitrisb35/volume-broker/pkg/claimstore"
	"github.com/dimitrisb35/volume-broker/pkg/eventing"
	"github.com/dimitrisb35/volume-broker/pkg/metrics"
	"github.com/dimitrisb35/volume-broker/pkg/provisioner"
)

const queueCapacity = 1024

// Binder drives claim and volume lifecycle transitions. Workers process
// distinct claims in parallel; a per-claim try-lock keeps two workers off the
// same claim while per-entity versioning in the store catches every other race.
type Binder struct {
	catalog  *catalog.Catalog
	store    *claimstore.Store
	backends *provisioner.Registry

	backoff     backoff.Handler
	maxAttempts int

	recorder *eventing.Recorder
	metrics  metrics.Statistic

	workers        int
	resyncInterval time.Duration
	queue          chan string
	claimLocks     *keyedLocks

	log *logrus.Entry
}

// NewBinder is a constructor for Binder
func NewBinder(cat *catalog.Catalog, store *claimstore.Store, backends *provisioner.Registry,
	backoffHandler backoff.Handler, maxAttempts, workers int, resyncInterval time.Duration,
	recorder *eventing.Recorder, stat metrics.Statistic, logger *logrus.Logger) *Binder {
	return &Binder{
		catalog:        cat,
		store:          store,
		backends:       backends,
		backoff:        backoffHandler,
		maxAttempts:    maxAttempts,
		recorder:       recorder,
		metrics:        stat,
		workers:        workers,
		resyncInterval: resyncInterval,
		queue:          make(chan string, queueCapacity),
		claimLocks:     newKeyedLocks(),
		log:            logger.WithField("component", "Binder"),
	}
}

// Enqueue schedules a claim for processing. Never blocks: a full queue drops
// the item, the periodic resync picks it up again.
func (b *Binder) Enqueue(claimID string) {
	select {
	case b.queue <- claimID:
	default:
		b.log.WithField("method", "Enqueue").Warnf("Queue is full, claim %s deferred to resync", claimID)
	}
}

// Run starts the worker pool and the resync loop. Blocks until ctx is done.
func (b *Binder) Run(ctx context.Context) {
	ll := b.log.WithField("method", "Run")
	ll.Infof("Starting %d binder workers", b.workers)

	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.worker(ctx)
		}()
	}

	ticker := time.NewTicker(b.resyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			ll.Info("Context is done, stopping binder")
			wg.Wait()
			return
		case <-ticker.C:
			b.resync()
		}
	}
}

func (b *Binder) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case claimID := <-b.queue:
			lock := b.claimLocks.get(claimID)
			if !lock.TryLock() {
				// another worker holds this claim, resync will requeue
				continue
			}
			if err := b.processClaim(ctx, claimID); err != nil {
				b.log.WithField("claimID", claimID).Errorf("Processing failed: %v", err)
			}
			lock.Unlock()
		}
	}
}

// resync requeues every Pending claim
func (b *Binder) resync() {
	for _, claim := range b.store.ListClaims(apiV1.ClaimPending) {
		b.Enqueue(claim.ID)
	}
}

// keyedLocks hands out one CAS mutex per claim ID
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]golock.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]golock.Mutex)}
}

func (k *keyedLocks) get(id string) golock.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	lock, ok := k.locks[id]
	if !ok {
		lock = golock.NewCASMutex()
		k.locks[id] = lock
	}
	return lock
}
