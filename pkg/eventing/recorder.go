package eventing

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// historyLimit bounds how many events are kept per object
const historyLimit = 64

// Event is a single recorded occurrence against a claim or volume
type Event struct {
	Time     time.Time `json:"time"`
	Severity string    `json:"severity"`
	Reason   string    `json:"reason"`
	Message  string    `json:"message"`
}

// Recorder keeps a bounded per-object event history. Every failed
// provisioning attempt lands here, so a Lost claim can be explained from its
// full attempt record. Reads are snapshots, safe during concurrent recording.
type Recorder struct {
	mu     sync.RWMutex
	events map[string][]Event

	log *logrus.Entry
}

// NewRecorder is a constructor for Recorder
func NewRecorder(logger *logrus.Logger) *Recorder {
	return &Recorder{
		events: make(map[string][]Event),
		log:    logger.WithField("component", "EventRecorder"),
	}
}

// Eventf records an event against objectID
func (r *Recorder) Eventf(objectID, severity, reason, messageFmt string, args ...interface{}) {
	event := Event{
		Time:     time.Now(),
		Severity: severity,
		Reason:   reason,
		Message:  fmt.Sprintf(messageFmt, args...),
	}

	r.mu.Lock()
	history := append(r.events[objectID], event)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	r.events[objectID] = history
	r.mu.Unlock()

	r.log.WithField("objectID", objectID).Debugf("%s %s: %s", severity, reason, event.Message)
}

// List returns a snapshot of the event history for objectID, oldest first
func (r *Recorder) List(objectID string) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Event(nil), r.events[objectID]...)
}

// Forget drops the history for objectID
func (r *Recorder) Forget(objectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.events, objectID)
}
