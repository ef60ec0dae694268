package eventing

import (
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func setupRecorderTest() *Recorder {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRecorder(logger)
}

func TestRecorder_EventfAndList(t *testing.T) {
	recorder := setupRecorderTest()

	recorder.Eventf("claim-1", WarningType, BackendUnavailable, "attempt %d/%d", 1, 5)
	recorder.Eventf("claim-1", NormalType, ClaimBound, "bound to volume %s", "vol-1")
	recorder.Eventf("vol-1", NormalType, VolumeBound, "bound by claim %s", "claim-1")

	events := recorder.List("claim-1")
	assert.Len(t, events, 2)
	assert.Equal(t, BackendUnavailable, events[0].Reason)
	assert.Equal(t, "attempt 1/5", events[0].Message)
	assert.Equal(t, ClaimBound, events[1].Reason)
	assert.Len(t, recorder.List("vol-1"), 1)
	assert.Empty(t, recorder.List("claim-2"))
}

func TestRecorder_ListIsSnapshot(t *testing.T) {
	recorder := setupRecorderTest()
	recorder.Eventf("claim-1", NormalType, ClaimBound, "bound")

	snapshot := recorder.List("claim-1")
	snapshot[0].Message = "mutated"

	assert.Equal(t, "bound", recorder.List("claim-1")[0].Message)
}

func TestRecorder_HistoryIsBounded(t *testing.T) {
	recorder := setupRecorderTest()

	for i := 0; i < historyLimit+10; i++ {
		recorder.Eventf("claim-1", WarningType, BackendUnavailable, "attempt %d", i)
	}

	events := recorder.List("claim-1")
	assert.Len(t, events, historyLimit)
	// oldest entries fell off, newest survived
	assert.Equal(t, "attempt 10", events[0].Message)
	assert.Equal(t, fmt.Sprintf("attempt %d", historyLimit+9), events[len(events)-1].Message)
}

func TestRecorder_Forget(t *testing.T) {
	recorder := setupRecorderTest()
	recorder.Eventf("claim-1", NormalType, ClaimBound, "bound")
	recorder.Eventf("claim-2", NormalType, ClaimBound, "bound")

	recorder.Forget("claim-1")

	assert.Empty(t, recorder.List("claim-1"))
	assert.Len(t, recorder.List("claim-2"), 1)
}

func TestRecorder_ConcurrentRecording(t *testing.T) {
	recorder := setupRecorderTest()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				recorder.Eventf("claim-1", NormalType, ProvisioningRetried, "worker %d attempt %d", worker, j)
				recorder.List("claim-1")
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, recorder.List("claim-1"), historyLimit)
}
