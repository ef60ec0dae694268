package provisioner

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	"github.com/dimitrisb35/volume-broker/pkg/base"
	baseerr "github.com/dimitrisb35/volume-broker/pkg/base/error"
)

var testCtx = context.Background()

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func blockClass() *apiV1.StorageClass {
	return &apiV1.StorageClass{
		Name:          "fast-block",
		Backend:       apiV1.KindBlock,
		ReclaimPolicy: apiV1.ReclaimDelete,
		BindingMode:   apiV1.BindingImmediate,
	}
}

func TestBlockProvisioner_Create(t *testing.T) {
	b := NewBlockProvisioner(base.GBYTE, testLogger())

	vol, err := b.Create(testCtx, blockClass(), 10*base.MBYTE, []string{apiV1.ModeRWO})
	assert.Nil(t, err)
	assert.NotEmpty(t, vol.ID)
	assert.Equal(t, apiV1.VolumeAvailable, vol.State)
	assert.Equal(t, "fast-block", vol.StorageClass)
	// rounded up to the extent, never below the request
	assert.GreaterOrEqual(t, vol.Size, int64(10*base.MBYTE))
	assert.Zero(t, vol.Size%blockExtent)
}

func TestBlockProvisioner_RejectsSharedModes(t *testing.T) {
	b := NewBlockProvisioner(base.GBYTE, testLogger())

	_, err := b.Create(testCtx, blockClass(), base.MBYTE, []string{apiV1.ModeRWX})
	assert.ErrorIs(t, err, baseerr.ErrorIncompatibleAccessMode)

	_, err = b.Create(testCtx, blockClass(), base.MBYTE, nil)
	assert.ErrorIs(t, err, baseerr.ErrorIncompatibleAccessMode)
}

func TestBlockProvisioner_InsufficientCapacity(t *testing.T) {
	b := NewBlockProvisioner(100*base.MBYTE, testLogger())

	_, err := b.Create(testCtx, blockClass(), 200*base.MBYTE, []string{apiV1.ModeRWO})
	assert.ErrorIs(t, err, baseerr.ErrorInsufficientCapacity)

	// pool fills up across volumes
	_, err = b.Create(testCtx, blockClass(), 60*base.MBYTE, []string{apiV1.ModeRWO})
	assert.Nil(t, err)
	_, err = b.Create(testCtx, blockClass(), 60*base.MBYTE, []string{apiV1.ModeRWO})
	assert.ErrorIs(t, err, baseerr.ErrorInsufficientCapacity)
}

func TestBlockProvisioner_DeleteIsIdempotent(t *testing.T) {
	b := NewBlockProvisioner(base.GBYTE, testLogger())

	vol, err := b.Create(testCtx, blockClass(), base.MBYTE, []string{apiV1.ModeRWO})
	assert.Nil(t, err)

	assert.Nil(t, b.Delete(testCtx, vol.ID))
	// deleting an already-absent volume is not an error
	assert.Nil(t, b.Delete(testCtx, vol.ID))
	assert.Nil(t, b.Delete(testCtx, "never-existed"))
}

func TestBlockProvisioner_Resize(t *testing.T) {
	b := NewBlockProvisioner(base.GBYTE, testLogger())

	vol, err := b.Create(testCtx, blockClass(), 10*base.MBYTE, []string{apiV1.ModeRWO})
	assert.Nil(t, err)

	assert.Nil(t, b.Resize(testCtx, vol.ID, 20*base.MBYTE))
	assert.ErrorIs(t, b.Resize(testCtx, "missing", 20*base.MBYTE), baseerr.ErrorVolumeNotFound)
	// shrink is rejected
	assert.NotNil(t, b.Resize(testCtx, vol.ID, base.MBYTE))
}

func TestBlockProvisioner_Offline(t *testing.T) {
	b := NewBlockProvisioner(base.GBYTE, testLogger())
	b.SetOnline(false)

	_, err := b.Create(testCtx, blockClass(), base.MBYTE, []string{apiV1.ModeRWO})
	assert.ErrorIs(t, err, baseerr.ErrorBackendUnavailable)
	assert.ErrorIs(t, b.Delete(testCtx, "any"), baseerr.ErrorBackendUnavailable)
	assert.ErrorIs(t, b.Resize(testCtx, "any", base.GBYTE), baseerr.ErrorBackendUnavailable)

	b.SetOnline(true)
	_, err = b.Create(testCtx, blockClass(), base.MBYTE, []string{apiV1.ModeRWO})
	assert.Nil(t, err)
}

func TestFileProvisioner_SupportsAllModes(t *testing.T) {
	f := NewFileProvisioner(base.GBYTE, testLogger())

	class := blockClass()
	class.Backend = apiV1.KindFile
	vol, err := f.Create(testCtx, class, base.MBYTE,
		[]string{apiV1.ModeRWO, apiV1.ModeROX, apiV1.ModeRWX})
	assert.Nil(t, err)
	assert.True(t, vol.HasModes([]string{apiV1.ModeRWX}))
}

func TestObjectProvisioner_ModesAndResize(t *testing.T) {
	o := NewObjectProvisioner(base.GBYTE, testLogger())

	class := blockClass()
	class.Backend = apiV1.KindObject
	_, err := o.Create(testCtx, class, base.MBYTE, []string{apiV1.ModeRWO})
	assert.ErrorIs(t, err, baseerr.ErrorIncompatibleAccessMode)

	vol, err := o.Create(testCtx, class, base.MBYTE, []string{apiV1.ModeRWX})
	assert.Nil(t, err)
	assert.ErrorIs(t, o.Resize(testCtx, vol.ID, base.GBYTE), baseerr.ErrorResizeNotSupported)
}

func TestEphemeralProvisioner_WorkloadTeardown(t *testing.T) {
	e := NewEphemeralProvisioner(base.GBYTE, testLogger())

	class := blockClass()
	class.Backend = apiV1.KindEphemeral
	ctxA := context.WithValue(testCtx, base.RequestUUID, "workload-a")
	ctxB := context.WithValue(testCtx, base.RequestUUID, "workload-b")

	volA, err := e.Create(ctxA, class, base.MBYTE, []string{apiV1.ModeRWO})
	assert.Nil(t, err)
	volB, err := e.Create(ctxB, class, base.MBYTE, []string{apiV1.ModeRWO})
	assert.Nil(t, err)

	removed := e.TeardownWorkload("workload-a")
	assert.Equal(t, []string{volA.ID}, removed)
	// teardown is idempotent per workload
	assert.Empty(t, e.TeardownWorkload("workload-a"))

	// the other workload's volume survives
	assert.ErrorIs(t, e.Resize(testCtx, volB.ID, base.GBYTE), baseerr.ErrorResizeNotSupported)
	assert.Nil(t, e.Delete(testCtx, volB.ID))
}

func TestRegistry_Dispatch(t *testing.T) {
	logger := testLogger()
	registry := NewRegistry(
		NewBlockProvisioner(base.GBYTE, logger),
		NewFileProvisioner(base.GBYTE, logger),
	)

	b, err := registry.Get(apiV1.KindBlock)
	assert.Nil(t, err)
	assert.Equal(t, apiV1.KindBlock, b.Kind())

	_, err = registry.Get(apiV1.KindObject)
	assert.NotNil(t, err)
}
