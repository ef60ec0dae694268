package provisioner

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	baseerr "github.com/dimitrisb35/volume-broker/pkg/base/error"
)

// ObjectProvisioner serves bucket-style object storage. Buckets are shared by
// nature, so only multi-reader modes make sense; node-exclusive modes are
// rejected and buckets never resize, they grow.
type ObjectProvisioner struct {
	*pool
}

// NewObjectProvisioner is a constructor for ObjectProvisioner
func NewObjectProvisioner(totalCapacity int64, logger *logrus.Logger) *ObjectProvisioner {
	return &ObjectProvisioner{
		pool: newPool(apiV1.KindObject, totalCapacity, 0,
			[]string{apiV1.ModeROX, apiV1.ModeRWX}, logger),
	}
}

// Create provisions an object bucket
func (o *ObjectProvisioner) Create(_ context.Context, class *apiV1.StorageClass, size int64, accessModes []string) (*apiV1.Volume, error) {
	return o.create(class, size, accessModes)
}

// Delete destroys an object bucket, idempotently
func (o *ObjectProvisioner) Delete(_ context.Context, volumeID string) error {
	return o.delete(volumeID)
}

// Resize always fails: bucket quotas are fixed at creation
func (o *ObjectProvisioner) Resize(_ context.Context, volumeID string, _ int64) error {
	return fmt.Errorf("%w: object buckets do not resize (volume %s)", baseerr.ErrorResizeNotSupported, volumeID)
}
