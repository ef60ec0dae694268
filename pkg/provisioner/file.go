package provisioner

import (
	"context"

	"github.com/sirupsen/logrus"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	"github.com/dimitrisb35/volume-broker/pkg/base"
)

const fileExtent = base.MBYTE

// FileProvisioner serves shared filesystem volumes. Every access mode is
// supported, including concurrent multi-writer RWX.
type FileProvisioner struct {
	*pool
}

// NewFileProvisioner is a constructor for FileProvisioner
func NewFileProvisioner(totalCapacity int64, logger *logrus.Logger) *FileProvisioner {
	return &FileProvisioner{
		pool: newPool(apiV1.KindFile, totalCapacity, fileExtent,
			[]string{apiV1.ModeRWO, apiV1.ModeRWOP, apiV1.ModeROX, apiV1.ModeRWX}, logger),
	}
}

// Create provisions a file volume
func (f *FileProvisioner) Create(_ context.Context, class *apiV1.StorageClass, size int64, accessModes []string) (*apiV1.Volume, error) {
	return f.create(class, size, accessModes)
}

// Delete destroys a file volume, idempotently
func (f *FileProvisioner) Delete(_ context.Context, volumeID string) error {
	return f.delete(volumeID)
}

// Resize grows a file volume
func (f *FileProvisioner) Resize(_ context.Context, volumeID string, newSize int64) error {
	return f.resize(volumeID, newSize)
}
