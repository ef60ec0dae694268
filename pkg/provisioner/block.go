package provisioner

import (
	"context"

	"github.com/sirupsen/logrus"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
	"github.com/dimitrisb35/volume-broker/pkg/base"
)

// blockExtent is the physical extent block volumes are carved at
const blockExtent = 4 * base.MBYTE

// BlockProvisioner serves raw block volumes. Block devices attach to a single
// node, so shared filesystem modes are rejected.
type BlockProvisioner struct {
	*pool
}

// NewBlockProvisioner is a constructor for BlockProvisioner
func NewBlockProvisioner(totalCapacity int64, logger *logrus.Logger) *BlockProvisioner {
	return &BlockProvisioner{
		pool: newPool(apiV1.KindBlock, totalCapacity, blockExtent,
			[]string{apiV1.ModeRWO, apiV1.ModeRWOP, apiV1.ModeROX}, logger),
	}
}

// Create provisions a block volume
func (b *BlockProvisioner) Create(_ context.Context, class *apiV1.StorageClass, size int64, accessModes []string) (*apiV1.Volume, error) {
	return b.create(class, size, accessModes)
}

// Delete destroys a block volume, idempotently
func (b *BlockProvisioner) Delete(_ context.Context, volumeID string) error {
	return b.delete(volumeID)
}

// Resize grows a block volume
func (b *BlockProvisioner) Resize(_ context.Context, volumeID string, newSize int64) error {
	return b.resize(volumeID, newSize)
}
