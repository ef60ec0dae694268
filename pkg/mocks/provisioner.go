package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	apiV1 "github.com/dimitrisb35/volume-broker/api/v1"
)

// ProvisionerMock is a mock implementation of the provisioner.Provisioner contract
type ProvisionerMock struct {
	mock.Mock

	BackendKind string
}

func (p *ProvisionerMock) Kind() string {
	if p.BackendKind != "" {
		return p.BackendKind
	}
	return apiV1.KindBlock
}

func (p *ProvisionerMock) Create(ctx context.Context, class *apiV1.StorageClass, size int64, accessModes []string) (*apiV1.Volume, error) {
	args := p.Mock.Called(ctx, class, size, accessModes)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apiV1.Volume), args.Error(1)
}

func (p *ProvisionerMock) Delete(ctx context.Context, volumeID string) error {
	args := p.Mock.Called(ctx, volumeID)
	return args.Error(0)
}

func (p *ProvisionerMock) Resize(ctx context.Context, volumeID string, newSize int64) error {
	args := p.Mock.Called(ctx, volumeID, newSize)
	return args.Error(0)
}

// BackoffMock is a mock backoff handler with a fixed delay schedule
type BackoffMock struct {
	mock.Mock
}

func (b *BackoffMock) Handle(retries int) (delay time.Duration) {
	args := b.Mock.Called(retries)
	return args.Get(0).(time.Duration)
}
