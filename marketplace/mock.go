package marketplace

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockSession mocks the MarketplaceSession interface
type MockSession struct {
	mock.Mock
}

// RegisterApp mocks the RegisterApp method
func (m *MockSession) RegisterApp(ctx context.Context, spec interfaces.AppSpec) (*interfaces.Resource, error) {
	args := m.Called(ctx, spec)
	resource, _ := args.Get(0).(*interfaces.Resource)
	return resource, args.Error(1)
}

// RegisterDataset mocks the RegisterDataset method
func (m *MockSession) RegisterDataset(ctx context.Context, spec interfaces.DatasetSpec) (*interfaces.Resource, error) {
	args := m.Called(ctx, spec)
	resource, _ := args.Get(0).(*interfaces.Resource)
	return resource, args.Error(1)
}

// PushAppSecret mocks the PushAppSecret method
func (m *MockSession) PushAppSecret(ctx context.Context, app common.Address, value string) (bool, error) {
	args := m.Called(ctx, app, value)
	return args.Bool(0), args.Error(1)
}

// PushDatasetSecret mocks the PushDatasetSecret method
func (m *MockSession) PushDatasetSecret(ctx context.Context, dataset common.Address, value string) (bool, error) {
	args := m.Called(ctx, dataset, value)
	return args.Bool(0), args.Error(1)
}

// ResolveSMSURL mocks the ResolveSMSURL method
func (m *MockSession) ResolveSMSURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockMarketplace hands out the same session to every identity.
type MockMarketplace struct {
	mock.Mock
}

// NewSession mocks the NewSession method
func (m *MockMarketplace) NewSession(ctx context.Context, identity *interfaces.Identity) (interfaces.MarketplaceSession, error) {
	args := m.Called(ctx, identity)
	session, _ := args.Get(0).(interfaces.MarketplaceSession)
	return session, args.Error(1)
}
