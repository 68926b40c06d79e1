package interfaces

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Marketplace creates sessions bound to a single identity.
type Marketplace interface {
	// NewSession returns a session that signs every transaction and secret
	// push with identity.
	NewSession(ctx context.Context, identity *Identity) (MarketplaceSession, error)
}

// MarketplaceSession is the marketplace client of one provisioning unit.
type MarketplaceSession interface {
	// RegisterApp registers an application and waits for it to be mined.
	RegisterApp(ctx context.Context, spec AppSpec) (*Resource, error)

	// RegisterDataset registers a dataset and waits for it to be mined.
	RegisterDataset(ctx context.Context, spec DatasetSpec) (*Resource, error)

	// PushAppSecret returns false if a secret is already set for the app.
	PushAppSecret(ctx context.Context, app common.Address, value string) (bool, error)

	// PushDatasetSecret returns false if a secret is already set for the dataset.
	PushDatasetSecret(ctx context.Context, dataset common.Address, value string) (bool, error)

	// ResolveSMSURL returns the secret management endpoint in use.
	ResolveSMSURL(ctx context.Context) (string, error)
}
