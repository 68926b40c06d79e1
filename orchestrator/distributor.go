package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
)

// SecretDistributor pushes secrets through a session and folds the result
// into a SecretOutcome.
type SecretDistributor struct {
	timeout time.Duration
}

func NewSecretDistributor(timeout time.Duration) *SecretDistributor {
	return &SecretDistributor{timeout: timeout}
}

func (d *SecretDistributor) PushAppSecret(ctx context.Context, session interfaces.MarketplaceSession, app common.Address, value string) (interfaces.SecretOutcome, error) {
	return d.push(ctx, app, value, session.PushAppSecret)
}

func (d *SecretDistributor) PushDatasetSecret(ctx context.Context, session interfaces.MarketplaceSession, dataset common.Address, value string) (interfaces.SecretOutcome, error) {
	return d.push(ctx, dataset, value, session.PushDatasetSecret)
}

func (d *SecretDistributor) push(ctx context.Context, resource common.Address, value string, push func(context.Context, common.Address, string) (bool, error)) (interfaces.SecretOutcome, error) {
	if value == "" {
		return interfaces.SecretFailed, fmt.Errorf("%w: empty secret for %s", interfaces.ErrSecret, resource.Hex())
	}

	ctx, cancel := withStageTimeout(ctx, d.timeout)
	defer cancel()

	pushed, err := push(ctx, resource, value)
	switch {
	case errors.Is(err, interfaces.ErrSecretAlreadyExists):
		return interfaces.SecretAlreadyExists, nil
	case err != nil && errors.Is(err, interfaces.ErrSecret):
		return interfaces.SecretFailed, err
	case err != nil:
		return interfaces.SecretFailed, fmt.Errorf("%w: %v", interfaces.ErrSecret, err)
	case pushed:
		return interfaces.SecretPushed, nil
	default:
		return interfaces.SecretAlreadyExists, nil
	}
}
