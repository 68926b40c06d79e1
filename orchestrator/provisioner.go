package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
	"github.com/ruteri/marketplace-bulk-provisioner/marketplace"
)

// ResourceProvisioner registers the app and dataset of a unit. The app
// template is fixed at construction and shared by every unit.
type ResourceProvisioner struct {
	template interfaces.AppTemplate
	timeout  time.Duration
}

// NewResourceProvisioner validates template. A zero timeout leaves
// registrations bounded by the caller's context only.
func NewResourceProvisioner(template interfaces.AppTemplate, timeout time.Duration) (*ResourceProvisioner, error) {
	if err := marketplace.ValidateAppTemplate(template); err != nil {
		return nil, fmt.Errorf("invalid app template: %w", err)
	}
	return &ResourceProvisioner{template: template, timeout: timeout}, nil
}

func (p *ResourceProvisioner) RegisterApp(ctx context.Context, session interfaces.MarketplaceSession, name string, owner common.Address) (*interfaces.Resource, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: app owner is not set", interfaces.ErrProvision)
	}

	spec := interfaces.AppSpec{AppTemplate: p.template, Owner: owner}
	spec.Name = name

	ctx, cancel := withStageTimeout(ctx, p.timeout)
	defer cancel()

	resource, err := session.RegisterApp(ctx, spec)
	if err != nil {
		return nil, asProvisionError(err)
	}
	return resource, nil
}

func (p *ResourceProvisioner) RegisterDataset(ctx context.Context, session interfaces.MarketplaceSession, name, locator, checksum string, owner common.Address) (*interfaces.Resource, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: dataset owner is not set", interfaces.ErrProvision)
	}

	ctx, cancel := withStageTimeout(ctx, p.timeout)
	defer cancel()

	resource, err := session.RegisterDataset(ctx, interfaces.DatasetSpec{
		Name:      name,
		Owner:     owner,
		Multiaddr: locator,
		Checksum:  checksum,
	})
	if err != nil {
		return nil, asProvisionError(err)
	}
	return resource, nil
}

func asProvisionError(err error) error {
	if errors.Is(err, interfaces.ErrProvision) {
		return err
	}
	return fmt.Errorf("%w: %v", interfaces.ErrProvision, err)
}

func withStageTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
