package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
)

type (
	Session        = interfaces.MarketplaceSession
	SessionFactory = interfaces.Marketplace
)

// ChainMarketplace opens sessions against a live registry deployment and
// a secret store.
type ChainMarketplace struct {
	config   ChainConfig
	registry *RegistryClient
	secrets  SecretStore
	closer   func()
	log      *slog.Logger
}

// NewChainMarketplace binds the registries of config on backend. Zero
// registry addresses must have been resolved beforehand.
func NewChainMarketplace(config ChainConfig, backend ChainBackend, secrets SecretStore, poll PollOpts, log *slog.Logger) (*ChainMarketplace, error) {
	if config.AppRegistry == (common.Address{}) || config.DatasetRegistry == (common.Address{}) {
		return nil, errors.New("registry addresses are not set")
	}
	return &ChainMarketplace{
		config:   config,
		registry: NewRegistryClient(backend, config.AppRegistry, config.DatasetRegistry, poll, log),
		secrets:  secrets,
		log:      log,
	}, nil
}

// Dial connects to config.Host, checks the chain id and resolves any
// registry left unset through the hub.
func Dial(ctx context.Context, config ChainConfig, secrets SecretStore, log *slog.Logger) (*ChainMarketplace, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, config.Host)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", config.Host, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("could not read chain id from %s: %w", config.Host, err)
	}
	if chainID.Int64() != config.ChainID {
		client.Close()
		return nil, fmt.Errorf("chain id mismatch: %s reports %s, expected %d", config.Host, chainID, config.ChainID)
	}

	if config.AppRegistry == (common.Address{}) || config.DatasetRegistry == (common.Address{}) {
		app, dataset, err := ResolveRegistries(ctx, client, config.Hub)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("could not resolve registries: %w", err)
		}
		if config.AppRegistry == (common.Address{}) {
			config.AppRegistry = app
		}
		if config.DatasetRegistry == (common.Address{}) {
			config.DatasetRegistry = dataset
		}
	}

	m, err := NewChainMarketplace(config, client, secrets, DefaultPollOpts, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	m.closer = client.Close

	log.Debug("Connected to marketplace",
		slog.Int64("chain_id", config.ChainID),
		slog.String("host", config.Host),
		slog.String("app_registry", config.AppRegistry.Hex()),
		slog.String("dataset_registry", config.DatasetRegistry.Hex()),
		slog.String("sms", secrets.URL()))

	return m, nil
}

// Close releases the node connection.
func (m *ChainMarketplace) Close() {
	if m.closer != nil {
		m.closer()
	}
}

func (m *ChainMarketplace) NewSession(ctx context.Context, identity *interfaces.Identity) (interfaces.MarketplaceSession, error) {
	if identity == nil || identity.PrivateKey == nil {
		return nil, errors.New("session requires an identity with a private key")
	}

	auth, err := bind.NewKeyedTransactorWithChainID(identity.PrivateKey, big.NewInt(m.config.ChainID))
	if err != nil {
		return nil, fmt.Errorf("could not create transactor: %w", err)
	}
	if m.config.GasPrice != nil {
		auth.GasPrice = new(big.Int).Set(m.config.GasPrice)
	}

	return &chainSession{
		identity: identity,
		auth:     auth,
		registry: m.registry,
		secrets:  m.secrets,
	}, nil
}

type chainSession struct {
	identity *interfaces.Identity
	auth     *bind.TransactOpts
	registry *RegistryClient
	secrets  SecretStore
}

func (s *chainSession) RegisterApp(ctx context.Context, spec interfaces.AppSpec) (*interfaces.Resource, error) {
	return s.registry.CreateApp(ctx, s.auth, spec)
}

func (s *chainSession) RegisterDataset(ctx context.Context, spec interfaces.DatasetSpec) (*interfaces.Resource, error) {
	return s.registry.CreateDataset(ctx, s.auth, spec)
}

func (s *chainSession) PushAppSecret(ctx context.Context, app common.Address, value string) (bool, error) {
	return s.secrets.PushAppSecret(ctx, s.identity.PrivateKey, app, value)
}

func (s *chainSession) PushDatasetSecret(ctx context.Context, dataset common.Address, value string) (bool, error) {
	return s.secrets.PushDatasetSecret(ctx, s.identity.PrivateKey, dataset, value)
}

func (s *chainSession) ResolveSMSURL(ctx context.Context) (string, error) {
	return s.secrets.URL(), nil
}
