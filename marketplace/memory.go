package marketplace

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
)

// MemoryMarketplace is an in-memory marketplace for dry runs and tests.
// Registrations mint deterministic addresses and secrets are kept in maps.
// The Fail* hooks inject failures; a nil hook never fails.
type MemoryMarketplace struct {
	mutex    sync.RWMutex
	apps     map[common.Address]*interfaces.Resource
	datasets map[common.Address]*interfaces.Resource
	secrets  map[string]string
	nonce    uint64
	smsURL   string

	FailRegisterApp     func(spec interfaces.AppSpec) error
	FailRegisterDataset func(spec interfaces.DatasetSpec) error
	FailPushSecret      func(resource common.Address) error
}

var (
	memoryAppRegistry     = common.HexToAddress("0x00000000000000000000000000000000000a4401")
	memoryDatasetRegistry = common.HexToAddress("0x00000000000000000000000000000000000da7a5")
)

func NewMemoryMarketplace() *MemoryMarketplace {
	return &MemoryMarketplace{
		apps:     make(map[common.Address]*interfaces.Resource),
		datasets: make(map[common.Address]*interfaces.Resource),
		secrets:  make(map[string]string),
		smsURL:   "memory://sms",
	}
}

func (m *MemoryMarketplace) NewSession(ctx context.Context, identity *interfaces.Identity) (interfaces.MarketplaceSession, error) {
	if identity == nil {
		return nil, errors.New("session requires an identity")
	}
	return &memorySession{market: m, owner: identity.Address}, nil
}

// App returns a registered app.
func (m *MemoryMarketplace) App(address common.Address) (*interfaces.Resource, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	r, ok := m.apps[address]
	return r, ok
}

// Dataset returns a registered dataset.
func (m *MemoryMarketplace) Dataset(address common.Address) (*interfaces.Resource, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	r, ok := m.datasets[address]
	return r, ok
}

// Secret returns the secret stored for a resource.
func (m *MemoryMarketplace) Secret(address common.Address) (string, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	v, ok := m.secrets[address.Hex()]
	return v, ok
}

// SetSecret presets a secret, as if pushed by an earlier run.
func (m *MemoryMarketplace) SetSecret(address common.Address, value string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.secrets[address.Hex()] = value
}

func (m *MemoryMarketplace) mint(registry common.Address, name string, owner common.Address, into map[common.Address]*interfaces.Resource) *interfaces.Resource {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.nonce++
	resource := &interfaces.Resource{
		Address: crypto.CreateAddress(registry, m.nonce),
		TxHash:  crypto.Keccak256Hash(registry.Bytes(), owner.Bytes(), []byte(name), []byte(fmt.Sprint(m.nonce))),
		Name:    name,
		Owner:   owner,
	}
	into[resource.Address] = resource
	return resource
}

func (m *MemoryMarketplace) pushSecret(owner, resource common.Address, isApp bool, value string) (bool, error) {
	if m.FailPushSecret != nil {
		if err := m.FailPushSecret(resource); err != nil {
			return false, fmt.Errorf("%w: %v", interfaces.ErrSecret, err)
		}
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	registered := m.datasets[resource]
	if isApp {
		registered = m.apps[resource]
	}
	if registered == nil {
		return false, fmt.Errorf("%w: unknown resource %s", interfaces.ErrSecret, resource.Hex())
	}
	if registered.Owner != owner {
		return false, fmt.Errorf("%w: %s is not the owner of %s", interfaces.ErrSecret, owner.Hex(), resource.Hex())
	}

	if _, ok := m.secrets[resource.Hex()]; ok {
		return false, nil
	}
	m.secrets[resource.Hex()] = value
	return true, nil
}

type memorySession struct {
	market *MemoryMarketplace
	owner  common.Address
}

func (s *memorySession) RegisterApp(ctx context.Context, spec interfaces.AppSpec) (*interfaces.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrProvision, err)
	}
	if s.market.FailRegisterApp != nil {
		if err := s.market.FailRegisterApp(spec); err != nil {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrProvision, err)
		}
	}
	if err := ValidateAppTemplate(spec.AppTemplate); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrProvision, err)
	}
	return s.market.mint(memoryAppRegistry, spec.Name, spec.Owner, s.market.apps), nil
}

func (s *memorySession) RegisterDataset(ctx context.Context, spec interfaces.DatasetSpec) (*interfaces.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrProvision, err)
	}
	if s.market.FailRegisterDataset != nil {
		if err := s.market.FailRegisterDataset(spec); err != nil {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrProvision, err)
		}
	}
	if _, err := hexToBytes32(spec.Checksum); err != nil {
		return nil, fmt.Errorf("%w: dataset checksum: %v", interfaces.ErrProvision, err)
	}
	return s.market.mint(memoryDatasetRegistry, spec.Name, spec.Owner, s.market.datasets), nil
}

func (s *memorySession) PushAppSecret(ctx context.Context, app common.Address, value string) (bool, error) {
	return s.market.pushSecret(s.owner, app, true, value)
}

func (s *memorySession) PushDatasetSecret(ctx context.Context, dataset common.Address, value string) (bool, error) {
	return s.market.pushSecret(s.owner, dataset, false, value)
}

func (s *memorySession) ResolveSMSURL(ctx context.Context) (string, error) {
	return s.market.smsURL, nil
}
