package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/multiformats/go-multiaddr"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
)

const registryABIJSON = `[
  {"type":"function","name":"createApp","stateMutability":"nonpayable",
   "inputs":[{"name":"_appOwner","type":"address"},{"name":"_appName","type":"string"},{"name":"_appType","type":"string"},{"name":"_appMultiaddr","type":"bytes"},{"name":"_appChecksum","type":"bytes32"},{"name":"_appMREnclave","type":"bytes"}],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"createDataset","stateMutability":"nonpayable",
   "inputs":[{"name":"_datasetOwner","type":"address"},{"name":"_datasetName","type":"string"},{"name":"_datasetMultiaddr","type":"bytes"},{"name":"_datasetChecksum","type":"bytes32"}],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"event","name":"Transfer","anonymous":false,
   "inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]}
]`

const hubABIJSON = `[
  {"type":"function","name":"appregistry","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"datasetregistry","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

var (
	registryABI = mustParseABI(registryABIJSON)
	hubABI      = mustParseABI(hubABIJSON)

	// ErrNoTransferEvent is returned when a mined registration carries no
	// Transfer log from the registry.
	ErrNoTransferEvent = errors.New("no Transfer event in receipt")
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ChainBackend is what the registry client needs from an Ethereum node.
// *ethclient.Client and the simulated backend client satisfy it.
type ChainBackend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// PollOpts bounds receipt polling. The overall wait is bounded by the
// caller's context.
type PollOpts struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultPollOpts = PollOpts{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// RegistryClient registers apps and datasets on the marketplace registries.
// Registries are ERC-721 collections: the token id of a freshly minted
// resource is its address.
type RegistryClient struct {
	backend ChainBackend

	appRegistryAddress     common.Address
	datasetRegistryAddress common.Address
	appRegistry            *bind.BoundContract
	datasetRegistry        *bind.BoundContract

	poll PollOpts
	log  *slog.Logger
}

// NewRegistryClient binds the app and dataset registries at the given
// addresses.
func NewRegistryClient(backend ChainBackend, appRegistry, datasetRegistry common.Address, poll PollOpts, log *slog.Logger) *RegistryClient {
	return &RegistryClient{
		backend:                backend,
		appRegistryAddress:     appRegistry,
		datasetRegistryAddress: datasetRegistry,
		appRegistry:            bind.NewBoundContract(appRegistry, registryABI, backend, backend, backend),
		datasetRegistry:        bind.NewBoundContract(datasetRegistry, registryABI, backend, backend, backend),
		poll:                   poll,
		log:                    log,
	}
}

// ResolveRegistries reads the registry addresses from the hub contract.
func ResolveRegistries(ctx context.Context, backend bind.ContractBackend, hub common.Address) (app, dataset common.Address, err error) {
	contract := bind.NewBoundContract(hub, hubABI, backend, backend, backend)
	opts := &bind.CallOpts{Context: ctx}

	call := func(method string) (common.Address, error) {
		var out []interface{}
		if err := contract.Call(opts, &out, method); err != nil {
			return common.Address{}, fmt.Errorf("hub %s: %w", method, err)
		}
		if len(out) != 1 {
			return common.Address{}, fmt.Errorf("hub %s: unexpected output", method)
		}
		addr, ok := out[0].(common.Address)
		if !ok || addr == (common.Address{}) {
			return common.Address{}, fmt.Errorf("hub %s: no registry", method)
		}
		return addr, nil
	}

	if app, err = call("appregistry"); err != nil {
		return app, dataset, err
	}
	dataset, err = call("datasetregistry")
	return app, dataset, err
}

// CreateApp sends a createApp transaction signed by auth and waits for it
// to be mined. Registration transactions are never resubmitted.
func (c *RegistryClient) CreateApp(ctx context.Context, auth *bind.TransactOpts, spec interfaces.AppSpec) (*interfaces.Resource, error) {
	checksum, err := hexToBytes32(spec.Checksum)
	if err != nil {
		return nil, fmt.Errorf("%w: app checksum: %v", interfaces.ErrProvision, err)
	}
	mrenclave, err := encodeMREnclave(spec.MREnclave)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrProvision, err)
	}

	tx, err := c.appRegistry.Transact(withContext(ctx, auth), "createApp",
		spec.Owner, spec.Name, spec.Type, encodeMultiaddr(spec.Multiaddr), checksum, mrenclave)
	if err != nil {
		return nil, fmt.Errorf("%w: createApp: %v", interfaces.ErrProvision, err)
	}

	return c.awaitResource(ctx, tx, c.appRegistryAddress, spec.Name, spec.Owner)
}

// CreateDataset sends a createDataset transaction signed by auth and waits
// for it to be mined.
func (c *RegistryClient) CreateDataset(ctx context.Context, auth *bind.TransactOpts, spec interfaces.DatasetSpec) (*interfaces.Resource, error) {
	checksum, err := hexToBytes32(spec.Checksum)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset checksum: %v", interfaces.ErrProvision, err)
	}

	tx, err := c.datasetRegistry.Transact(withContext(ctx, auth), "createDataset",
		spec.Owner, spec.Name, encodeMultiaddr(spec.Multiaddr), checksum)
	if err != nil {
		return nil, fmt.Errorf("%w: createDataset: %v", interfaces.ErrProvision, err)
	}

	return c.awaitResource(ctx, tx, c.datasetRegistryAddress, spec.Name, spec.Owner)
}

func (c *RegistryClient) awaitResource(ctx context.Context, tx *types.Transaction, registry common.Address, name string, owner common.Address) (*interfaces.Resource, error) {
	c.log.Debug("Registration sent",
		slog.String("name", name),
		slog.String("tx", tx.Hash().Hex()))

	receipt, err := c.waitMined(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for %s: %v", interfaces.ErrProvision, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: transaction %s reverted", interfaces.ErrProvision, tx.Hash().Hex())
	}

	address, err := resourceFromReceipt(receipt, registry)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", interfaces.ErrProvision, tx.Hash().Hex(), err)
	}

	return &interfaces.Resource{
		Address: address,
		TxHash:  tx.Hash(),
		Name:    name,
		Owner:   owner,
	}, nil
}

// waitMined polls for the receipt with exponential backoff until ctx is done.
func (c *RegistryClient) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.poll.InitialInterval
	policy.MaxInterval = c.poll.MaxInterval
	policy.MaxElapsedTime = 0

	return backoff.RetryWithData(func() (*types.Receipt, error) {
		receipt, err := c.backend.TransactionReceipt(ctx, tx.Hash())
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		return receipt, nil
	}, backoff.WithContext(policy, ctx))
}

// resourceFromReceipt returns the token id minted by registry, as an address.
func resourceFromReceipt(receipt *types.Receipt, registry common.Address) (common.Address, error) {
	transferID := registryABI.Events["Transfer"].ID
	for _, log := range receipt.Logs {
		if log.Address != registry || len(log.Topics) != 4 || log.Topics[0] != transferID {
			continue
		}
		return common.BytesToAddress(log.Topics[3].Bytes()), nil
	}
	return common.Address{}, ErrNoTransferEvent
}

func withContext(ctx context.Context, auth *bind.TransactOpts) *bind.TransactOpts {
	opts := *auth
	opts.Context = ctx
	return &opts
}

// encodeMultiaddr returns the binary multiaddr of addresses such as
// /ipfs/<cid>. Anything else, like a docker image reference, is stored as
// its UTF-8 bytes.
func encodeMultiaddr(s string) []byte {
	if addr, err := multiaddr.NewMultiaddr(s); err == nil {
		return addr.Bytes()
	}
	return []byte(s)
}

func encodeMREnclave(m interfaces.MREnclave) ([]byte, error) {
	if m == (interfaces.MREnclave{}) {
		return []byte{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("could not encode mrenclave: %w", err)
	}
	return data, nil
}

func hexToBytes32(s string) ([32]byte, error) {
	var out [32]byte
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return out, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
