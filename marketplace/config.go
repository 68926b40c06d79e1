package marketplace

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
	"gopkg.in/yaml.v3"
)

// Bellecour sidechain and staging service endpoints.
const (
	DefaultChainID        = 134
	DefaultHost           = "https://bellecour.iex.ec"
	DefaultSMSURL         = "https://sms.staging.iex.ec"
	DefaultMarketAPIURL   = "https://api.market.stagingv8.iex.ec"
	DefaultIPFSGatewayURL = "https://ipfs-gateway.stagingv8.iex.ec"
	DefaultIPFSUploadURL  = "https://ipfs-gateway.stagingv8.iex.ec:443"
	DefaultResultProxyURL = "https://result.stagingv8.iex.ec"
)

var (
	DefaultHubAddress             = common.HexToAddress("0x3eca1B216A7DF1C7689aEb259fFB83ADFB894E7f")
	DefaultAppRegistryAddress     = common.HexToAddress("0xB1C52075b276f87b1834919167312221d50c9D16")
	DefaultDatasetRegistryAddress = common.HexToAddress("0x799DAa22654128d0C64d5b79eac9283008158730")
)

// ChainConfig locates the marketplace deployment: the chain, its registries
// and the off-chain services around them.
type ChainConfig struct {
	ChainID        int64
	Host           string
	SMSURL         string
	MarketAPIURL   string
	IPFSGatewayURL string
	IPFSUploadURL  string
	ResultProxyURL string

	// Hub is used to discover registries left zero.
	Hub             common.Address
	AppRegistry     common.Address
	DatasetRegistry common.Address

	// GasPrice forces legacy transactions at a fixed price. Nil lets the
	// node suggest fees.
	GasPrice *big.Int
}

// DefaultChainConfig returns the Bellecour configuration. Bellecour does not
// charge for gas, which is what lets freshly generated identities transact.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		ChainID:         DefaultChainID,
		Host:            DefaultHost,
		SMSURL:          DefaultSMSURL,
		MarketAPIURL:    DefaultMarketAPIURL,
		IPFSGatewayURL:  DefaultIPFSGatewayURL,
		IPFSUploadURL:   DefaultIPFSUploadURL,
		ResultProxyURL:  DefaultResultProxyURL,
		Hub:             DefaultHubAddress,
		AppRegistry:     DefaultAppRegistryAddress,
		DatasetRegistry: DefaultDatasetRegistryAddress,
		GasPrice:        big.NewInt(0),
	}
}

func (c *ChainConfig) Validate() error {
	if c.ChainID <= 0 {
		return fmt.Errorf("invalid chain id %d", c.ChainID)
	}
	if c.Host == "" {
		return errors.New("chain host is required")
	}
	if c.SMSURL == "" {
		return errors.New("sms url is required")
	}
	if c.IPFSGatewayURL == "" || c.IPFSUploadURL == "" {
		return errors.New("ipfs gateway and upload urls are required")
	}
	if (c.AppRegistry == common.Address{} || c.DatasetRegistry == common.Address{}) && (c.Hub == common.Address{}) {
		return errors.New("registry addresses or a hub address are required")
	}
	return nil
}

// DefaultAppTemplate is a SCONE-enabled hello world image.
var DefaultAppTemplate = interfaces.AppTemplate{
	Type:      "DOCKER",
	Multiaddr: "docker.io/iexechub/python-hello-world:8.0.0-sconify-5.9.1-v15-production",
	Checksum:  "0x15de77fd7ac448028884256b3ab376e7d4560e9ef6acf0594ea0b3c031d5d395",
	MREnclave: interfaces.MREnclave{
		Framework:   "SCONE",
		Version:     "v5.9",
		Entrypoint:  "python /app/app.py",
		HeapSize:    1073741824,
		Fingerprint: "2d4b9efd066d0bb058b8da79bf8551be7d244779bc41d03a12201a4004779609",
	},
}

// LoadAppTemplate reads a YAML (or JSON) app template. Fields missing from
// the file keep their DefaultAppTemplate value.
func LoadAppTemplate(path string) (interfaces.AppTemplate, error) {
	template := DefaultAppTemplate

	data, err := os.ReadFile(path)
	if err != nil {
		return template, fmt.Errorf("could not read app template: %w", err)
	}
	if err := yaml.Unmarshal(data, &template); err != nil {
		return template, fmt.Errorf("could not parse app template %s: %w", path, err)
	}
	if err := ValidateAppTemplate(template); err != nil {
		return template, fmt.Errorf("invalid app template %s: %w", path, err)
	}
	return template, nil
}

// ValidateAppTemplate checks the fields the registry needs.
func ValidateAppTemplate(t interfaces.AppTemplate) error {
	if t.Type == "" {
		return errors.New("type is required")
	}
	if t.Multiaddr == "" {
		return errors.New("multiaddr is required")
	}
	checksum := strings.TrimPrefix(t.Checksum, "0x")
	if len(checksum) != 64 {
		return fmt.Errorf("checksum must be 32 bytes of hex, got %q", t.Checksum)
	}
	if _, err := hexToBytes32(t.Checksum); err != nil {
		return err
	}
	return nil
}
