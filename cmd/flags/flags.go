package flags

import (
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/ruteri/marketplace-bulk-provisioner/httpserver"
	"github.com/ruteri/marketplace-bulk-provisioner/marketplace"
	"github.com/urfave/cli/v2"

	projectcommon "github.com/ruteri/marketplace-bulk-provisioner/common"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := projectcommon.SetupLogger(&projectcommon.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: projectcommon.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String(StatusAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		GracefulShutdownDuration: 5 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// ChainConfig builds the marketplace configuration from the chain flags.
func ChainConfig(cCtx *cli.Context) marketplace.ChainConfig {
	config := marketplace.DefaultChainConfig()
	config.ChainID = cCtx.Int64(ChainIDFlag.Name)
	config.Host = cCtx.String(ChainHostFlag.Name)
	config.SMSURL = cCtx.String(SMSURLFlag.Name)
	config.MarketAPIURL = cCtx.String(MarketAPIFlag.Name)
	config.IPFSGatewayURL = cCtx.String(IPFSGatewayFlag.Name)
	config.IPFSUploadURL = cCtx.String(IPFSUploadFlag.Name)
	config.ResultProxyURL = cCtx.String(ResultProxyFlag.Name)
	config.Hub = common.HexToAddress(cCtx.String(HubFlag.Name))
	config.AppRegistry = common.HexToAddress(cCtx.String(AppRegistryFlag.Name))
	config.DatasetRegistry = common.HexToAddress(cCtx.String(DatasetRegistryFlag.Name))

	if gasPrice := cCtx.Int64(GasPriceFlag.Name); gasPrice >= 0 {
		config.GasPrice = big.NewInt(gasPrice)
	} else {
		config.GasPrice = nil
	}
	return config
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "bulk-provisioner",
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint on the status server",
}
var StatusAddrFlag = &cli.StringFlag{
	Name:  "status-addr",
	Value: "",
	Usage: "address to serve /livez, /readyz, /progress and /metrics on while the batch runs (disabled if empty)",
}

var ChainIDFlag = &cli.Int64Flag{
	Name:  "chain-id",
	Value: marketplace.DefaultChainID,
	Usage: "expected chain id",
}
var ChainHostFlag = &cli.StringFlag{
	Name:    "chain-host",
	Value:   marketplace.DefaultHost,
	EnvVars: []string{"CHAIN_HOST"},
	Usage:   "JSON-RPC endpoint of the chain",
}
var SMSURLFlag = &cli.StringFlag{
	Name:  "sms-url",
	Value: marketplace.DefaultSMSURL,
	Usage: "Secret Management Service endpoint",
}
var MarketAPIFlag = &cli.StringFlag{
	Name:  "market-api",
	Value: marketplace.DefaultMarketAPIURL,
	Usage: "marketplace API endpoint (reported only)",
}
var IPFSGatewayFlag = &cli.StringFlag{
	Name:  "ipfs-gateway",
	Value: marketplace.DefaultIPFSGatewayURL,
	Usage: "public IPFS gateway used to verify published content",
}
var IPFSUploadFlag = &cli.StringFlag{
	Name:  "ipfs-upload",
	Value: marketplace.DefaultIPFSUploadURL,
	Usage: "IPFS API endpoint used to add content",
}
var ResultProxyFlag = &cli.StringFlag{
	Name:  "result-proxy",
	Value: marketplace.DefaultResultProxyURL,
	Usage: "result proxy endpoint (reported only)",
}
var HubFlag = &cli.StringFlag{
	Name:  "hub",
	Value: marketplace.DefaultHubAddress.Hex(),
	Usage: "hub contract used to discover registries left empty",
}
var AppRegistryFlag = &cli.StringFlag{
	Name:  "app-registry",
	Value: marketplace.DefaultAppRegistryAddress.Hex(),
	Usage: "app registry contract address (empty to resolve through the hub)",
}
var DatasetRegistryFlag = &cli.StringFlag{
	Name:  "dataset-registry",
	Value: marketplace.DefaultDatasetRegistryAddress.Hex(),
	Usage: "dataset registry contract address (empty to resolve through the hub)",
}
var GasPriceFlag = &cli.Int64Flag{
	Name:  "gas-price",
	Value: 0,
	Usage: "fixed legacy gas price in wei, negative to let the node suggest fees",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var ChainFlags = []cli.Flag{
	ChainIDFlag,
	ChainHostFlag,
	SMSURLFlag,
	MarketAPIFlag,
	IPFSGatewayFlag,
	IPFSUploadFlag,
	ResultProxyFlag,
	HubFlag,
	AppRegistryFlag,
	DatasetRegistryFlag,
	GasPriceFlag,
}

var CommonFlags = append(append([]cli.Flag{StatusAddrFlag, PprofFlag}, LogFlags...), ChainFlags...)
