package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ruteri/marketplace-bulk-provisioner/batch"
	"github.com/ruteri/marketplace-bulk-provisioner/cmd/flags"
	"github.com/ruteri/marketplace-bulk-provisioner/httpserver"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
	"github.com/ruteri/marketplace-bulk-provisioner/marketplace"
	"github.com/ruteri/marketplace-bulk-provisioner/orchestrator"
	"github.com/ruteri/marketplace-bulk-provisioner/publisher"
	"github.com/ruteri/marketplace-bulk-provisioner/storage"
	"github.com/urfave/cli/v2"
)

var runFlags = []cli.Flag{
	&cli.IntFlag{
		Name:  "count",
		Value: batch.DefaultCount,
		Usage: "number of app/dataset pairs to provision (the first argument takes precedence)",
	},
	&cli.StringFlag{
		Name:  "output",
		Value: "deployed_apps.json",
		Usage: "ledger file written at the end of the batch",
	},
	&cli.DurationFlag{
		Name:  "pacing",
		Value: batch.DefaultPacing,
		Usage: "pause between two units",
	},
	&cli.DurationFlag{
		Name:  "stage-timeout",
		Value: 3 * time.Minute,
		Usage: "upper bound for a single stage of a unit",
	},
	&cli.IntFlag{
		Name:  "max-attempts",
		Value: 3,
		Usage: "attempts for secret pushes and gateway verification",
	},
	&cli.StringFlag{
		Name:  "app-template",
		Usage: "YAML file overriding the built-in app template",
	},
	&cli.StringFlag{
		Name:    "app-secret",
		Value:   orchestrator.DefaultAppSecret,
		EnvVars: []string{"APP_SECRET"},
		Usage:   "developer secret pushed for every app",
	},
	&cli.BoolFlag{
		Name:  "dry-run",
		Usage: "provision against an in-memory marketplace instead of the chain",
	},
	&cli.StringFlag{
		Name:  "secret-backend",
		Value: "sms",
		Usage: "where secrets are pushed: 'sms' or 'vault'",
	},
	&cli.StringFlag{
		Name:    "vault-addr",
		EnvVars: []string{"VAULT_ADDR"},
		Usage:   "Vault address (secret-backend vault)",
	},
	&cli.StringFlag{
		Name:    "vault-token",
		EnvVars: []string{"VAULT_TOKEN"},
		Usage:   "Vault token (secret-backend vault)",
	},
	&cli.StringFlag{
		Name:  "vault-mount",
		Value: "secret",
		Usage: "Vault KV v2 mount (secret-backend vault)",
	},
}

func main() {
	app := &cli.App{
		Name:      "bulk-provisioner",
		Usage:     "Provision app and dataset pairs on the computation marketplace",
		ArgsUsage: "[count]",
		Flags:     append(runFlags, flags.CommonFlags...),
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	count := cCtx.Int("count")
	if cCtx.Args().Present() {
		count = parseCount(cCtx.Args().First())
	} else if count <= 0 {
		count = batch.DefaultCount
	}

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	template := marketplace.DefaultAppTemplate
	if path := cCtx.String("app-template"); path != "" {
		var err error
		if template, err = marketplace.LoadAppTemplate(path); err != nil {
			return err
		}
	}

	chain := flags.ChainConfig(cCtx)
	maxAttempts := cCtx.Int("max-attempts")
	stageTimeout := cCtx.Duration("stage-timeout")

	market, closeMarket, err := setupMarketplace(ctx, cCtx, chain, maxAttempts, stageTimeout, logger)
	if err != nil {
		return err
	}
	defer closeMarket()

	logger.Debug("Configuration",
		slog.Int("count", count),
		slog.Bool("dry_run", cCtx.Bool("dry-run")),
		slog.Int64("chain_id", chain.ChainID),
		slog.String("host", chain.Host),
		slog.String("market_api", chain.MarketAPIURL),
		slog.String("ipfs_gateway", chain.IPFSGatewayURL),
		slog.String("ipfs_upload", chain.IPFSUploadURL),
		slog.String("result_proxy", chain.ResultProxyURL),
		slog.String("app_image", template.Multiaddr))

	provisioner, err := orchestrator.NewResourceProvisioner(template, stageTimeout)
	if err != nil {
		return err
	}

	contentPublisher := publisher.NewPublisher(
		storage.NewIPFSStore(chain.IPFSUploadURL, stageTimeout, logger),
		storage.NewGatewayFetcher(storage.GatewayOpts{Timeout: stageTimeout, MaxAttempts: maxAttempts}, logger),
		chain.IPFSGatewayURL,
		logger,
	)

	progress := httpserver.NewProgress(count)
	sink := orchestrator.MultiSink{orchestrator.LogSink(logger), progress}

	var statusServer *httpserver.Server
	if cCtx.String(flags.StatusAddrFlag.Name) != "" {
		statusServer = httpserver.New(flags.ConfigureServer(cCtx, logger), progress)
		if err := statusServer.RunInBackground(); err != nil {
			return fmt.Errorf("could not start status server: %w", err)
		}
		defer statusServer.Shutdown()
	}

	config := orchestrator.DefaultConfig()
	config.AppSecret = cCtx.String("app-secret")
	config.StageTimeout = stageTimeout

	units := orchestrator.NewUnitOrchestrator(orchestrator.Components{
		Marketplace: market,
		Provisioner: provisioner,
		Distributor: orchestrator.NewSecretDistributor(stageTimeout),
		Publisher:   contentPublisher,
		Sink:        sink,
	}, config, logger)

	runner := batch.NewRunner(units, storage.NewFileLedger(cCtx.String("output"), logger), cCtx.Duration("pacing"), logger)
	summary, err := runner.Run(ctx, count)
	if statusServer != nil {
		statusServer.MarkDone()
	}
	if err != nil {
		return err
	}

	fmt.Printf("Provisioned %d/%d units (%d failed) in %s, ledger: %s\n",
		summary.Succeeded, count, summary.Failed, summary.Duration.Round(time.Millisecond), summary.Ledger)
	return nil
}

func setupMarketplace(ctx context.Context, cCtx *cli.Context, chain marketplace.ChainConfig, maxAttempts int, timeout time.Duration, logger *slog.Logger) (interfaces.Marketplace, func(), error) {
	if cCtx.Bool("dry-run") {
		logger.Info("Dry run, using in-memory marketplace")
		return marketplace.NewMemoryMarketplace(), func() {}, nil
	}

	var secrets marketplace.SecretStore
	switch backend := cCtx.String("secret-backend"); backend {
	case "sms":
		secrets = marketplace.NewSMSClient(chain.SMSURL, marketplace.SMSOpts{Timeout: timeout, MaxAttempts: maxAttempts}, logger)
	case "vault":
		addr := cCtx.String("vault-addr")
		if addr == "" {
			return nil, nil, errors.New("vault-addr is required for the vault secret backend")
		}
		store, err := marketplace.NewVaultSecretStore(addr, cCtx.String("vault-token"), cCtx.String("vault-mount"), timeout, logger)
		if err != nil {
			return nil, nil, err
		}
		secrets = store
	default:
		return nil, nil, fmt.Errorf("unknown secret backend %q", backend)
	}

	market, err := marketplace.Dial(ctx, chain, secrets, logger)
	if err != nil {
		return nil, nil, err
	}
	return market, market.Close, nil
}

// parseCount reads the unit count argument. Anything that is not a positive
// integer selects the default.
func parseCount(arg string) int {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return batch.DefaultCount
	}
	return n
}
