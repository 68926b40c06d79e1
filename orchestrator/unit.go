package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/marketplace-bulk-provisioner/cryptoutils"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
)

// DefaultAppSecret is pushed as the developer secret of every app.
const DefaultAppSecret = "1234567890"

// IdentityFactory returns a fresh identity for every call.
type IdentityFactory func() (*interfaces.Identity, error)

// ContentPublisher publishes dataset content. It never fails: a degraded
// publication is reported through the artifact.
type ContentPublisher interface {
	Publish(ctx context.Context, content []byte, name string) *interfaces.ContentArtifact
}

// Config holds what every unit shares.
type Config struct {
	AppSecret    string
	StageTimeout time.Duration

	AppName     func(unitID int, now time.Time) string
	DatasetName func(unitID int, now time.Time) string
	Content     func(unitID int, now time.Time) []byte
	Now         func() time.Time
}

// DefaultConfig names resources bulk-app-<n>-<unix ms> and
// bulk-dataset-<n>-<unix ms>.
func DefaultConfig() Config {
	return Config{
		AppSecret:    DefaultAppSecret,
		StageTimeout: 3 * time.Minute,
		AppName: func(unitID int, now time.Time) string {
			return fmt.Sprintf("bulk-app-%d-%d", unitID, now.UnixMilli())
		},
		DatasetName: func(unitID int, now time.Time) string {
			return fmt.Sprintf("bulk-dataset-%d-%d", unitID, now.UnixMilli())
		},
		Content: func(unitID int, now time.Time) []byte {
			return fmt.Appendf(nil, "test%d - %s", unitID, now.UTC().Format("2006-01-02T15:04:05.000Z"))
		},
		Now: time.Now,
	}
}

// Components are the collaborators of a UnitOrchestrator.
type Components struct {
	Identities  IdentityFactory
	Marketplace interfaces.Marketplace
	Provisioner *ResourceProvisioner
	Distributor *SecretDistributor
	Publisher   ContentPublisher
	Sink        EventSink
}

// UnitOrchestrator runs the fixed provisioning pipeline of one unit:
// identity, app, app secret, content, dataset, dataset secret.
// Only content publication may degrade; any other failure ends the unit.
type UnitOrchestrator struct {
	components Components
	config     Config
	log        *slog.Logger
}

func NewUnitOrchestrator(components Components, config Config, log *slog.Logger) *UnitOrchestrator {
	defaults := DefaultConfig()
	if config.AppName == nil {
		config.AppName = defaults.AppName
	}
	if config.DatasetName == nil {
		config.DatasetName = defaults.DatasetName
	}
	if config.Content == nil {
		config.Content = defaults.Content
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	if components.Identities == nil {
		components.Identities = cryptoutils.NewIdentity
	}
	if components.Sink == nil {
		components.Sink = EventSinkFunc(func(Event) {})
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &UnitOrchestrator{
		components: components,
		config:     config,
		log:        log,
	}
}

// Run provisions unit unitID. It never panics and always returns a record:
// the full success record, or a failure record naming the stage that failed.
func (o *UnitOrchestrator) Run(ctx context.Context, unitID int) (result UnitResult) {
	stage := StageStart
	defer func() {
		if r := recover(); r != nil {
			result = o.fail(unitID, stage, fmt.Errorf("panic: %v", r))
		}
	}()

	o.emit(unitID, StageStart, OutcomeOK, "", nil)
	now := o.config.Now()

	stage = StageIdentityCreated
	identity, err := o.components.Identities()
	if err != nil {
		return o.fail(unitID, stage, err)
	}
	o.emit(unitID, stage, OutcomeOK, identity.Address.Hex(), nil)

	session, err := o.components.Marketplace.NewSession(ctx, identity)
	if err != nil {
		return o.fail(unitID, stage, err)
	}
	if smsURL, err := session.ResolveSMSURL(ctx); err == nil {
		o.log.Debug("Unit session",
			slog.Int("unit", unitID),
			slog.Any("identity", identity),
			slog.String("sms", smsURL))
	}

	stage = StageAppRegistered
	app, err := o.components.Provisioner.RegisterApp(ctx, session, o.config.AppName(unitID, now), identity.Address)
	if err != nil {
		return o.fail(unitID, stage, err)
	}
	o.emit(unitID, stage, OutcomeOK, app.Address.Hex(), nil)

	stage = StageAppSecretPushed
	appSecret, err := o.components.Distributor.PushAppSecret(ctx, session, app.Address, o.config.AppSecret)
	if err != nil {
		return o.fail(unitID, stage, err)
	}
	o.emit(unitID, stage, secretOutcome(appSecret), "", nil)

	stage = StageContentPublished
	datasetName := o.config.DatasetName(unitID, now)
	publishCtx, cancel := withStageTimeout(ctx, o.config.StageTimeout)
	artifact := o.components.Publisher.Publish(publishCtx, o.config.Content(unitID, now), datasetName)
	cancel()
	if artifact.Verified {
		o.emit(unitID, stage, OutcomeOK, artifact.Locator, nil)
	} else {
		o.emit(unitID, stage, OutcomeDegraded, artifact.Locator, fmt.Errorf("%w: %s", interfaces.ErrPublicationDegraded, artifact.PublishError))
	}

	stage = StageDatasetRegistered
	dataset, err := o.components.Provisioner.RegisterDataset(ctx, session, datasetName, artifact.Locator, artifact.Checksum, identity.Address)
	if err != nil {
		return o.fail(unitID, stage, err)
	}
	o.emit(unitID, stage, OutcomeOK, dataset.Address.Hex(), nil)

	stage = StageDatasetSecretPushed
	datasetSecret, err := o.components.Distributor.PushDatasetSecret(ctx, session, dataset.Address, artifact.EncryptionKey)
	if err != nil {
		return o.fail(unitID, stage, err)
	}
	o.emit(unitID, stage, secretOutcome(datasetSecret), "", nil)

	verified := artifact.Verified
	record := interfaces.UnitRecord{
		UnitID: unitID,

		AppAddress: app.Address.Hex(),
		AppName:    app.Name,
		AppTxHash:  app.TxHash.Hex(),
		AppSecret:  appSecret.String(),

		DatasetAddress:      dataset.Address.Hex(),
		DatasetName:         dataset.Name,
		DatasetTxHash:       dataset.TxHash.Hex(),
		DatasetURL:          artifact.PublicURL,
		DatasetMultiaddr:    artifact.Locator,
		DatasetChecksum:     artifact.Checksum,
		DatasetVerified:     &verified,
		DatasetPublishError: artifact.PublishError,
		DatasetSecret:       datasetSecret.String(),

		WalletAddress:    identity.Address.Hex(),
		WalletPrivateKey: identity.PrivateKeyHex(),
		WalletMnemonic:   identity.Mnemonic,

		DeployedAt: o.config.Now().UTC(),
	}

	stage = StageComplete
	o.emit(unitID, StageComplete, OutcomeOK, "", nil)
	return UnitResult{Record: record}
}

func (o *UnitOrchestrator) fail(unitID int, stage Stage, err error) UnitResult {
	stageErr := &StageError{Stage: stage, Err: err}
	o.emit(unitID, StageFailed, OutcomeFailed, string(stage), err)

	return UnitResult{
		Record: interfaces.UnitRecord{
			UnitID:      unitID,
			Status:      interfaces.UnitStatusFailed,
			FailedStage: string(stage),
			Error:       err.Error(),
			DeployedAt:  o.config.Now().UTC(),
		},
		Err: stageErr,
	}
}

func (o *UnitOrchestrator) emit(unitID int, stage Stage, outcome Outcome, detail string, err error) {
	o.components.Sink.Emit(Event{
		UnitID:  unitID,
		Stage:   stage,
		Outcome: outcome,
		Detail:  detail,
		Err:     err,
		Time:    o.config.Now(),
	})
}

func secretOutcome(o interfaces.SecretOutcome) Outcome {
	if o == interfaces.SecretAlreadyExists {
		return OutcomeAlreadyExists
	}
	return OutcomeOK
}
