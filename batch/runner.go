// Package batch runs provisioning units one after another and persists the
// resulting ledger.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
	"github.com/ruteri/marketplace-bulk-provisioner/orchestrator"
)

// DefaultCount is used when the requested unit count is not positive.
const DefaultCount = 10

// DefaultPacing is the pause between two units.
const DefaultPacing = 2 * time.Second

// UnitRunner runs one unit. *orchestrator.UnitOrchestrator implements it.
type UnitRunner interface {
	Run(ctx context.Context, unitID int) orchestrator.UnitResult
}

// Summary describes a finished batch.
type Summary struct {
	RunID     string
	Report    interfaces.Report
	Succeeded int
	Failed    int
	Duration  time.Duration
	Ledger    string
}

// Runner runs units sequentially, pausing between them, and writes the
// report once at the end.
type Runner struct {
	units  UnitRunner
	ledger interfaces.LedgerWriter
	pacing time.Duration
	log    *slog.Logger

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRunner(units UnitRunner, ledger interfaces.LedgerWriter, pacing time.Duration, log *slog.Logger) *Runner {
	return &Runner{
		units:  units,
		ledger: ledger,
		pacing: pacing,
		log:    log,
		sleep:  sleepContext,
	}
}

// Run provisions n units, numbered 1 to n. The report holds exactly one
// record per unit in order; unit failures are recorded, not returned.
// Cancelling ctx aborts the batch and nothing is persisted.
func (r *Runner) Run(ctx context.Context, n int) (*Summary, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid unit count %d", n)
	}

	runID := uuid.NewString()
	log := r.log.With(slog.String("run_id", runID))
	start := time.Now()
	report := make(interfaces.Report, 0, n)

	log.Info("Starting batch", slog.Int("units", n), slog.Duration("pacing", r.pacing))

	for unitID := 1; unitID <= n; unitID++ {
		result := r.runUnit(ctx, unitID)
		if err := ctx.Err(); err != nil {
			log.Error("Batch aborted", slog.Int("unit", unitID), "err", err)
			return nil, fmt.Errorf("batch aborted at unit %d: %w", unitID, err)
		}

		report = append(report, result.Record)
		if result.Err != nil {
			log.Warn("Unit failed",
				slog.Int("unit", unitID),
				slog.String("stage", string(result.Err.Stage)),
				"err", result.Err.Err)
		} else {
			log.Info("Unit complete",
				slog.Int("unit", unitID),
				slog.String("app", result.Record.AppAddress),
				slog.String("dataset", result.Record.DatasetAddress))
		}

		if unitID < n && r.pacing > 0 {
			if err := r.sleep(ctx, r.pacing); err != nil {
				log.Error("Batch aborted", slog.Int("unit", unitID), "err", err)
				return nil, fmt.Errorf("batch aborted after unit %d: %w", unitID, err)
			}
		}
	}

	if err := r.ledger.Write(report); err != nil {
		return nil, fmt.Errorf("could not persist ledger: %w", err)
	}

	succeeded, failed := report.Counts()
	summary := &Summary{
		RunID:     runID,
		Report:    report,
		Succeeded: succeeded,
		Failed:    failed,
		Duration:  time.Since(start),
		Ledger:    r.ledger.Location(),
	}

	log.Info("Batch complete",
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration),
		slog.String("ledger", summary.Ledger))

	return summary, nil
}

// runUnit guards the batch against a unit runner that panics.
func (r *Runner) runUnit(ctx context.Context, unitID int) (result orchestrator.UnitResult) {
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("panic: %v", p)
			result = orchestrator.UnitResult{
				Record: interfaces.UnitRecord{
					UnitID:      unitID,
					Status:      interfaces.UnitStatusFailed,
					FailedStage: "unknown",
					Error:       err.Error(),
					DeployedAt:  time.Now().UTC(),
				},
				Err: &orchestrator.StageError{Stage: orchestrator.StageFailed, Err: err},
			}
		}
	}()
	return r.units.Run(ctx, unitID)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
