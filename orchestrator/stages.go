package orchestrator

import (
	"log/slog"
	"time"
)

// Stage is a state of the per-unit pipeline. Units move strictly forward
// from StageStart to StageComplete, or to StageFailed from any stage.
type Stage string

const (
	StageStart               Stage = "start"
	StageIdentityCreated     Stage = "identity"
	StageAppRegistered       Stage = "app_registration"
	StageAppSecretPushed     Stage = "app_secret"
	StageContentPublished    Stage = "content_publication"
	StageDatasetRegistered   Stage = "dataset_registration"
	StageDatasetSecretPushed Stage = "dataset_secret"
	StageComplete            Stage = "complete"
	StageFailed              Stage = "failed"
)

// Pipeline lists the stages of a successful unit in order.
var Pipeline = []Stage{
	StageStart,
	StageIdentityCreated,
	StageAppRegistered,
	StageAppSecretPushed,
	StageContentPublished,
	StageDatasetRegistered,
	StageDatasetSecretPushed,
	StageComplete,
}

type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeAlreadyExists Outcome = "already_exists"
	OutcomeDegraded      Outcome = "degraded"
	OutcomeFailed        Outcome = "failed"
)

// Event reports one transition of one unit. For StageFailed, Detail names
// the stage that failed.
type Event struct {
	UnitID  int
	Stage   Stage
	Outcome Outcome
	Detail  string
	Err     error
	Time    time.Time
}

type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to an EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

// MultiSink fans events out to every sink in order.
type MultiSink []EventSink

func (m MultiSink) Emit(e Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(e)
		}
	}
}

// LogSink writes events to log. Failures and degraded outcomes are warnings.
func LogSink(log *slog.Logger) EventSink {
	return EventSinkFunc(func(e Event) {
		attrs := []any{
			slog.Int("unit", e.UnitID),
			slog.String("stage", string(e.Stage)),
			slog.String("outcome", string(e.Outcome)),
		}
		if e.Detail != "" {
			attrs = append(attrs, slog.String("detail", e.Detail))
		}
		if e.Err != nil {
			attrs = append(attrs, "err", e.Err)
		}

		switch e.Outcome {
		case OutcomeFailed, OutcomeDegraded:
			log.Warn("Unit stage", attrs...)
		default:
			log.Info("Unit stage", attrs...)
		}
	})
}
