package httpserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/ruteri/marketplace-bulk-provisioner/common"
	"github.com/ruteri/marketplace-bulk-provisioner/orchestrator"
	"go.uber.org/atomic"
)

// Progress is an orchestrator.EventSink that counts units and stage
// outcomes. It is written by the batch goroutine and read by the server.
type Progress struct {
	total     atomic.Int64
	started   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	degraded  atomic.Int64
	unit      atomic.Int64
	stage     atomic.String

	registry *prometheus.Registry
	stages   *prometheus.CounterVec
	units    *prometheus.CounterVec
}

// ProgressSnapshot is the /progress document.
type ProgressSnapshot struct {
	Total     int64  `json:"total"`
	Started   int64  `json:"started"`
	Succeeded int64  `json:"succeeded"`
	Failed    int64  `json:"failed"`
	Degraded  int64  `json:"degraded_publications"`
	Unit      int64  `json:"current_unit"`
	Stage     string `json:"current_stage"`
}

func NewProgress(total int) *Progress {
	p := &Progress{
		registry: prometheus.NewRegistry(),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: common.PackageName,
			Name:      "stage_transitions_total",
			Help:      "Unit stage transitions by stage and outcome.",
		}, []string{"stage", "outcome"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: common.PackageName,
			Name:      "units_total",
			Help:      "Finished units by result.",
		}, []string{"result"}),
	}
	p.total.Store(int64(total))
	p.registry.MustRegister(
		p.stages,
		p.units,
		collectors.NewGoCollector(),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: common.PackageName,
			Name:      "units_requested",
			Help:      "Units requested for this batch.",
		}, func() float64 { return float64(p.total.Load()) }),
	)
	return p
}

func (p *Progress) Emit(e orchestrator.Event) {
	p.unit.Store(int64(e.UnitID))
	p.stage.Store(string(e.Stage))
	p.stages.WithLabelValues(string(e.Stage), string(e.Outcome)).Inc()

	switch {
	case e.Stage == orchestrator.StageStart:
		p.started.Inc()
	case e.Stage == orchestrator.StageComplete:
		p.succeeded.Inc()
		p.units.WithLabelValues("succeeded").Inc()
	case e.Stage == orchestrator.StageFailed:
		p.failed.Inc()
		p.units.WithLabelValues("failed").Inc()
	case e.Outcome == orchestrator.OutcomeDegraded:
		p.degraded.Inc()
	}
}

func (p *Progress) Snapshot() ProgressSnapshot {
	return ProgressSnapshot{
		Total:     p.total.Load(),
		Started:   p.started.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Degraded:  p.degraded.Load(),
		Unit:      p.unit.Load(),
		Stage:     p.stage.Load(),
	}
}

func (p *Progress) Registry() *prometheus.Registry {
	return p.registry
}
