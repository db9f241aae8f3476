// Package metrics exposes pipeline counters over Prometheus. Nil receivers
// are safe everywhere so call sites never guard instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus instruments.
type Metrics struct {
	registry *prometheus.Registry

	claimsTotal         *prometheus.CounterVec
	claimConflictsTotal *prometheus.CounterVec
	stageSuccessTotal   *prometheus.CounterVec
	stageFailureTotal   *prometheus.CounterVec
	stageRollbackTotal  *prometheus.CounterVec

	bridgeFoldsTotal    *prometheus.CounterVec
	bridgeDiscardsTotal *prometheus.CounterVec
	reclaimedTotal      prometheus.Counter
}

// New creates and registers all pipeline instruments on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		claimsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_claims_total",
			Help: "Claims attempted per stage worker.",
		}, []string{"stage"}),
		claimConflictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_claim_conflicts_total",
			Help: "Claims lost to a concurrent worker, per stage.",
		}, []string{"stage"}),
		stageSuccessTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_stage_success_total",
			Help: "Stage ticks that advanced their entity.",
		}, []string{"stage"}),
		stageFailureTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_stage_failure_total",
			Help: "Stage ticks whose side effect failed.",
		}, []string{"stage"}),
		stageRollbackTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_stage_rollback_total",
			Help: "Entities rolled back to a checkpoint after retry exhaustion.",
		}, []string{"stage"}),
		bridgeFoldsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_bridge_folds_total",
			Help: "Transfer events folded into logical file state.",
		}, []string{"event_type"}),
		bridgeDiscardsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_bridge_discards_total",
			Help: "Transfer events acknowledged without effect.",
		}, []string{"reason"}),
		reclaimedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_reclaimed_jobs_total",
			Help: "Jobs returned to a ready status after heartbeat expiry.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordClaim counts a claim attempt for a stage.
func (m *Metrics) RecordClaim(stage string) {
	if m == nil {
		return
	}
	m.claimsTotal.WithLabelValues(stage).Inc()
}

// RecordClaimConflict counts a lost optimistic claim.
func (m *Metrics) RecordClaimConflict(stage string) {
	if m == nil {
		return
	}
	m.claimConflictsTotal.WithLabelValues(stage).Inc()
}

// RecordStageSuccess counts a tick that advanced its entity.
func (m *Metrics) RecordStageSuccess(stage string) {
	if m == nil {
		return
	}
	m.stageSuccessTotal.WithLabelValues(stage).Inc()
}

// RecordStageFailure counts a failed side effect.
func (m *Metrics) RecordStageFailure(stage string) {
	if m == nil {
		return
	}
	m.stageFailureTotal.WithLabelValues(stage).Inc()
}

// RecordStageRollback counts a retry-exhaustion rollback.
func (m *Metrics) RecordStageRollback(stage string) {
	if m == nil {
		return
	}
	m.stageRollbackTotal.WithLabelValues(stage).Inc()
}

// RecordBridgeFold counts an applied transfer event.
func (m *Metrics) RecordBridgeFold(eventType string) {
	if m == nil {
		return
	}
	m.bridgeFoldsTotal.WithLabelValues(eventType).Inc()
}

// RecordBridgeDiscard counts an event acknowledged without effect.
func (m *Metrics) RecordBridgeDiscard(reason string) {
	if m == nil {
		return
	}
	m.bridgeDiscardsTotal.WithLabelValues(reason).Inc()
}

// RecordReclaimed counts jobs reclaimed after heartbeat expiry.
func (m *Metrics) RecordReclaimed(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.reclaimedTotal.Add(float64(count))
}
