package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the counters exported on /metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	ExtractedActions   *prometheus.CounterVec
	SkippedMatches     *prometheus.CounterVec
	RejectedActions    prometheus.Counter
	ExecutedActions    *prometheus.CounterVec
	ActionDuration     *prometheus.HistogramVec
	GateDecisions      *prometheus.CounterVec
	PlansAborted       prometheus.Counter
	AdaptiveSessions   *prometheus.CounterVec
	AdaptiveIterations prometheus.Histogram
	OracleFailures     prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ExtractedActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmsman_extracted_actions_total",
			Help: "Actions extracted from oracle responses, by grammar.",
		}, []string{"provenance"}),
		SkippedMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmsman_skipped_matches_total",
			Help: "Malformed matches skipped during extraction, by grammar.",
		}, []string{"provenance"}),
		RejectedActions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helmsman_rejected_actions_total",
			Help: "Actions dropped at classification for missing fields.",
		}),
		ExecutedActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmsman_executed_actions_total",
			Help: "Actions dispatched to an executor, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helmsman_action_duration_seconds",
			Help:    "Time spent executing one action.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		GateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmsman_gate_decisions_total",
			Help: "Safety gate decisions, by effect.",
		}, []string{"effect"}),
		PlansAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helmsman_plans_aborted_total",
			Help: "Plans aborted by the user or a fatal executor error.",
		}),
		AdaptiveSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmsman_adaptive_sessions_total",
			Help: "Adaptive sessions, by termination reason.",
		}, []string{"reason"}),
		AdaptiveIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "helmsman_adaptive_iterations",
			Help:    "Iterations used per adaptive session.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 20, 30, 50},
		}),
		OracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helmsman_oracle_failures_total",
			Help: "Oracle calls that failed or returned an unusable decision.",
		}),
	}
	m.Registry.MustRegister(
		m.ExtractedActions, m.SkippedMatches, m.RejectedActions,
		m.ExecutedActions, m.ActionDuration, m.GateDecisions, m.PlansAborted,
		m.AdaptiveSessions, m.AdaptiveIterations, m.OracleFailures,
	)
	return m
}

func (m *Metrics) ObserveExtracted(provenance string, n int) {
	if m == nil {
		return
	}
	m.ExtractedActions.WithLabelValues(provenance).Add(float64(n))
}

func (m *Metrics) ObserveSkipped(provenance string) {
	if m == nil {
		return
	}
	m.SkippedMatches.WithLabelValues(provenance).Inc()
}

func (m *Metrics) ObserveRejected(n int) {
	if m == nil {
		return
	}
	m.RejectedActions.Add(float64(n))
}

func (m *Metrics) ObserveAction(kind string, succeeded bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	m.ExecutedActions.WithLabelValues(kind, outcome).Inc()
	m.ActionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveGate(effect string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(effect).Inc()
}

func (m *Metrics) ObserveAborted() {
	if m == nil {
		return
	}
	m.PlansAborted.Inc()
}

func (m *Metrics) ObserveAdaptive(reason string, iterations int) {
	if m == nil {
		return
	}
	m.AdaptiveSessions.WithLabelValues(reason).Inc()
	m.AdaptiveIterations.Observe(float64(iterations))
}

func (m *Metrics) ObserveOracleFailure() {
	if m == nil {
		return
	}
	m.OracleFailures.Inc()
}

// Serve exposes the registry on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
