// Package metrics exposes Prometheus collectors for the tournament runtime,
// the event bus and background jobs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
	"github.com/alem-hub/tournament-hub/pkg/circuitbreaker"
)

const namespace = "tournament_hub"

var (
	// Lifecycle
	UpdatePassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "update_passes_total",
		Help:      "Total recomputation passes",
	}, []string{"tournament", "result"})

	UpdatePassLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "update_pass_duration_seconds",
		Help:      "Recomputation pass duration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"tournament"})

	TicksSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "ticks_skipped_total",
		Help:      "Ticks skipped because a pass was still running",
	}, []string{"tournament"})

	// Rewards
	RewardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rewards",
		Name:      "positions_total",
		Help:      "Reward positions by outcome",
	}, []string{"tournament", "outcome"})

	ChallengesCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rewards",
		Name:      "challenges_completed_total",
		Help:      "Challenge completions by rank",
	}, []string{"tournament", "rank"})

	// Events
	EventsHandledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "handled_total",
		Help:      "Event handler executions",
	}, []string{"event_type", "result"})

	EventHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "handler_duration_seconds",
		Help:      "Event handler duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	DispatchResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "dispatch_results_total",
		Help:      "Dispatcher handler results after retries",
	}, []string{"handler", "event_type", "result"})

	// Jobs
	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Background job runs",
	}, []string{"job", "result"})

	JobLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Background job duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"job"})

	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Admin API requests",
	}, []string{"route", "code"})

	// Breakers
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"name"})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ══════════════════════════════════════════════════════════════════════════════
// OBSERVER
// ══════════════════════════════════════════════════════════════════════════════

// Observer implements tournament.Observer on the package collectors.
type Observer struct{}

var _ tournament.Observer = Observer{}

func (Observer) UpdatePassed(id shared.TournamentID, took time.Duration, err error) {
	UpdatePassesTotal.WithLabelValues(id.String(), result(err)).Inc()
	UpdatePassLatency.WithLabelValues(id.String()).Observe(took.Seconds())
}

func (Observer) TickSkipped(id shared.TournamentID) {
	TicksSkippedTotal.WithLabelValues(id.String()).Inc()
}

func (Observer) RewardsDispatched(id shared.TournamentID, report tournament.DispatchReport) {
	RewardsTotal.WithLabelValues(id.String(), "delivered").Add(float64(len(report.Delivered)))
	RewardsTotal.WithLabelValues(id.String(), "queued").Add(float64(len(report.Queued)))
	RewardsTotal.WithLabelValues(id.String(), "skipped").Add(float64(len(report.Skipped)))
}

func (Observer) ChallengeCompleted(id shared.TournamentID, rank shared.Position) {
	ChallengesCompletedTotal.WithLabelValues(id.String(), strconv.Itoa(int(rank))).Inc()
}

// ─────────────────────────────────────────────────────────────────────────────
// HOOKS
// ─────────────────────────────────────────────────────────────────────────────

// EventHandled matches InMemoryEventBusConfig.OnHandled.
func EventHandled(eventType shared.EventType, took time.Duration, err error) {
	EventsHandledTotal.WithLabelValues(string(eventType), result(err)).Inc()
	EventHandlerLatency.WithLabelValues(string(eventType)).Observe(took.Seconds())
}

// DispatchResult matches DispatcherConfig.OnResult.
func DispatchResult(handler string, eventType shared.EventType, err error) {
	DispatchResultsTotal.WithLabelValues(handler, string(eventType), result(err)).Inc()
}

// JobFinished records a background job run.
func JobFinished(job string, took time.Duration, err error) {
	JobRunsTotal.WithLabelValues(job, result(err)).Inc()
	JobLatency.WithLabelValues(job).Observe(took.Seconds())
}

// BreakerChanged matches the circuit breaker state change callback.
func BreakerChanged(name string, _, to circuitbreaker.State) {
	BreakerState.WithLabelValues(name).Set(float64(to))
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
