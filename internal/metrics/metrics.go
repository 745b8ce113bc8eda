// Package metrics exposes engine counters and gauges in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
	"github.com/eliteGoblin/focusd/detox/internal/usecase"
)

const namespace = "detox"

// Recorder implements usecase.Metrics on a private registry so tests and
// multiple engines never collide on the global one.
type Recorder struct {
	registry *prometheus.Registry

	sessionsStarted prometheus.Counter
	sessionsEnded   *prometheus.CounterVec
	lockedMinutes   *prometheus.CounterVec
	plannedMinutes  prometheus.Histogram
	appsBlocked     *prometheus.CounterVec
	degradedTotal   prometheus.Counter
	budgetRemaining prometheus.Gauge
	eventsDropped   prometheus.Counter
	persistErrors   prometheus.Counter
	persistSaves    prometheus.Counter
	sessionActive   prometheus.Gauge
}

var _ usecase.Metrics = (*Recorder)(nil)

// NewRecorder registers all collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Detox sessions started.",
		}),
		sessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "ended_total",
			Help:      "Detox sessions ended, by outcome.",
		}, []string{"outcome"}),
		lockedMinutes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "planned_minutes_total",
			Help:      "Planned minutes of ended sessions, by outcome.",
		}, []string{"outcome"}),
		plannedMinutes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "planned_minutes",
			Help:      "Requested session length in minutes.",
			Buckets:   []float64{5, 15, 30, 60, 90, 120, 180},
		}),
		appsBlocked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "apps_blocked_total",
			Help:      "Foreground apps pushed back to the lock surface.",
		}, []string{"app"}),
		degradedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "degraded_total",
			Help:      "Times foreground monitoring was lost during a session.",
		}),
		budgetRemaining: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "remaining",
			Help:      "Emergency unlocks left in the current session budget.",
		}),
		eventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "events_dropped_total",
			Help:      "Foreground events dropped because the queue was full.",
		}),
		persistErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "save_errors_total",
			Help:      "Failed snapshot saves.",
		}),
		persistSaves: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "saves_total",
			Help:      "Successful snapshot saves.",
		}),
		sessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "1 while a detox session is running.",
		}),
	}
}

func (r *Recorder) SessionStarted(minutes int) {
	r.sessionsStarted.Inc()
	r.plannedMinutes.Observe(float64(minutes))
	r.sessionActive.Set(1)
}

func (r *Recorder) SessionEnded(outcome domain.Outcome, plannedMinutes int) {
	r.sessionsEnded.WithLabelValues(string(outcome)).Inc()
	r.lockedMinutes.WithLabelValues(string(outcome)).Add(float64(plannedMinutes))
	r.sessionActive.Set(0)
}

func (r *Recorder) AppBlocked(packageID string) {
	r.appsBlocked.WithLabelValues(packageID).Inc()
}

func (r *Recorder) MonitoringDegraded() {
	r.degradedTotal.Inc()
}

func (r *Recorder) BudgetRemaining(n int) {
	r.budgetRemaining.Set(float64(n))
}

// EventDropped counts one foreground event lost to a full queue.
func (r *Recorder) EventDropped() {
	r.eventsDropped.Inc()
}

// SaveFailed counts one failed snapshot save.
func (r *Recorder) SaveFailed(error) {
	r.persistErrors.Inc()
}

// Saved counts one successful snapshot save.
func (r *Recorder) Saved() {
	r.persistSaves.Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
