package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing, so tests can build managers
// without touching the default registry.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	SessionsEnded   *prometheus.CounterVec
	BusMessages     *prometheus.CounterVec
	DroppedMessages *prometheus.CounterVec
	TimerExpiries   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live dialogue sessions across all sites.",
		}),
		SessionsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Ended dialogue sessions by termination reason.",
		}, []string{"reason"}),
		BusMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_total",
			Help:      "Bus messages by direction and kind.",
		}, []string{"direction", "kind"}),
		DroppedMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Inbound messages dropped as protocol noise, by cause.",
		}, []string{"cause"}),
		TimerExpiries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_expiries_total",
			Help:      "Session timer expiries by timer kind.",
		}, []string{"kind"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall-clock duration of dialogue sessions in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
	}
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) ObserveSessionEnded(reason string, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(lifetime.Seconds())
}

func (m *Metrics) ObserveBusMessage(direction, kind string) {
	if m == nil {
		return
	}
	m.BusMessages.WithLabelValues(direction, kind).Inc()
}

func (m *Metrics) ObserveDropped(cause string) {
	if m == nil {
		return
	}
	m.DroppedMessages.WithLabelValues(cause).Inc()
}

func (m *Metrics) ObserveTimerExpiry(kind string) {
	if m == nil {
		return
	}
	m.TimerExpiries.WithLabelValues(kind).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
