package observability

import (
	"net/http"

	"graphrag-gateway/pkg/relay"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "graphrag_gateway"

type Metrics struct {
	registry *prometheus.Registry

	// StreamsTotal counts finished chat streams by termination path.
	StreamsTotal *prometheus.CounterVec

	// StreamDurationSeconds measures a chat stream from first byte to done.
	StreamDurationSeconds *prometheus.HistogramVec

	ActiveStreams prometheus.Gauge

	TokensRelayedTotal prometheus.Counter

	// DiscardedLinesTotal counts upstream lines that carried no token.
	DiscardedLinesTotal prometheus.Counter

	// RetrievalFailuresTotal counts absorbed retrieval failures.
	// Labels: reason (unavailable, malformed)
	RetrievalFailuresTotal *prometheus.CounterVec

	// AuthRejectionsTotal counts guard rejections.
	// Labels: kind (missing_credential, invalid_credential)
	AuthRejectionsTotal *prometheus.CounterVec

	// LoginsTotal labels: result (success, failure, locked)
	LoginsTotal *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry so several
// instances can coexist in tests.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StreamsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "chat",
				Name:      "streams_total",
				Help:      "Chat streams by termination path",
			},
			[]string{"termination"},
		),
		StreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "chat",
				Name:      "stream_duration_seconds",
				Help:      "Chat stream duration",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"termination"},
		),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "active_streams",
			Help:      "Chat streams currently open",
		}),
		TokensRelayedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "tokens_relayed_total",
			Help:      "Token events written to clients",
		}),
		DiscardedLinesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "discarded_lines_total",
			Help:      "Upstream lines that did not carry a token",
		}),
		RetrievalFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "retrieval",
				Name:      "failures_total",
				Help:      "Retrieval calls that fell back to empty context",
			},
			[]string{"reason"},
		),
		AuthRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "auth",
				Name:      "rejections_total",
				Help:      "Requests rejected by the session guard",
			},
			[]string{"kind"},
		),
		LoginsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "auth",
				Name:      "logins_total",
				Help:      "Login attempts by result",
			},
			[]string{"result"},
		),
	}
}

// StreamOpened marks a chat stream as active until ObserveStream is called
// with its outcome.
func (m *Metrics) StreamOpened() {
	m.ActiveStreams.Inc()
}

func (m *Metrics) ObserveStream(out relay.Outcome) {
	m.ActiveStreams.Dec()
	label := string(out.Termination)
	m.StreamsTotal.WithLabelValues(label).Inc()
	m.StreamDurationSeconds.WithLabelValues(label).Observe(out.Duration.Seconds())
	m.TokensRelayedTotal.Add(float64(out.Tokens))
	m.DiscardedLinesTotal.Add(float64(out.DiscardedLines))
}

func (m *Metrics) ObserveRetrievalFailure(reason string) {
	m.RetrievalFailuresTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveAuthRejection(kind string) {
	m.AuthRejectionsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveLogin(result string) {
	m.LoginsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
