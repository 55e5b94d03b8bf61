// Package metrics exposes Prometheus counters for dialogue exchanges.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "junrei"

// Recorder counts exchanges, awarded exp and collected quotes. It satisfies
// both dialogue.Recorder and onboarding.Recorder.
type Recorder struct {
	registry  *prometheus.Registry
	exchanges *prometheus.CounterVec
	exp       prometheus.Counter
	quotes    prometheus.Counter
	sessions  *prometheus.GaugeVec
}

// New creates a Recorder backed by its own registry, which also carries the
// Go runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Narrator exchanges by variant and outcome.",
		}, []string{"variant", "outcome"}),
		exp: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exp_awarded_total",
			Help:      "Experience points awarded across all users.",
		}),
		quotes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_collected_total",
			Help:      "Quotes persisted to users' collections.",
		}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "In-memory sessions held by the registry.",
		}, []string{"variant"}),
	}
	r.registry.MustRegister(
		r.exchanges,
		r.exp,
		r.quotes,
		r.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveExchange counts one exchange.
func (r *Recorder) ObserveExchange(variant, outcome string) {
	r.exchanges.WithLabelValues(variant, outcome).Inc()
}

// ObserveExp adds awarded exp.
func (r *Recorder) ObserveExp(amount int) {
	if amount > 0 {
		r.exp.Add(float64(amount))
	}
}

// ObserveQuote counts one collected quote.
func (r *Recorder) ObserveQuote() {
	r.quotes.Inc()
}

// SetActiveSessions reports the registry size for variant.
func (r *Recorder) SetActiveSessions(variant string, n int) {
	r.sessions.WithLabelValues(variant).Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
