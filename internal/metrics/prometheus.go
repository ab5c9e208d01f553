package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus keeps a counter per outcome.
type Prometheus struct {
	messages *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

// NewPrometheus registers the worker counters on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderworker",
			Name:      "messages_total",
			Help:      "Queue messages by processing outcome.",
		}, []string{"outcome"}),
		gatherer: reg,
	}
	reg.MustRegister(p.messages)
	// pre-create series so dashboards see zeros instead of gaps
	for _, o := range Outcomes {
		p.messages.WithLabelValues(string(o))
	}
	return p
}

func (p *Prometheus) Record(_ context.Context, o Outcome) {
	p.messages.WithLabelValues(string(o)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
