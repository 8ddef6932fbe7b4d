// Package metrics holds the generator's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "salesgen"

type Metrics struct {
	published prometheus.Counter
	failures  *prometheus.CounterVec
	state     prometheus.Gauge
	batchRows prometheus.Counter
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return reg
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Sales events acknowledged by the stream destination.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Failed publish attempts by error kind.",
		}, []string{"kind"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_state",
			Help:      "Current delivery loop state (0 connecting, 1 validating, 2 running, 3 stopped, 4 failed).",
		}),
		batchRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_rows_written_total",
			Help:      "Rows flushed by the batch exporter.",
		}),
	}

	reg.MustRegister(m.published, m.failures, m.state, m.batchRows)

	return m
}

func (m *Metrics) EventPublished() {
	if m == nil {
		return
	}
	m.published.Inc()
}

func (m *Metrics) PublishFailed(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

func (m *Metrics) LoopState(state int) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}

func (m *Metrics) BatchRowsWritten(n int) {
	if m == nil {
		return
	}
	m.batchRows.Add(float64(n))
}
