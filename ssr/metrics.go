package ssr

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "effect_ssr"

// Metrics holds the Prometheus collectors of a Coordinator.
type Metrics struct {
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	incompleteTotal prometheus.Counter
	retriesTotal    prometheus.Counter
}

// NewMetrics registers the run collectors with reg. A nil reg means
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Total number of SSR runs by outcome",
		}, []string{"outcome"}),

		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "SSR run duration in seconds, finalization included",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),

		incompleteTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "incomplete_modules_total",
			Help:      "Total number of modules captured before they settled",
		}),

		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retry_signals_total",
			Help:      "Total number of retry signals handed to clients",
		}),
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTerminateTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (m *Metrics) observe(res *Result, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcomeLabel(err)).Inc()
	m.runDuration.Observe(elapsed.Seconds())
	if res == nil {
		return
	}
	m.incompleteTotal.Add(float64(len(res.Incomplete())))
	for _, names := range res.retries {
		m.retriesTotal.Add(float64(len(names)))
	}
}
