// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// combostat commands are short-lived batch processes, so metrics are pushed
// to a Pushgateway at exit instead of being scraped.
package prompush

import (
	"fmt"

	"combostat/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group

	reg *prometheus.Registry

	stepCounter  *prometheus.CounterVec // combostat_step_total
	stepDuration *prometheus.SummaryVec // combostat_step_duration_seconds
	comboCounter *prometheus.CounterVec // combostat_combinations_total
	groupCounter *prometheus.CounterVec // combostat_groups_total
}

// NewBackend constructs a Pushgateway backend. An empty jobName defaults to
// "combostat".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "combostat"
	}

	reg := prometheus.NewRegistry()

	stepCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Total number of command step executions, partitioned by step and status.",
		},
		[]string{"step", "status"},
	)
	stepDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.StepDurationSeconds,
			Help:       "Duration of command steps in seconds, partitioned by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"step", "status"},
	)
	comboCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.CombinationsTotal,
			Help: "Combinations evaluated, partitioned by share type.",
		},
		[]string{"share_type"},
	)
	groupCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.GroupsTotal,
			Help: "Result groups merged, partitioned by outcome.",
		},
		[]string{"status"},
	)

	for name, c := range map[string]prometheus.Collector{
		"step counter":        stepCounter,
		"step summary":        stepDuration,
		"combination counter": comboCounter,
		"group counter":       groupCounter,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}

	return &Backend{
		gatewayURL:   gatewayURL,
		jobName:      jobName,
		reg:          reg,
		stepCounter:  stepCounter,
		stepDuration: stepDuration,
		comboCounter: comboCounter,
		groupCounter: groupCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.CombinationsTotal:
		b.comboCounter.WithLabelValues(labels["share_type"]).Add(delta)
	case metrics.GroupsTotal:
		b.groupCounter.WithLabelValues(labels["status"]).Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDurationSeconds {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
