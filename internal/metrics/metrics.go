// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from combostat runs.
//
// It exposes a narrow Backend interface (counters and duration observations)
// behind a global, pluggable backend that defaults to a no-op, so callers can
// record unconditionally. Concrete systems live in subpackages (prompush,
// datadog) and the rest of the code depends only on this package.
package metrics

import "time"

// Metric names shared by every backend.
const (
	StepTotal           = "combostat_step_total"
	StepDurationSeconds = "combostat_step_duration_seconds"
	CombinationsTotal   = "combostat_combinations_total"
	GroupsTotal         = "combostat_groups_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep records latency and success/failure of one command step
// (load, enumerate, merge, report, ...).
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordCombinations counts evaluated combinations for a share type.
func RecordCombinations(job, shareType string, delta uint64) {
	if delta == 0 {
		return
	}
	backend.IncCounter(CombinationsTotal, float64(delta), Labels{
		"job":        job,
		"share_type": shareType,
	})
}

// RecordGroups counts merged groups by outcome ("merged", "failed").
func RecordGroups(job, status string, delta int) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(GroupsTotal, float64(delta), Labels{
		"job":    job,
		"status": status,
	})
}
