// Package metrics records operational metrics of table reads behind a small,
// backend-agnostic interface.
//
// A process-wide backend defaults to a no-op, so instrumentation is always
// safe to call. Concrete systems live in subpackages (prompush for a
// Prometheus Pushgateway, datadog for DogStatsD) and are installed once at
// startup with SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Metric names.
const (
	StepTotal           = "tableread_step_total"
	StepDurationSeconds = "tableread_step_duration_seconds"
	RowsTotal           = "tableread_rows_total"
	BatchesTotal        = "tableread_batches_total"
)

// Steps recorded by the node and the CLI.
const (
	StepResolve   = "resolve"
	StepConfigure = "configure"
	StepExecute   = "execute"
	StepLoad      = "load"
)

// Row kinds for RowsTotal.
const (
	RowsRead    = "read"
	RowsWritten = "written"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of step and records its duration.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// StartStep returns a function that records step when called with the step's
// outcome:
//
//	done := metrics.StartStep(job, metrics.StepExecute)
//	stats, err := r.Execute(ctx, emit)
//	done(err)
func StartStep(job, step string) func(error) {
	start := time.Now()
	return func(err error) { RecordStep(job, step, err, time.Since(start)) }
}

// RecordRows adds delta rows of kind (RowsRead, RowsWritten).
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordBatches adds delta flushed sink batches.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{"job": job})
}
