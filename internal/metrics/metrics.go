// Package metrics is a thin facade between the pipeline and whatever metrics
// backend a run configures. The pipeline emits named counters and histogram
// samples; backends decide what to do with them. The default backend drops
// everything, so instrumented code paths cost nothing in tests and in runs
// without a configured backend.
package metrics

import "sync"

// Labels tag one observation. Backends may ignore labels they do not know.
type Labels map[string]string

// Backend receives every observation the pipeline emits.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Metric names emitted by the pipeline.
const (
	SourceTotal          = "lifelog_source_total"           // labels: source, status
	RecordsTotal         = "lifelog_records_total"          // labels: source, kind (read|rejected|inserted)
	BatchesTotal         = "lifelog_batches_total"          // labels: source, status (sent|rejected)
	StageDurationSeconds = "lifelog_stage_duration_seconds" // labels: source, stage
	SinkRequestsTotal    = "lifelog_sink_requests_total"    // labels: status
)

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs the process-wide backend. Passing nil restores the
// no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		current = nopBackend{}
		return
	}
	current = b
}

// IncCounter adds delta to a named counter on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	mu.RLock()
	b := current
	mu.RUnlock()
	b.IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample of a named histogram.
func ObserveHistogram(name string, value float64, labels Labels) {
	mu.RLock()
	b := current
	mu.RUnlock()
	b.ObserveHistogram(name, value, labels)
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
