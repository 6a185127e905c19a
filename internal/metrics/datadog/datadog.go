// Package datadog implements a Datadog backend for the internal/metrics
// facade.
//
// The backend buffers observations in memory, submits them on a periodic
// Flush() ticker, and flushes one final time on Close(). Short-lived runs
// get their tail flush at shutdown; long imports get a real time series
// while they are running.
//
// Concurrency model:
//   - pipeline goroutines call IncCounter/ObserveHistogram at any time
//   - Flush snapshots+resets buffers under a mutex, then submits out-of-lock
//   - the flush loop calls Flush() periodically; Close() stops the loop
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"lifelog/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "lifelog".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// Defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets these; tests use
	// them to avoid real clocks, tickers and network submission.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal slice of the Datadog SDK the backend
// needs. The SDK exposes a concrete *datadogV2.MetricsApi, which cannot be
// stubbed; depending on this interface keeps tests off the network.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	sourceCounts  map[string]float64   // source\x00status -> count
	recordCounts  map[string]float64   // source\x00kind -> count
	batchCounts   map[string]float64   // source\x00status -> count
	sinkReqCounts map[string]float64   // status -> count
	stageSamples  map[string][]float64 // source\x00stage -> duration samples
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop. Credentials come from the standard DD_API_KEY
// environment handled by the SDK's default context.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "lifelog"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		sourceCounts:  make(map[string]float64),
		recordCounts:  make(map[string]float64),
		batchCounts:   make(map[string]float64),
		sinkReqCounts: make(map[string]float64),
		stageSamples:  make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Call once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown metric names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.SourceTotal:
		b.sourceCounts[pairKey(labels["source"], labels["status"])] += delta
	case metrics.RecordsTotal:
		if labels["kind"] == "" {
			return
		}
		b.recordCounts[pairKey(labels["source"], labels["kind"])] += delta
	case metrics.BatchesTotal:
		b.batchCounts[pairKey(labels["source"], labels["status"])] += delta
	case metrics.SinkRequestsTotal:
		status := labels["status"]
		if status == "" {
			status = "unknown"
		}
		b.sinkReqCounts[status] += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if name == metrics.StageDurationSeconds {
		k := pairKey(labels["source"], labels["stage"])
		b.stageSamples[k] = append(b.stageSamples[k], value)
	}
}

// snapshot holds buffered metric state detached from the backend so payload
// building and submission can happen out-of-lock.
type snapshot struct {
	sourceCounts  map[string]float64
	recordCounts  map[string]float64
	batchCounts   map[string]float64
	sinkReqCounts map[string]float64
	stageSamples  map[string][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		sourceCounts:  b.sourceCounts,
		recordCounts:  b.recordCounts,
		batchCounts:   b.batchCounts,
		sinkReqCounts: b.sinkReqCounts,
		stageSamples:  b.stageSamples,
	}

	b.sourceCounts = make(map[string]float64)
	b.recordCounts = make(map[string]float64)
	b.batchCounts = make(map[string]float64)
	b.sinkReqCounts = make(map[string]float64)
	b.stageSamples = make(map[string][]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.sourceCounts) == 0 &&
		len(s.recordCounts) == 0 &&
		len(s.batchCounts) == 0 &&
		len(s.sinkReqCounts) == 0 &&
		len(s.stageSamples) == 0
}

// Flush submits buffered metrics and resets local buffers. Buffers reset
// even when submission fails, so a broken Datadog endpoint cannot block the
// pipeline or grow memory without bound.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	_, _, err := b.api.SubmitMetrics(b.ctx, datadogV2.MetricPayload{Series: series}, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries is pure (no locks, no network, no clocks) so naming and
// tagging, which are an operational contract, stay unit testable.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.sourceCounts)+len(s.recordCounts)+16)

	for k, v := range s.sourceCounts {
		if v == 0 {
			continue
		}
		source, status := splitPairKey(k)
		tags := withTags(b.baseTags, "source:"+source, "status:"+status)
		series = append(series, countSeries("lifelog.source.total", v, tags, nowUnix))
	}

	for k, v := range s.recordCounts {
		if v == 0 {
			continue
		}
		source, kind := splitPairKey(k)
		tags := withTags(b.baseTags, "source:"+source, "kind:"+kind)
		series = append(series, countSeries("lifelog.records.total", v, tags, nowUnix))
	}

	for k, v := range s.batchCounts {
		if v == 0 {
			continue
		}
		source, status := splitPairKey(k)
		tags := withTags(b.baseTags, "source:"+source, "status:"+status)
		series = append(series, countSeries("lifelog.batches.total", v, tags, nowUnix))
	}

	for status, v := range s.sinkReqCounts {
		if v == 0 {
			continue
		}
		tags := withTags(b.baseTags, "status:"+status)
		series = append(series, countSeries("lifelog.sink.requests.total", v, tags, nowUnix))
	}

	for k, samples := range s.stageSamples {
		if len(samples) == 0 {
			continue
		}
		cp := append([]float64(nil), samples...)
		sort.Float64s(cp)

		source, stage := splitPairKey(k)
		tags := withTags(b.baseTags, "source:"+source, "stage:"+stage)
		prefix := "lifelog.stage.duration_seconds"

		series = append(series, gaugeSeries(prefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
		series = append(series, gaugeSeries(prefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix))
		series = append(series, gaugeSeries(prefix+".max", cp[len(cp)-1], tags, nowUnix))
		series = append(series, gaugeSeries(prefix+".samples", float64(len(cp)), tags, nowUnix))
	}

	return series
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func pairKey(a, b string) string {
	return a + "\x00" + b
}

func splitPairKey(k string) (string, string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

// ParseTagsCSV parses comma-separated tags like "env:prod,service:lifelog".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var _ metrics.Backend = (*Backend)(nil)
