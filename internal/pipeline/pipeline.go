// Package pipeline drives a run: for each configured source, read the
// export, flatten it if hierarchical, normalize against the target column
// contracts, batch, and load into the sink.
//
// Sources are independent. A failure marks that source FAILED and the run
// moves on; the caller decides the process exit code from the summaries.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"lifelog/internal/batch"
	"lifelog/internal/config"
	"lifelog/internal/flatten"
	"lifelog/internal/metrics"
	"lifelog/internal/normalize"
	"lifelog/internal/parser/csv"
	"lifelog/internal/parser/html"
	"lifelog/internal/parser/json"
	"lifelog/internal/parser/xlsx"
	"lifelog/internal/parser/xml"
	"lifelog/internal/record"
	"lifelog/internal/sink"
	"lifelog/internal/tree"
)

// Summary reports one source's outcome.
type Summary struct {
	Source string
	State  State

	RecordsRead     int
	RecordsRejected int
	RejectReasons   map[string]int

	BatchesSent     int
	BatchesRejected int
	BatchesFailed   int
	Inserted        int64

	// TableCounts holds post-load row counts per table when the sink can
	// report them.
	TableCounts map[string]int64

	Err     error
	Elapsed time.Duration

	stageStart time.Time
}

// SchemaViolationError reports that normalization rejected every record of a
// source, leaving nothing to load.
type SchemaViolationError struct {
	Rejected int
	Reasons  map[string]int
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("all %d records rejected: %v", e.Rejected, e.Reasons)
}

// Failed reports whether any source ended in StateFailed. The command exits
// non-zero exactly when this is true.
func Failed(sums []Summary) bool {
	for _, s := range sums {
		if s.State == StateFailed {
			return true
		}
	}
	return false
}

// Runner executes a configured run against one sink client.
type Runner struct {
	cfg  config.Config
	sink sink.Client
	log  *log.Logger

	// now is a clock seam for stage timing in tests.
	now func() time.Time
}

func New(cfg config.Config, sc sink.Client, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{cfg: cfg, sink: sc, log: logger, now: time.Now}
}

// Run processes every source in declaration order and returns one summary
// per source, in the same order.
func (r *Runner) Run(ctx context.Context) []Summary {
	sums := make([]Summary, 0, len(r.cfg.Sources))
	for _, src := range r.cfg.Sources {
		if err := ctx.Err(); err != nil {
			sums = append(sums, Summary{Source: src.Name, State: StateFailed, Err: err})
			continue
		}

		sum := r.runSource(ctx, src)
		sums = append(sums, sum)

		status := "done"
		if sum.State == StateFailed {
			status = "failed"
		}
		metrics.IncCounter(metrics.SourceTotal, 1, metrics.Labels{"source": src.Name, "status": status})

		if sum.Err != nil {
			r.log.Printf("source %s: %s after %s: %v", src.Name, sum.State, sum.Elapsed.Round(time.Millisecond), sum.Err)
		} else {
			r.log.Printf("source %s: %s in %s: read=%d rejected=%d batches=%d inserted=%d",
				src.Name, sum.State, sum.Elapsed.Round(time.Millisecond),
				sum.RecordsRead, sum.RecordsRejected, sum.BatchesSent, sum.Inserted)
		}
	}
	return sums
}

// tableSet pairs a record set with the target whose contract governs it.
type tableSet struct {
	target config.Target
	set    *record.Set
}

func (r *Runner) runSource(ctx context.Context, src config.Source) Summary {
	sum := Summary{
		Source:        src.Name,
		State:         StatePending,
		RejectReasons: map[string]int{},
	}
	start := r.now()
	defer func() { sum.Elapsed = r.now().Sub(start) }()

	fail := func(err error) Summary {
		sum.State = StateFailed
		sum.Err = err
		return sum
	}

	// READING (and FLATTENING for hierarchical sources).
	sets, err := r.read(&sum, src)
	if err != nil {
		return fail(err)
	}

	for _, ts := range sets {
		sum.RecordsRead += ts.set.Len()
	}
	metrics.IncCounter(metrics.RecordsTotal, float64(sum.RecordsRead), metrics.Labels{"source": src.Name, "kind": "read"})

	// NORMALIZING.
	r.stage(&sum, src, StateNormalizing)
	for i, ts := range sets {
		res := normalize.Normalize(ts.set, ts.target, r.cfg.Defaults.DateLayout)
		sets[i].set = res.Set
		sum.RecordsRejected += res.Rejected
		for reason, n := range res.Reasons {
			sum.RejectReasons[reason] += n
		}
	}
	if sum.RecordsRejected > 0 {
		metrics.IncCounter(metrics.RecordsTotal, float64(sum.RecordsRejected), metrics.Labels{"source": src.Name, "kind": "rejected"})
	}

	// A source where nothing survives normalization is a schema violation,
	// not a partial success.
	surviving := 0
	for _, ts := range sets {
		surviving += ts.set.Len()
	}
	if sum.RecordsRead > 0 && surviving == 0 {
		return fail(&SchemaViolationError{Rejected: sum.RecordsRejected, Reasons: sum.RejectReasons})
	}

	// BATCHING.
	r.stage(&sum, src, StateBatching)
	size := r.cfg.BatchSize(src)
	type tableBatch struct {
		target config.Target
		batch  batch.Batch
	}
	var batches []tableBatch
	for _, ts := range sets {
		for _, b := range batch.Split(ts.set, size) {
			batches = append(batches, tableBatch{target: ts.target, batch: b})
		}
	}

	// LOADING.
	r.stage(&sum, src, StateLoading)
	for _, ts := range sets {
		if err := r.sink.EnsureTable(ctx, sinkTable(ts.target)); err != nil {
			return fail(fmt.Errorf("ensure table %s: %w", ts.target.Table, err))
		}
	}

	var loadErr error
	for _, tb := range batches {
		n, err := r.sink.Insert(ctx, sinkTable(tb.target), tb.batch)
		switch {
		case err == nil:
			sum.BatchesSent++
			sum.Inserted += n
			metrics.IncCounter(metrics.BatchesTotal, 1, metrics.Labels{"source": src.Name, "status": "sent"})
		case sink.IsRejected(err):
			// Rejections are permanent and batch-scoped; remaining batches
			// still get their chance so one bad batch does not strand the
			// rest of the file.
			sum.BatchesRejected++
			metrics.IncCounter(metrics.BatchesTotal, 1, metrics.Labels{"source": src.Name, "status": "rejected"})
			r.log.Printf("source %s: batch for %s rejected: %v", src.Name, tb.batch.Table, err)
		default:
			// Transport exhaustion is fatal to this batch only; later
			// batches may still land once the sink recovers.
			sum.BatchesFailed++
			if loadErr == nil {
				loadErr = fmt.Errorf("load %s: %w", tb.batch.Table, err)
			}
			metrics.IncCounter(metrics.BatchesTotal, 1, metrics.Labels{"source": src.Name, "status": "failed"})
			r.log.Printf("source %s: batch for %s failed: %v", src.Name, tb.batch.Table, err)
		}
	}
	if sum.BatchesFailed > 0 && sum.BatchesSent == 0 {
		return fail(loadErr)
	}
	if sum.Inserted > 0 {
		metrics.IncCounter(metrics.RecordsTotal, float64(sum.Inserted), metrics.Labels{"source": src.Name, "kind": "inserted"})
	}

	r.verify(ctx, &sum, sets)

	sum.State = StateDone
	return sum
}

// read runs the READING stage (and FLATTENING for tree-shaped sources) and
// returns one record set per target table, parent tables first.
func (r *Runner) read(sum *Summary, src config.Source) ([]tableSet, error) {
	r.stage(sum, src, StateReading)

	switch src.Parser {
	case "csv", "xlsx", "json":
		primary, ok := src.Primary()
		if !ok {
			return nil, fmt.Errorf("source %s: no primary target", src.Name)
		}

		var (
			set *record.Set
			err error
		)
		switch src.Parser {
		case "csv":
			set, err = csv.ReadRecords(src.Path, primary.Table, src.Options)
		case "xlsx":
			set, err = xlsx.ReadRecords(src.Path, primary.Table, src.Options)
		case "json":
			set, err = json.ReadRecords(src.Path, primary.Table, src.Options)
		}
		if err != nil {
			return nil, err
		}

		sets := []tableSet{{target: primary, set: set}}
		if src.Explode != nil {
			child, ok := src.TargetForTable(src.Explode.Table)
			if !ok {
				return nil, fmt.Errorf("source %s: explode table %s has no target", src.Name, src.Explode.Table)
			}
			sets = append(sets, tableSet{
				target: child,
				set:    flatten.Explode(set, primary.PrimaryKey, *src.Explode),
			})
		}
		return sets, nil

	case "html":
		if src.RecordSelector != "" {
			primary, ok := src.Primary()
			if !ok {
				return nil, fmt.Errorf("source %s: no primary target", src.Name)
			}
			set, err := html.ExtractRecords(src.Path, primary.Table, src.RecordSelector, src.Mappings)
			if err != nil {
				return nil, err
			}
			return []tableSet{{target: primary, set: set}}, nil
		}
		root, err := html.ParseTree(src.Path)
		if err != nil {
			return nil, err
		}
		return r.flattenTree(sum, src, root)

	case "xml":
		root, err := xml.ParseFile(src.Path)
		if err != nil {
			return nil, err
		}
		return r.flattenTree(sum, src, root)

	default:
		return nil, fmt.Errorf("source %s: unknown parser %q", src.Name, src.Parser)
	}
}

func (r *Runner) flattenTree(sum *Summary, src config.Source, root *tree.Node) ([]tableSet, error) {
	r.stage(sum, src, StateFlattening)

	sets := flatten.Flatten(root, src.Targets, src.Edges)
	out := make([]tableSet, 0, len(sets))
	for _, s := range sets {
		t, ok := src.TargetForTable(s.Table)
		if !ok {
			return nil, fmt.Errorf("source %s: no target for table %s", src.Name, s.Table)
		}
		out = append(out, tableSet{target: t, set: s})
	}
	return out, nil
}

// verify asks a counting sink for post-load row counts. Purely
// informational; count mismatches are logged, never fatal.
func (r *Runner) verify(ctx context.Context, sum *Summary, sets []tableSet) {
	counter, ok := r.sink.(sink.Counter)
	if !ok {
		return
	}

	sum.TableCounts = map[string]int64{}
	for _, ts := range sets {
		n, err := counter.Count(ctx, ts.target.Table)
		if err != nil {
			r.log.Printf("source %s: count %s: %v", sum.Source, ts.target.Table, err)
			continue
		}
		sum.TableCounts[ts.target.Table] = n
		if n < int64(ts.set.Len()) {
			r.log.Printf("source %s: table %s holds %d rows, loaded %d this run", sum.Source, ts.target.Table, n, ts.set.Len())
		}
	}
}

// stage advances the state machine and records the previous stage's
// duration.
func (r *Runner) stage(sum *Summary, src config.Source, next State) {
	if sum.State != StatePending {
		metrics.ObserveHistogram(metrics.StageDurationSeconds, r.now().Sub(sum.stageStart).Seconds(),
			metrics.Labels{"source": src.Name, "stage": strings.ToLower(sum.State.String())})
	}
	sum.State = next
	sum.stageStart = r.now()
}

func sinkTable(t config.Target) sink.Table {
	return sink.Table{
		Name:       t.Table,
		PrimaryKey: t.PrimaryKey,
		Columns:    sortedColumns(t.Columns),
		Schema:     t.Schema,
	}
}

func sortedColumns(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
