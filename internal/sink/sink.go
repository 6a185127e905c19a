// Package sink defines the loading backends: the insertion HTTP API used in
// normal runs, and direct database backends for local runs and tests.
// Backends register themselves by kind, mirroring database/sql drivers.
package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lifelog/internal/batch"
)

// Table describes one sink table: where batches land and, when Schema is
// set, how to provision it.
type Table struct {
	Name       string
	PrimaryKey string

	// Columns is the declared column order for provisioning and inserts.
	Columns []string

	// Schema maps column name to the sink's type declaration. Empty when the
	// table is expected to already exist.
	Schema map[string]string
}

// Client is the interface every backend implements.
//
// Insert loads one batch and reports how many records the sink accepted.
// Failure classification matters more than the message:
//
//   - *RejectedError: the sink refused the batch. Permanent; never retried.
//   - *UnavailableError: the sink could not be reached or answered with a
//     transient failure after retries were exhausted.
//   - *AuthError: credentials were rejected and re-authentication failed.
//
// Implementations own their retry policy. The pipeline treats any error from
// Insert as final for that source.
type Client interface {
	EnsureTable(ctx context.Context, t Table) error
	Insert(ctx context.Context, t Table, b batch.Batch) (int64, error)
	Close()
}

// Counter is implemented by backends that can report a table's row count,
// used for post-load verification. The HTTP backend cannot.
type Counter interface {
	Count(ctx context.Context, table string) (int64, error)
}

// Config carries backend selection plus the connection and retry settings.
type Config struct {
	Kind     string // "http" | "postgres" | "sqlite" | "mssql"
	URL      string
	DSN      string
	Username string
	Password string

	// DBName is the logical database name, sent with every HTTP request.
	DBName string

	// RetryMax and Backoff govern transient-failure retries where the
	// backend supports them.
	RetryMax int
	Backoff  time.Duration
}

type factory func(ctx context.Context, cfg Config) (Client, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend factory under a kind. Backend packages call
// this from init(); selecting a backend is then a blank import away.
//
// Panics on empty kind, nil factory, or duplicate registration, so a wiring
// mistake fails at startup rather than at load time.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("sink: Register called with empty kind")
	}
	if f == nil {
		panic("sink: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("sink: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Client for the configured kind.
func New(ctx context.Context, cfg Config) (Client, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("sink: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("sink: unsupported kind=%q", cfg.Kind)
	}
	return f(ctx, cfg)
}
