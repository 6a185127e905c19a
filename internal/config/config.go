// Package config defines the run configuration for the lifelog pipeline:
// the sink connection, per-source descriptors, and shared defaults.
//
// Configuration is a single JSON document loaded once per run and passed
// explicitly into the pipeline driver. Nothing in this package is
// process-global mutable state.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config is the root configuration document.
type Config struct {
	// Job is the logical job name used for metrics tagging.
	Job string `json:"job"`

	// DBName is the logical database name sent to the sink.
	DBName string `json:"db_name"`

	Sink     Sink     `json:"sink"`
	Defaults Defaults `json:"defaults"`
	Sources  []Source `json:"sources"`
}

// Sink selects and configures the sink backend.
//
// Kind "http" is the normal mode: batches go to the insertion API
// (get-token / insert-data / create-table). The database kinds load
// directly and are mainly useful for local runs and tests.
type Sink struct {
	Kind     string  `json:"kind"` // "http" | "postgres" | "sqlite" | "mssql"
	URL      string  `json:"url,omitempty"`
	DSN      string  `json:"dsn,omitempty"`
	Username string  `json:"username,omitempty"`
	Password string  `json:"password,omitempty"`
	Options  Options `json:"options,omitempty"`
}

// Defaults are applied to every source that does not override them.
type Defaults struct {
	MaxBatchSize int    `json:"max_batch_size"`
	RetryMax     int    `json:"retry_max"`
	BackoffMS    int    `json:"backoff_ms"`
	DateLayout   string `json:"date_layout"`
}

const (
	DefaultMaxBatchSize = 500
	DefaultRetryMax     = 3
	DefaultBackoffMS    = 500
	DefaultDateLayout   = "2006-01-02"
)

// Source describes one data source: where the file lives, how to parse it,
// and which sink tables its records target.
type Source struct {
	Name    string  `json:"name"`
	Path    string  `json:"path"`
	Parser  string  `json:"parser"` // "csv" | "xlsx" | "json" | "xml" | "html"
	Options Options `json:"options,omitempty"`

	// MaxBatchSize overrides Defaults.MaxBatchSize when > 0.
	MaxBatchSize int `json:"max_batch_size,omitempty"`

	// Targets enumerate the sink tables this source feeds. Tabular sources
	// have exactly one target (plus one more when Explode is set);
	// hierarchical sources have one target per declared element.
	Targets []Target `json:"targets"`

	// Edges declare parent-child linkage for hierarchical sources.
	Edges []Edge `json:"edges,omitempty"`

	// RecordSelector and Mappings switch an HTML source into record mode:
	// each element matched by RecordSelector becomes one record, with
	// columns extracted per mapping. Mutually exclusive with Edges.
	RecordSelector string    `json:"record_selector,omitempty"`
	Mappings       []Mapping `json:"mappings,omitempty"`

	// Explode splits a list-valued column into a child record set.
	Explode *Explode `json:"explode,omitempty"`
}

// Target binds an element (or the whole tabular record set) to a sink table
// and declares the column contract the normalizer enforces.
type Target struct {
	Table string `json:"table"`

	// Element is the source element name for hierarchical sources;
	// empty for tabular targets.
	Element string `json:"element,omitempty"`

	PrimaryKey string   `json:"primary_key"`
	Required   []string `json:"required,omitempty"`

	// Columns maps column name to logical type:
	// "string", "int", "float", "decimal", "bool", "date", "datetime".
	Columns map[string]string `json:"columns"`

	// Schema maps column name to the sink's type declaration, used by
	// create-table provisioning. Optional; tables may already exist.
	Schema map[string]string `json:"schema,omitempty"`

	// Unknown selects the policy for columns absent from Columns:
	// "lenient" (default) drops them, "strict" rejects the record.
	Unknown string `json:"unknown,omitempty"`

	// DateLayout overrides Defaults.DateLayout for this target's
	// date/datetime coercion.
	DateLayout string `json:"date_layout,omitempty"`
}

// Edge declares a parent-element to child-element relationship for the
// flattener. The parent's ParentKey attribute value is injected into every
// matching child record under the ForeignKey column.
type Edge struct {
	Parent     string `json:"parent"`
	Child      string `json:"child"`
	ParentKey  string `json:"parent_key"`
	ForeignKey string `json:"foreign_key"`
}

// Mapping is one HTML extraction rule, evaluated relative to the record
// container matched by Source.RecordSelector.
type Mapping struct {
	Selector string `json:"selector"`
	Extract  string `json:"extract"` // "text" | "attr"
	Attr     string `json:"attr,omitempty"`
	Column   string `json:"column"`
	Match    string `json:"match,omitempty"` // optional regex filter
	All      bool   `json:"all,omitempty"`   // join all matches
}

// Explode splits a delimiter-packed column into one child record per element.
// The child records target Table (which must appear in Targets) and carry the
// parent's primary-key value under ForeignKey.
type Explode struct {
	Column     string `json:"column"`
	Separator  string `json:"separator"`
	Table      string `json:"table"`
	ForeignKey string `json:"foreign_key"`

	// ValueColumn names the child column receiving each element.
	// Defaults to Column.
	ValueColumn string `json:"value_column,omitempty"`
}

// Load reads and decodes a config file, expands ${ENV} references in sink
// credentials and locations, and fills in defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	dec := json.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.Sink.URL = os.ExpandEnv(cfg.Sink.URL)
	cfg.Sink.DSN = os.ExpandEnv(cfg.Sink.DSN)
	cfg.Sink.Username = os.ExpandEnv(cfg.Sink.Username)
	cfg.Sink.Password = os.ExpandEnv(cfg.Sink.Password)

	cfg.applyDefaults()
	return cfg, nil
}

// LoadEnv loads a .env file into the process environment before config
// expansion. A missing file is not an error; explicit env wins over .env.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Defaults.MaxBatchSize <= 0 {
		c.Defaults.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.Defaults.RetryMax <= 0 {
		c.Defaults.RetryMax = DefaultRetryMax
	}
	if c.Defaults.BackoffMS <= 0 {
		c.Defaults.BackoffMS = DefaultBackoffMS
	}
	if c.Defaults.DateLayout == "" {
		c.Defaults.DateLayout = DefaultDateLayout
	}
}

// BatchSize resolves the effective batch size for a source.
func (c *Config) BatchSize(s Source) int {
	if s.MaxBatchSize > 0 {
		return s.MaxBatchSize
	}
	return c.Defaults.MaxBatchSize
}

// TargetFor returns the target bound to an element name, or false.
func (s Source) TargetFor(element string) (Target, bool) {
	for _, t := range s.Targets {
		if t.Element == element {
			return t, true
		}
	}
	return Target{}, false
}

// TargetForTable returns the target bound to a table name, or false.
func (s Source) TargetForTable(table string) (Target, bool) {
	for _, t := range s.Targets {
		if t.Table == table {
			return t, true
		}
	}
	return Target{}, false
}

// Primary returns the first target without an element binding: the record
// set a tabular source produces directly.
func (s Source) Primary() (Target, bool) {
	for _, t := range s.Targets {
		if t.Element == "" && (s.Explode == nil || t.Table != s.Explode.Table) {
			return t, true
		}
	}
	return Target{}, false
}
