package config

import (
	"fmt"
	"strings"
)

// Severity classifies a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding with a JSON-ish path to the offending field.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

var parserKinds = map[string]bool{
	"csv":  true,
	"xlsx": true,
	"json": true,
	"xml":  true,
	"html": true,
}

var columnTypes = map[string]bool{
	"string":   true,
	"int":      true,
	"float":    true,
	"decimal":  true,
	"bool":     true,
	"date":     true,
	"datetime": true,
}

// Validate checks structural consistency of a loaded config. It returns all
// findings rather than stopping at the first; the CLI prints them and refuses
// to run when any error-severity issue exists.
func Validate(cfg Config) []Issue {
	var issues []Issue
	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityError, path, fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf(format, a...)})
	}

	if cfg.DBName == "" {
		errf("db_name", "must be set")
	}

	switch cfg.Sink.Kind {
	case "http":
		if cfg.Sink.URL == "" {
			errf("sink.url", "required for sink.kind=http")
		}
		if cfg.Sink.Username == "" || cfg.Sink.Password == "" {
			warnf("sink", "username/password empty; token acquisition will fail unless the sink allows anonymous access")
		}
	case "postgres", "sqlite", "mssql":
		if cfg.Sink.DSN == "" {
			errf("sink.dsn", "required for sink.kind=%s", cfg.Sink.Kind)
		}
	case "":
		errf("sink.kind", "must be set")
	default:
		errf("sink.kind", "unknown kind %q", cfg.Sink.Kind)
	}

	if len(cfg.Sources) == 0 {
		errf("sources", "at least one source is required")
	}

	seen := map[string]bool{}
	for i, s := range cfg.Sources {
		p := fmt.Sprintf("sources[%d]", i)
		if s.Name == "" {
			errf(p+".name", "must be set")
		} else if seen[s.Name] {
			errf(p+".name", "duplicate source name %q", s.Name)
		} else {
			seen[s.Name] = true
		}
		if s.Path == "" {
			errf(p+".path", "must be set")
		}
		if !parserKinds[s.Parser] {
			errf(p+".parser", "unknown parser kind %q", s.Parser)
		}
		if len(s.Targets) == 0 {
			errf(p+".targets", "at least one target is required")
			continue
		}

		validateTargets(p, s, errf, warnf)
		validateShape(p, s, errf)
	}

	return issues
}

func validateTargets(p string, s Source, errf, warnf func(path, format string, a ...any)) {
	for j, t := range s.Targets {
		tp := fmt.Sprintf("%s.targets[%d]", p, j)
		if t.Table == "" {
			errf(tp+".table", "must be set")
		}
		if t.PrimaryKey == "" {
			warnf(tp+".primary_key", "no primary key; loads into %q append instead of upserting", t.Table)
		}
		if len(t.Columns) == 0 {
			errf(tp+".columns", "must declare at least one column")
		}
		for col, typ := range t.Columns {
			if !columnTypes[strings.ToLower(typ)] {
				errf(tp+".columns."+col, "unknown column type %q", typ)
			}
		}
		if t.PrimaryKey != "" && len(t.Columns) > 0 {
			if _, ok := t.Columns[t.PrimaryKey]; !ok {
				errf(tp+".primary_key", "%q is not a declared column", t.PrimaryKey)
			}
		}
		for _, req := range t.Required {
			if _, ok := t.Columns[req]; !ok && len(t.Columns) > 0 {
				errf(tp+".required", "%q is not a declared column", req)
			}
		}
		switch t.Unknown {
		case "", "lenient", "strict":
		default:
			errf(tp+".unknown", "must be \"strict\" or \"lenient\", got %q", t.Unknown)
		}
		if len(t.Schema) == 0 {
			warnf(tp+".schema", "no schema declared; create-tables will skip table %q", t.Table)
		}
	}
}

// validateShape checks the parser-kind-specific wiring: hierarchical sources
// need element bindings, record-mode HTML needs mappings, explode needs a
// matching child target.
func validateShape(p string, s Source, errf func(path, format string, a ...any)) {
	hierarchical := s.Parser == "xml" || (s.Parser == "html" && s.RecordSelector == "")

	if hierarchical {
		for j, t := range s.Targets {
			if t.Element == "" {
				errf(fmt.Sprintf("%s.targets[%d].element", p, j), "hierarchical sources must bind each target to an element")
			}
		}
		for j, e := range s.Edges {
			ep := fmt.Sprintf("%s.edges[%d]", p, j)
			if e.Parent == "" || e.Child == "" {
				errf(ep, "parent and child must be set")
			}
			if e.ParentKey == "" || e.ForeignKey == "" {
				errf(ep, "parent_key and foreign_key must be set")
			}
		}
	} else {
		if _, ok := s.Primary(); !ok {
			errf(p+".targets", "tabular sources need one target without an element binding")
		}
		if len(s.Edges) > 0 {
			errf(p+".edges", "edges are only valid for hierarchical sources")
		}
	}

	if s.Parser == "html" && s.RecordSelector != "" {
		if len(s.Mappings) == 0 {
			errf(p+".mappings", "record_selector requires at least one mapping")
		}
		for j, m := range s.Mappings {
			mp := fmt.Sprintf("%s.mappings[%d]", p, j)
			if m.Selector == "" || m.Column == "" {
				errf(mp, "selector and column must be set")
			}
			if m.Extract == "attr" && m.Attr == "" {
				errf(mp+".attr", "required when extract=attr")
			}
		}
	}

	if s.Explode != nil {
		ep := p + ".explode"
		if s.Explode.Column == "" || s.Explode.Table == "" || s.Explode.ForeignKey == "" {
			errf(ep, "column, table and foreign_key must be set")
		}
		if _, ok := s.TargetForTable(s.Explode.Table); !ok {
			errf(ep+".table", "%q does not match any target table", s.Explode.Table)
		}
	}
}

// HasError reports whether any issue carries error severity.
func HasError(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
