// Package sqlite is the SQLite sink backend, used for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"lifelog/internal/batch"
	"lifelog/internal/record"
	"lifelog/internal/sink"
)

func init() {
	sink.Register("sqlite", New)
}

type Backend struct {
	db *sql.DB
}

func New(ctx context.Context, cfg sink.Config) (sink.Client, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &sink.UnavailableError{Err: err}
	}
	return &Backend{db: db}, nil
}

func (b *Backend) Close() { _ = b.db.Close() }

// EnsureTable creates the table when a schema is declared, using the
// declared column order.
func (b *Backend) EnsureTable(ctx context.Context, t sink.Table) error {
	ddl, ok := buildCreateSQL(t)
	if !ok {
		return nil
	}
	if _, err := b.db.ExecContext(ctx, ddl); err != nil {
		return sink.Classify(t.Name, fmt.Errorf("create table %s: %w", t.Name, err))
	}
	return nil
}

// Insert upserts the batch in one statement. Rows whose primary key already
// exists are overwritten, so reruns of the same export converge instead of
// failing on the constraint.
func (b *Backend) Insert(ctx context.Context, t sink.Table, bt batch.Batch) (int64, error) {
	if bt.Len() == 0 {
		return 0, nil
	}

	q, args := buildInsertSQL(t, bt)
	res, err := b.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, sink.Classify(t.Name, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count reports the table's row count for post-load verification.
func (b *Backend) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+sqlIdent(table)).Scan(&n)
	if err != nil {
		return 0, sink.Classify(table, err)
	}
	return n, nil
}

func buildCreateSQL(t sink.Table) (string, bool) {
	if len(t.Schema) == 0 {
		return "", false
	}

	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ, ok := t.Schema[c]
		if !ok {
			typ = "TEXT"
		}
		col := sqlIdent(c) + " " + typ
		if c == t.PrimaryKey {
			col += " PRIMARY KEY"
		}
		parts = append(parts, col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  ")), true
}

// buildInsertSQL builds one multi-row upsert. Without a primary key it
// degrades to a plain insert.
func buildInsertSQL(t sink.Table, bt batch.Batch) (string, []any) {
	cols := make([]string, len(bt.Columns))
	for i, c := range bt.Columns {
		cols[i] = sqlIdent(c)
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(cols)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(bt.Table))
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, bt.Len()*len(cols))
	for i, rec := range bt.Records {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, rowArgs(rec, bt.Columns)...)
	}

	if t.PrimaryKey != "" {
		var sets []string
		for _, c := range bt.Columns {
			if c == t.PrimaryKey {
				continue
			}
			sets = append(sets, sqlIdent(c)+" = excluded."+sqlIdent(c))
		}
		if len(sets) == 0 {
			b.WriteString(" ON CONFLICT(" + sqlIdent(t.PrimaryKey) + ") DO NOTHING")
		} else {
			b.WriteString(" ON CONFLICT(" + sqlIdent(t.PrimaryKey) + ") DO UPDATE SET " + strings.Join(sets, ", "))
		}
	}

	return b.String(), args
}

func rowArgs(rec record.Record, columns []string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = rec[c]
	}
	return out
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
