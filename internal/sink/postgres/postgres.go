// Package postgres is the Postgres sink backend.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"lifelog/internal/batch"
	"lifelog/internal/record"
	"lifelog/internal/sink"
)

func init() {
	sink.Register("postgres", New)
}

type Backend struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg sink.Config) (sink.Client, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &sink.UnavailableError{Err: err}
	}
	return &Backend{pool: pool}, nil
}

func (b *Backend) Close() { b.pool.Close() }

func (b *Backend) EnsureTable(ctx context.Context, t sink.Table) error {
	ddl, ok := buildCreateSQL(t)
	if !ok {
		return nil
	}
	if _, err := b.pool.Exec(ctx, ddl); err != nil {
		return sink.Classify(t.Name, fmt.Errorf("create table %s: %w", t.Name, err))
	}
	return nil
}

// Insert upserts the batch with ON CONFLICT DO UPDATE keyed on the primary
// key, so reruns of the same export overwrite rather than fail.
func (b *Backend) Insert(ctx context.Context, t sink.Table, bt batch.Batch) (int64, error) {
	if bt.Len() == 0 {
		return 0, nil
	}

	q, args := buildInsertSQL(t, bt)
	cmd, err := b.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, sink.Classify(t.Name, err)
	}
	return cmd.RowsAffected(), nil
}

func (b *Backend) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := b.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgIdent(table)).Scan(&n)
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
		col := pgIdent(c) + " " + typ
		if c == t.PrimaryKey {
			col += " PRIMARY KEY"
		}
		parts = append(parts, col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", pgIdent(t.Name), strings.Join(parts, ",\n  ")), true
}

// buildInsertSQL is pure so placeholder numbering and the conflict clause
// can be unit tested without a database.
func buildInsertSQL(t sink.Table, bt batch.Batch) (string, []any) {
	cols := make([]string, len(bt.Columns))
	for i, c := range bt.Columns {
		cols[i] = pgIdent(c)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(bt.Table))
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, bt.Len()*len(cols))
	n := 1
	for i, rec := range bt.Records {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, c := range bt.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
			args = append(args, valueOf(rec, c))
		}
		b.WriteString(")")
	}

	if t.PrimaryKey != "" {
		var sets []string
		for _, c := range bt.Columns {
			if c == t.PrimaryKey {
				continue
			}
			sets = append(sets, pgIdent(c)+" = EXCLUDED."+pgIdent(c))
		}
		if len(sets) == 0 {
			b.WriteString(" ON CONFLICT (" + pgIdent(t.PrimaryKey) + ") DO NOTHING")
		} else {
			b.WriteString(" ON CONFLICT (" + pgIdent(t.PrimaryKey) + ") DO UPDATE SET " + strings.Join(sets, ", "))
		}
	}

	return b.String(), args
}

func valueOf(rec record.Record, col string) any {
	return rec[col]
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
