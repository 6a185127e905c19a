// Package mssql is the SQL Server sink backend.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"lifelog/internal/batch"
	"lifelog/internal/record"
	"lifelog/internal/sink"
)

func init() {
	sink.Register("mssql", New)
}

type Backend struct {
	db *sql.DB
}

func New(ctx context.Context, cfg sink.Config) (sink.Client, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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

// EnsureTable creates the table when absent. SQL Server has no CREATE TABLE
// IF NOT EXISTS, so existence is guarded via OBJECT_ID.
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

// Insert upserts the batch with a MERGE keyed on the primary key. Without a
// primary key it degrades to a plain insert.
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

func (b *Backend) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+msIdent(table)).Scan(&n)
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
			typ = "NVARCHAR(MAX)"
		}
		col := msIdent(c) + " " + typ
		if c == t.PrimaryKey {
			col += " PRIMARY KEY"
		}
		parts = append(parts, col)
	}
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (\n  %s\n);",
		t.Name, msIdent(t.Name), strings.Join(parts, ",\n  "),
	), true
}

func buildInsertSQL(t sink.Table, bt batch.Batch) (string, []any) {
	if t.PrimaryKey == "" {
		return buildPlainInsertSQL(bt)
	}

	cols := make([]string, len(bt.Columns))
	for i, c := range bt.Columns {
		cols[i] = msIdent(c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE %s AS target USING (VALUES ", msIdent(bt.Table))

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
			fmt.Fprintf(&b, "@p%d", n)
			n++
			args = append(args, valueOf(rec, c))
		}
		b.WriteString(")")
	}

	fmt.Fprintf(&b, ") AS source (%s) ON target.%s = source.%s",
		strings.Join(cols, ", "), msIdent(t.PrimaryKey), msIdent(t.PrimaryKey))

	var sets []string
	for _, c := range bt.Columns {
		if c == t.PrimaryKey {
			continue
		}
		sets = append(sets, fmt.Sprintf("target.%s = source.%s", msIdent(c), msIdent(c)))
	}
	if len(sets) > 0 {
		b.WriteString(" WHEN MATCHED THEN UPDATE SET " + strings.Join(sets, ", "))
	}

	srcCols := make([]string, len(cols))
	for i, c := range cols {
		srcCols[i] = "source." + c
	}
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		strings.Join(cols, ", "), strings.Join(srcCols, ", "))

	return b.String(), args
}

func buildPlainInsertSQL(bt batch.Batch) (string, []any) {
	cols := make([]string, len(bt.Columns))
	for i, c := range bt.Columns {
		cols[i] = msIdent(c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", msIdent(bt.Table), strings.Join(cols, ", "))

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
			fmt.Fprintf(&b, "@p%d", n)
			n++
			args = append(args, valueOf(rec, c))
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args
}

func valueOf(rec record.Record, col string) any {
	return rec[col]
}

func msIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}
