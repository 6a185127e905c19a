package postgres

import (
	"strings"
	"testing"

	"lifelog/internal/batch"
	"lifelog/internal/record"
	"lifelog/internal/sink"
)

func txTable() sink.Table {
	return sink.Table{
		Name:       "transactions",
		PrimaryKey: "transaction_id",
		Columns:    []string{"transaction_id", "amount"},
		Schema: map[string]string{
			"transaction_id": "TEXT",
			"amount":         "NUMERIC",
		},
	}
}

func TestBuildInsertSQLPlaceholderNumbering(t *testing.T) {
	t.Parallel()

	b := batch.Batch{
		Table:   "transactions",
		Columns: []string{"transaction_id", "amount"},
		Records: []record.Record{
			{"transaction_id": "tx-1", "amount": "1.00"},
			{"transaction_id": "tx-2", "amount": "2.00"},
		},
	}

	q, args := buildInsertSQL(txTable(), b)

	if !strings.Contains(q, "($1, $2), ($3, $4)") {
		t.Fatalf("placeholder numbering wrong: %q", q)
	}
	if len(args) != 4 {
		t.Fatalf("len(args)=%d, want 4", len(args))
	}
	if args[0] != "tx-1" || args[3] != "2.00" {
		t.Fatalf("args=%v, want row-major order", args)
	}
}

func TestBuildInsertSQLConflictClause(t *testing.T) {
	t.Parallel()

	b := batch.Batch{
		Table:   "transactions",
		Columns: []string{"transaction_id", "amount"},
		Records: []record.Record{{"transaction_id": "tx-1", "amount": "1.00"}},
	}

	q, _ := buildInsertSQL(txTable(), b)

	want := `ON CONFLICT ("transaction_id") DO UPDATE SET "amount" = EXCLUDED."amount"`
	if !strings.Contains(q, want) {
		t.Fatalf("query %q missing conflict clause %q", q, want)
	}
}

func TestBuildInsertSQLNoPrimaryKeyPlainInsert(t *testing.T) {
	t.Parallel()

	tbl := txTable()
	tbl.PrimaryKey = ""
	b := batch.Batch{
		Table:   "transactions",
		Columns: []string{"transaction_id", "amount"},
		Records: []record.Record{{"transaction_id": "tx-1", "amount": "1.00"}},
	}

	q, _ := buildInsertSQL(tbl, b)
	if strings.Contains(q, "ON CONFLICT") {
		t.Fatalf("query %q has conflict clause without a primary key", q)
	}
}

func TestBuildInsertSQLKeyOnlyTableDoesNothing(t *testing.T) {
	t.Parallel()

	tbl := sink.Table{Name: "keys", PrimaryKey: "id", Columns: []string{"id"}}
	b := batch.Batch{
		Table:   "keys",
		Columns: []string{"id"},
		Records: []record.Record{{"id": "1"}},
	}

	q, _ := buildInsertSQL(tbl, b)
	if !strings.Contains(q, `ON CONFLICT ("id") DO NOTHING`) {
		t.Fatalf("query %q, want DO NOTHING for key-only table", q)
	}
}

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	q, ok := buildCreateSQL(txTable())
	if !ok {
		t.Fatal("buildCreateSQL()=false, want DDL")
	}
	if !strings.Contains(q, `CREATE TABLE IF NOT EXISTS "transactions"`) {
		t.Fatalf("ddl=%q, want create-if-not-exists", q)
	}
	if !strings.Contains(q, `"transaction_id" TEXT PRIMARY KEY`) {
		t.Fatalf("ddl=%q, want primary key on transaction_id", q)
	}

	if _, ok := buildCreateSQL(sink.Table{Name: "t"}); ok {
		t.Fatal("buildCreateSQL() without schema: want ok=false")
	}
}
