package normalize

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"lifelog/internal/config"
	"lifelog/internal/record"
)

func moodTarget() config.Target {
	return config.Target{
		Table:      "moods",
		PrimaryKey: "entry_date",
		Required:   []string{"mood"},
		Columns: map[string]string{
			"entry_date": "date",
			"mood":       "string",
			"note":       "string",
		},
	}
}

func TestNormalizeRejectsMissingPrimaryKey(t *testing.T) {
	t.Parallel()

	set := record.NewSet("moods", []string{"entry_date", "mood", "note"})
	set.Append(record.Record{"entry_date": "2024-01-01", "mood": "good", "note": nil})
	set.Append(record.Record{"entry_date": nil, "mood": "meh", "note": nil})
	set.Append(record.Record{"entry_date": "2024-01-03", "mood": "rad", "note": "hi"})

	res := Normalize(set, moodTarget(), "2006-01-02")

	if res.Set.Len() != 2 {
		t.Fatalf("Len()=%d, want 2", res.Set.Len())
	}
	if res.Rejected != 1 {
		t.Fatalf("Rejected=%d, want 1", res.Rejected)
	}
	if res.Reasons["missing entry_date"] != 1 {
		t.Fatalf("Reasons=%v, want missing entry_date counted", res.Reasons)
	}
}

func TestNormalizeOptionalNullPasses(t *testing.T) {
	t.Parallel()

	set := record.NewSet("moods", []string{"entry_date", "mood", "note"})
	set.Append(record.Record{"entry_date": "2024-01-01", "mood": "good"})

	res := Normalize(set, moodTarget(), "2006-01-02")

	if res.Rejected != 0 {
		t.Fatalf("Rejected=%d, want 0", res.Rejected)
	}
	if v, ok := res.Set.Records[0]["note"]; !ok || v != nil {
		t.Fatalf("note=%v (present=%v), want explicit nil", v, ok)
	}
}

func TestNormalizeUnknownColumnPolicies(t *testing.T) {
	t.Parallel()

	mk := func() *record.Set {
		s := record.NewSet("moods", []string{"entry_date", "mood", "extra"})
		s.Append(record.Record{"entry_date": "2024-01-01", "mood": "good", "extra": "x"})
		return s
	}

	lenient := moodTarget()
	res := Normalize(mk(), lenient, "2006-01-02")
	if res.Rejected != 0 {
		t.Fatalf("lenient: Rejected=%d, want 0", res.Rejected)
	}
	if _, ok := res.Set.Records[0]["extra"]; ok {
		t.Fatal("lenient: unknown column survived normalization")
	}

	strict := moodTarget()
	strict.Unknown = "strict"
	res = Normalize(mk(), strict, "2006-01-02")
	if res.Rejected != 1 {
		t.Fatalf("strict: Rejected=%d, want 1", res.Rejected)
	}
	if res.Reasons["unknown column extra"] != 1 {
		t.Fatalf("strict: Reasons=%v, want unknown column counted", res.Reasons)
	}
}

func TestNormalizeCoercions(t *testing.T) {
	t.Parallel()

	target := config.Target{
		Table:      "workouts",
		PrimaryKey: "id",
		Columns: map[string]string{
			"id":       "int",
			"distance": "float",
			"cost":     "decimal",
			"indoor":   "bool",
			"day":      "date",
			"start":    "datetime",
		},
	}

	set := record.NewSet("workouts", []string{"id", "distance", "cost", "indoor", "day", "start"})
	set.Append(record.Record{
		"id":       json.Number("42"),
		"distance": "5.2",
		"cost":     "12.50",
		"indoor":   "yes",
		"day":      "2024-06-01",
		"start":    "2024-06-01T08:15:00Z",
	})

	res := Normalize(set, target, "2006-01-02")
	if res.Rejected != 0 {
		t.Fatalf("Rejected=%d (%v), want 0", res.Rejected, res.Reasons)
	}

	rec := res.Set.Records[0]
	if got := rec["id"]; got != int64(42) {
		t.Fatalf("id=%v (%T), want int64 42", got, got)
	}
	if got := rec["distance"]; got != 5.2 {
		t.Fatalf("distance=%v, want 5.2", got)
	}
	d, ok := rec["cost"].(decimal.Decimal)
	if !ok || !d.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("cost=%v (%T), want decimal 12.50", rec["cost"], rec["cost"])
	}
	if got := rec["indoor"]; got != true {
		t.Fatalf("indoor=%v, want true", got)
	}
	if got := rec["day"]; got != "2024-06-01" {
		t.Fatalf("day=%v, want 2024-06-01", got)
	}
	if got := rec["start"]; got != "2024-06-01 08:15:00" {
		t.Fatalf("start=%v, want canonical datetime", got)
	}
}

func TestNormalizeCoercionFailureRejectsRecord(t *testing.T) {
	t.Parallel()

	target := config.Target{
		Table:      "t",
		PrimaryKey: "id",
		Columns:    map[string]string{"id": "int", "n": "float"},
	}

	set := record.NewSet("t", []string{"id", "n"})
	set.Append(record.Record{"id": "1", "n": "2.5"})
	set.Append(record.Record{"id": "2", "n": "not-a-number"})

	res := Normalize(set, target, "")
	if res.Set.Len() != 1 || res.Rejected != 1 {
		t.Fatalf("Len()=%d Rejected=%d, want 1/1", res.Set.Len(), res.Rejected)
	}
	if res.Reasons["bad float n"] != 1 {
		t.Fatalf("Reasons=%v, want bad float n", res.Reasons)
	}
}

func TestNormalizeDateLayoutOverride(t *testing.T) {
	t.Parallel()

	target := config.Target{
		Table:      "health",
		PrimaryKey: "start",
		Columns:    map[string]string{"start": "datetime"},
		DateLayout: "2006-01-02 15:04:05 -0700",
	}

	set := record.NewSet("health", []string{"start"})
	set.Append(record.Record{"start": "2024-05-30 08:00:00 -0700"})

	res := Normalize(set, target, "2006-01-02")
	if res.Rejected != 0 {
		t.Fatalf("Rejected=%d (%v), want 0", res.Rejected, res.Reasons)
	}
	if got := res.Set.Records[0]["start"]; got != "2024-05-30 08:00:00" {
		t.Fatalf("start=%v, want layout-converted datetime", got)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	target := config.Target{
		Table:      "t",
		PrimaryKey: "id",
		Columns: map[string]string{
			"id":   "int",
			"cost": "decimal",
			"day":  "date",
			"ok":   "bool",
		},
	}

	set := record.NewSet("t", []string{"id", "cost", "day", "ok"})
	set.Append(record.Record{"id": "7", "cost": "1.25", "day": "2024-02-03", "ok": "true"})

	first := Normalize(set, target, "2006-01-02")
	second := Normalize(first.Set, target, "2006-01-02")

	if second.Rejected != 0 {
		t.Fatalf("second pass Rejected=%d (%v), want 0", second.Rejected, second.Reasons)
	}
	a, b := first.Set.Records[0], second.Set.Records[0]
	for _, col := range first.Set.Columns {
		av, bv := a[col], b[col]
		if ad, ok := av.(decimal.Decimal); ok {
			if !ad.Equal(bv.(decimal.Decimal)) {
				t.Fatalf("column %s changed between passes: %v vs %v", col, av, bv)
			}
			continue
		}
		if av != bv {
			t.Fatalf("column %s changed between passes: %v vs %v", col, av, bv)
		}
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	set := record.NewSet("moods", []string{"entry_date", "mood"})
	set.Append(record.Record{"entry_date": "2024-01-01", "mood": "good"})

	target := moodTarget()
	Normalize(set, target, "2006-01-02")

	if got := set.Records[0]["entry_date"]; got != "2024-01-01" {
		t.Fatalf("input mutated: entry_date=%v", got)
	}
}
