package csv

import (
	"os"
	"path/filepath"
	"testing"

	"lifelog/internal/config"
	"lifelog/internal/parser"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadRecordsPreservesOrder(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "moods.csv", []byte("Full Date,Mood\n2024-01-01,good\n2024-01-02,meh\n2024-01-03,rad\n"))

	set, err := ReadRecords(path, "moods", nil)
	if err != nil {
		t.Fatalf("ReadRecords() error: %v", err)
	}

	if set.Table != "moods" {
		t.Fatalf("Table=%q, want moods", set.Table)
	}
	want := []string{"full_date", "mood"}
	for i, c := range want {
		if set.Columns[i] != c {
			t.Fatalf("Columns=%v, want %v", set.Columns, want)
		}
	}
	moods := []string{"good", "meh", "rad"}
	for i, m := range moods {
		if got := set.Records[i]["mood"]; got != m {
			t.Fatalf("Records[%d][mood]=%v, want %s", i, got, m)
		}
	}
}

func TestReadRecordsRaggedRowIsMalformed(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "bad.csv", []byte("a,b\n1,2\n3\n"))

	_, err := ReadRecords(path, "t", nil)
	if err == nil {
		t.Fatal("ReadRecords() on ragged csv: want error")
	}
	if !parser.IsMalformed(err) {
		t.Fatalf("error %v is not a MalformedError", err)
	}
}

func TestReadRecordsMissingFileIsMalformed(t *testing.T) {
	t.Parallel()

	_, err := ReadRecords(filepath.Join(t.TempDir(), "nope.csv"), "t", nil)
	if !parser.IsMalformed(err) {
		t.Fatalf("error %v is not a MalformedError", err)
	}
}

func TestReadRecordsStripsBOM(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "bom.csv", []byte("\uFEFFid,name\n1,x\n"))

	set, err := ReadRecords(path, "t", nil)
	if err != nil {
		t.Fatalf("ReadRecords() error: %v", err)
	}
	if set.Columns[0] != "id" {
		t.Fatalf("Columns[0]=%q, want id without BOM", set.Columns[0])
	}
}

func TestReadRecordsHeaderMap(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "map.csv", []byte("full_date,mood\n2024-01-01,good\n"))
	opts := config.Options{"header_map": map[string]any{"full_date": "entry_date"}}

	set, err := ReadRecords(path, "t", opts)
	if err != nil {
		t.Fatalf("ReadRecords() error: %v", err)
	}
	if set.Columns[0] != "entry_date" {
		t.Fatalf("Columns[0]=%q, want entry_date", set.Columns[0])
	}
	if set.Records[0]["entry_date"] != "2024-01-01" {
		t.Fatalf("record=%v, want entry_date populated", set.Records[0])
	}
}

func TestReadRecordsEmptyCellsAreNull(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "nulls.csv", []byte("a,b\n1,\n,2\n"))

	set, err := ReadRecords(path, "t", nil)
	if err != nil {
		t.Fatalf("ReadRecords() error: %v", err)
	}
	if set.Records[0]["b"] != nil {
		t.Fatalf("Records[0][b]=%v, want nil", set.Records[0]["b"])
	}
	if set.Records[1]["a"] != nil {
		t.Fatalf("Records[1][a]=%v, want nil", set.Records[1]["a"])
	}
}

func TestReadRecordsLatin1(t *testing.T) {
	t.Parallel()

	// "café" with 0xE9 (latin-1 é).
	path := writeFile(t, "latin.csv", []byte{'n', 'a', 'm', 'e', '\n', 'c', 'a', 'f', 0xE9, '\n'})
	opts := config.Options{"encoding": "latin-1"}

	set, err := ReadRecords(path, "t", opts)
	if err != nil {
		t.Fatalf("ReadRecords() error: %v", err)
	}
	if got := set.Records[0]["name"]; got != "café" {
		t.Fatalf("Records[0][name]=%q, want café", got)
	}
}

func TestReadRecordsCustomDelimiter(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "semi.csv", []byte("a;b\n1;2\n"))
	opts := config.Options{"comma": ";"}

	set, err := ReadRecords(path, "t", opts)
	if err != nil {
		t.Fatalf("ReadRecords() error: %v", err)
	}
	if set.Records[0]["b"] != "2" {
		t.Fatalf("Records[0][b]=%v, want 2", set.Records[0]["b"])
	}
}
