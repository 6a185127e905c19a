package json

import (
	stdjson "encoding/json"
	"os"
	"path/filepath"
	"testing"

	"lifelog/internal/config"
	"lifelog/internal/parser"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestReadRecordsArrayRoot(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `[
		{"id": 1, "name": "Morning Run"},
		{"id": 2, "name": "Evening Ride"}
	]`)

	set, err := ReadRecords(path, "workouts", nil)
	if err != nil {
		t.Fatalf("ReadRecords() error: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("Len()=%d, want 2", set.Len())
	}
	if got := set.Records[0]["name"]; got != "Morning Run" {
		t.Fatalf("Records[0][name]=%v, want Morning Run", got)
	}
	if _, ok := set.Records[0]["id"].(stdjson.Number); !ok {
		t.Fatalf("Records[0][id] is %T, want json.Number", set.Records[0]["id"])
	}
}

func TestReadRecordsEnvelopeRoot(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `{"count": 2, "items": [{"id": 1}, {"id": 2}]}`)

	set, err := ReadRecords(path, "t", nil)
	if err != nil {
		t.Fatalf("ReadRecords() error: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("Len()=%d, want 2 (envelope items)", set.Len())
	}
}

func TestReadRecordsFlattensNestedObjects(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `[{"snippet": {"title": "clip", "channel": {"name": "c1"}}}]`)

	set, err := ReadRecords(path, "t", nil)
	if err != nil {
		t.Fatalf("ReadRecords() error: %v", err)
	}
	if got := set.Records[0]["snippet.title"]; got != "clip" {
		t.Fatalf("snippet.title=%v, want clip", got)
	}
	if got := set.Records[0]["snippet.channel.name"]; got != "c1" {
		t.Fatalf("snippet.channel.name=%v, want c1", got)
	}
}

func TestReadRecordsUnifiesSparseColumns(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `[{"a": 1}, {"b": 2}]`)

	set, err := ReadRecords(path, "t", nil)
	if err != nil {
		t.Fatalf("ReadRecords() error: %v", err)
	}
	if len(set.Columns) != 2 {
		t.Fatalf("Columns=%v, want union of a and b", set.Columns)
	}
	if v, ok := set.Records[0]["b"]; !ok || v != nil {
		t.Fatalf("Records[0][b]=%v (present=%v), want explicit nil", v, ok)
	}
}

func TestReadRecordsJoinsStringArrays(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `[{"tags": ["run", "morning"]}]`)
	opts := config.Options{"array_join_separator": " | "}

	set, err := ReadRecords(path, "t", opts)
	if err != nil {
		t.Fatalf("ReadRecords() error: %v", err)
	}
	if got := set.Records[0]["tags"]; got != "run | morning" {
		t.Fatalf("tags=%v, want joined string", got)
	}
}

func TestReadRecordsBadJSONIsMalformed(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `{"items": [`)

	_, err := ReadRecords(path, "t", nil)
	if !parser.IsMalformed(err) {
		t.Fatalf("error %v is not a MalformedError", err)
	}
}

func TestReadRecordsScalarRootIsMalformed(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `42`)

	_, err := ReadRecords(path, "t", nil)
	if !parser.IsMalformed(err) {
		t.Fatalf("error %v is not a MalformedError", err)
	}
}
