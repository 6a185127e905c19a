package xlsx

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"lifelog/internal/config"
	"lifelog/internal/parser"
)

// writeWorkbook builds a small xlsx file with a Transactions sheet.
func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	sheet := "Transactions"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	f.SetActiveSheet(idx)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "spend.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func TestReadRecords(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, [][]any{
		{"Transaction ID", "Merchant", "Amount"},
		{"tx-1", "Grocer", "12.50"},
		{"tx-2", "Cafe", "3.80"},
	})

	set, err := ReadRecords(path, "transactions", config.Options{"sheet": "Transactions"})
	if err != nil {
		t.Fatalf("ReadRecords() error: %v", err)
	}

	want := []string{"transaction_id", "merchant", "amount"}
	for i, c := range want {
		if set.Columns[i] != c {
			t.Fatalf("Columns=%v, want %v", set.Columns, want)
		}
	}
	if set.Len() != 2 {
		t.Fatalf("Len()=%d, want 2", set.Len())
	}
	if got := set.Records[1]["merchant"]; got != "Cafe" {
		t.Fatalf("Records[1][merchant]=%v, want Cafe", got)
	}
}

func TestReadRecordsShortRowsPadWithNull(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, [][]any{
		{"a", "b", "c"},
		{"1", "2"},
	})

	set, err := ReadRecords(path, "t", config.Options{"sheet": "Transactions"})
	if err != nil {
		t.Fatalf("ReadRecords() error: %v", err)
	}
	if set.Records[0]["c"] != nil {
		t.Fatalf("Records[0][c]=%v, want nil", set.Records[0]["c"])
	}
}

func TestReadRecordsMissingFileIsMalformed(t *testing.T) {
	t.Parallel()

	_, err := ReadRecords(filepath.Join(t.TempDir(), "nope.xlsx"), "t", nil)
	if !parser.IsMalformed(err) {
		t.Fatalf("error %v is not a MalformedError", err)
	}
}

func TestReadRecordsMissingSheetIsMalformed(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, [][]any{{"a"}, {"1"}})

	_, err := ReadRecords(path, "t", config.Options{"sheet": "NoSuchSheet"})
	if !parser.IsMalformed(err) {
		t.Fatalf("error %v is not a MalformedError", err)
	}
}
