// Package xlsx reads spreadsheet exports (the spend workbook) into a record
// set using excelize.
package xlsx

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"lifelog/internal/config"
	"lifelog/internal/parser"
	"lifelog/internal/record"
)

// ReadRecords parses one sheet of an XLSX workbook into one record per data
// row, in sheet order. The first row is the header.
//
// Options:
//   - sheet: sheet name (default: the workbook's first sheet)
//   - trim_space: trim cell whitespace (default true)
//   - header_map: map original header -> canonical column name
//
// XLSX trims trailing empty cells per row, so rows shorter than the header
// are padded with nulls rather than treated as ragged. Rows wider than the
// header are genuinely malformed and fail the source.
func ReadRecords(path, table string, opts config.Options) (*record.Set, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, parser.Malformed(path, err)
	}
	defer f.Close()

	sheet := opts.String("sheet", "")
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, parser.Malformed(path, fmt.Errorf("sheet %q: %w", sheet, err))
	}
	if len(rows) == 0 {
		return nil, parser.Malformed(path, fmt.Errorf("sheet %q is empty", sheet))
	}

	trim := opts.Bool("trim_space", true)
	hm := opts.StringMap("header_map")

	columns := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if mapped, ok := hm[h]; ok {
			columns[i] = mapped
			continue
		}
		columns[i] = strings.ReplaceAll(strings.ToLower(h), " ", "_")
	}

	set := record.NewSet(table, columns)
	for n, row := range rows[1:] {
		if len(row) > len(columns) {
			return nil, parser.Malformed(path, fmt.Errorf("row %d has %d cells, header has %d", n+2, len(row), len(columns)))
		}
		rec := make(record.Record, len(columns))
		for i, col := range columns {
			var v string
			if i < len(row) {
				v = row[i]
			}
			if trim {
				v = strings.TrimSpace(v)
			}
			if v == "" {
				rec[col] = nil
			} else {
				rec[col] = v
			}
		}
		set.Append(rec)
	}

	return set, nil
}
