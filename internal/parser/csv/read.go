// Package csv reads tabular CSV exports into a record set.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"lifelog/internal/config"
	"lifelog/internal/parser"
	"lifelog/internal/record"
)

// ReadRecords parses a CSV file into one record per data row, in input order.
// Column headers become record keys after normalization.
//
// Options:
//   - comma: field delimiter (default ",")
//   - trim_space: trim cell whitespace (default true)
//   - lazy_quotes: tolerate stray quotes (default false)
//   - header_map: map original header -> canonical column name
//   - encoding: "utf-8" (default), "latin-1" or "windows-1252" for legacy exports
//
// A row whose field count differs from the header fails the whole source with
// a parser.MalformedError: ragged tabular input signals a broken export, not
// a bad record.
func ReadRecords(path, table string, opts config.Options) (*record.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, parser.Malformed(path, err)
	}
	defer f.Close()

	r, err := decodeReader(f, opts.String("encoding", ""))
	if err != nil {
		return nil, parser.Malformed(path, err)
	}

	cr := csv.NewReader(r)
	cr.Comma = opts.Rune("comma", ',')
	cr.LazyQuotes = opts.Bool("lazy_quotes", false)
	// FieldsPerRecord left at 0: the reader enforces the header's width and
	// errors on ragged rows, which is exactly the contract we want.

	trim := opts.Bool("trim_space", true)
	hm := opts.StringMap("header_map")

	hdr, err := cr.Read()
	if err != nil {
		return nil, parser.Malformed(path, fmt.Errorf("read header: %w", err))
	}
	columns := normalizeHeader(hdr, hm)

	set := record.NewSet(table, columns)

	line := 1
	for {
		line++
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, parser.Malformed(path, fmt.Errorf("line %d: %w", line, err))
		}

		rec := make(record.Record, len(columns))
		for i, col := range columns {
			v := row[i]
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

// normalizeHeader canonicalizes header cells: trims whitespace, strips a BOM
// from the first cell, applies header_map overrides, and otherwise lowercases
// and underscores the name.
func normalizeHeader(hdr []string, hm map[string]string) []string {
	out := make([]string, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if mapped, ok := hm[h]; ok {
			out[i] = mapped
			continue
		}
		out[i] = strings.ReplaceAll(strings.ToLower(h), " ", "_")
	}
	return out
}

func decodeReader(r io.Reader, enc string) (io.Reader, error) {
	switch strings.ToLower(enc) {
	case "", "utf-8", "utf8":
		return r, nil
	case "latin-1", "latin1", "iso-8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
}
