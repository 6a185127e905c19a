// Package normalize coerces parsed records against a target's column
// contract, rejecting records that cannot satisfy it.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lifelog/internal/config"
	"lifelog/internal/record"
)

// Result is the outcome of normalizing one record set. Rejection is
// per-record: a single bad column rejects the whole record and the rest of
// the set proceeds. Reasons counts rejections by cause so the run summary
// can report what went wrong without logging every record.
type Result struct {
	Set      *record.Set
	Rejected int
	Reasons  map[string]int
}

// Dates and times are emitted as strings in these layouts regardless of the
// source's own formatting, so every sink sees one representation.
const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = "2006-01-02 15:04:05"
)

// fallbackLayouts are tried after the target's configured layout. They cover
// the formats the supported exports actually use.
var fallbackLayouts = []string{
	DatetimeLayout,
	DateLayout,
	"2006-01-02 15:04:05 -0700",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
}

// Normalize applies the target's column contract to every record:
//
//   - declared columns are coerced to their logical type
//   - required columns (the primary key is always required) must be present
//     and non-null
//   - unknown columns are dropped under the "lenient" policy (the default)
//     or reject the record under "strict"
//
// The input set is not mutated. Output columns are the declared columns in
// sorted order; output record order matches input order minus rejections.
// Normalizing an already-normalized set is a no-op.
func Normalize(set *record.Set, t config.Target, defaultLayout string) Result {
	columns := sortedColumns(t.Columns)
	layouts := dateLayouts(t, defaultLayout)

	required := map[string]bool{}
	if t.PrimaryKey != "" {
		required[t.PrimaryKey] = true
	}
	for _, c := range t.Required {
		required[c] = true
	}

	strict := t.Unknown == "strict"

	res := Result{
		Set:     record.NewSet(set.Table, columns),
		Reasons: map[string]int{},
	}

	for _, rec := range set.Records {
		out, reason := normalizeRecord(rec, t.Columns, columns, required, strict, layouts)
		if reason != "" {
			res.Rejected++
			res.Reasons[reason]++
			continue
		}
		res.Set.Append(out)
	}
	return res
}

func normalizeRecord(rec record.Record, types map[string]string, columns []string, required map[string]bool, strict bool, layouts []string) (record.Record, string) {
	if strict {
		for k := range rec {
			if _, ok := types[k]; !ok {
				return nil, "unknown column " + k
			}
		}
	}

	out := make(record.Record, len(columns))
	for _, col := range columns {
		v, ok := rec[col]
		if !ok || v == nil {
			if required[col] {
				return nil, "missing " + col
			}
			out[col] = nil
			continue
		}
		cv, err := coerce(v, types[col], layouts)
		if err != nil {
			return nil, fmt.Sprintf("bad %s %s", types[col], col)
		}
		out[col] = cv
	}
	return out, ""
}

// coerce converts a raw value to its logical type's canonical Go
// representation. Already-canonical values pass through unchanged, which is
// what makes Normalize idempotent.
func coerce(v any, typ string, layouts []string) (any, error) {
	switch typ {
	case "string":
		return coerceString(v)
	case "int":
		return coerceInt(v)
	case "float":
		return coerceFloat(v)
	case "decimal":
		return coerceDecimal(v)
	case "bool":
		return coerceBool(v)
	case "date":
		return coerceDate(v, layouts, DateLayout)
	case "datetime":
		return coerceDate(v, layouts, DatetimeLayout)
	default:
		return nil, fmt.Errorf("unknown type %q", typ)
	}
}

func coerceString(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return nil, fmt.Errorf("cannot stringify %T", v)
	}
}

func coerceInt(v any) (any, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case json.Number:
		return t.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	case float64:
		n := int64(t)
		if float64(n) != t {
			return nil, fmt.Errorf("%v is not integral", t)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to int", v)
	}
}

func coerceFloat(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return nil, fmt.Errorf("cannot coerce %T to float", v)
	}
}

func coerceDecimal(v any) (any, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(t))
	case json.Number:
		return decimal.NewFromString(t.String())
	case int64:
		return decimal.NewFromInt(t), nil
	case float64:
		return decimal.NewFromFloat(t), nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to decimal", v)
	}
}

func coerceBool(v any) (any, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y":
			return true, nil
		case "false", "0", "no", "n":
			return false, nil
		}
		return nil, fmt.Errorf("cannot coerce %q to bool", t)
	case json.Number:
		switch t.String() {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
		return nil, fmt.Errorf("cannot coerce %s to bool", t)
	default:
		return nil, fmt.Errorf("cannot coerce %T to bool", v)
	}
}

func coerceDate(v any, layouts []string, outLayout string) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("cannot coerce %T to date", v)
	}
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts.Format(outLayout), nil
		}
	}
	return nil, fmt.Errorf("unparseable date %q", s)
}

func dateLayouts(t config.Target, defaultLayout string) []string {
	layouts := make([]string, 0, len(fallbackLayouts)+2)
	if t.DateLayout != "" {
		layouts = append(layouts, t.DateLayout)
	}
	if defaultLayout != "" && defaultLayout != t.DateLayout {
		layouts = append(layouts, defaultLayout)
	}
	for _, l := range fallbackLayouts {
		if l != t.DateLayout && l != defaultLayout {
			layouts = append(layouts, l)
		}
	}
	return layouts
}

func sortedColumns(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
