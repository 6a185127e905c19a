// Package json reads JSON exports (arrays of objects, or envelope objects
// wrapping one) into a record set.
package json

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"lifelog/internal/config"
	"lifelog/internal/parser"
	"lifelog/internal/record"
)

// ReadRecords parses a JSON export into one record per object, in document
// order.
//
// Accepted roots:
//   - an array of objects
//   - an object whose first array-of-objects field holds the records
//     (the envelope pattern common in API export dumps)
//   - a single object, emitted as one record
//
// Nested objects are flattened into dotted keys ("snippet.title"), matching
// the way the export tooling names fields. Arrays of strings are joined with
// array_join_separator (default ","); other arrays are rejected per record
// by the normalizer since they have no scalar form.
//
// Options:
//   - header_map: map flattened key -> canonical column name
//   - array_join_separator: separator for string-array flattening
func ReadRecords(path, table string, opts config.Options) (*record.Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, parser.Malformed(path, err)
	}

	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, parser.Malformed(path, fmt.Errorf("decode: %w", err))
	}

	objs, err := rootObjects(root)
	if err != nil {
		return nil, parser.Malformed(path, err)
	}

	hm := opts.StringMap("header_map")
	sep := opts.String("array_join_separator", ",")

	set := record.NewSet(table, nil)
	for _, obj := range objs {
		flat := map[string]any{}
		flattenObject("", obj, flat, sep)

		rec := make(record.Record, len(flat))
		for _, k := range sortedKeys(flat) {
			col := k
			if mapped, ok := hm[k]; ok {
				col = mapped
			}
			set.AddColumn(col)
			rec[col] = flat[k]
		}
		set.Append(rec)
	}

	set.AlignColumns()
	return set, nil
}

// rootObjects resolves the record list from any accepted root shape.
func rootObjects(root any) ([]map[string]any, error) {
	switch v := root.(type) {
	case []any:
		return objectsFromArray(v)
	case map[string]any:
		// Envelope: first field (by sorted name, for determinism) whose
		// value is an array of objects carries the records.
		for _, k := range sortedKeys(v) {
			arr, ok := v[k].([]any)
			if !ok || len(arr) == 0 {
				continue
			}
			if _, ok := arr[0].(map[string]any); ok {
				return objectsFromArray(arr)
			}
		}
		return []map[string]any{v}, nil
	default:
		return nil, fmt.Errorf("unsupported root %T (want object or array)", root)
	}
}

func objectsFromArray(arr []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(arr))
	for i, it := range arr {
		if it == nil {
			continue
		}
		obj, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("element %d is not an object (got %T)", i, it)
		}
		out = append(out, obj)
	}
	return out, nil
}

// flattenObject walks nested objects producing dotted keys. String arrays
// collapse to a joined scalar; mixed arrays pass through untouched for the
// normalizer to reject.
func flattenObject(prefix string, obj map[string]any, out map[string]any, sep string) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			flattenObject(key, t, out, sep)
		case []any:
			out[key] = joinStringArray(t, sep)
		default:
			out[key] = v
		}
	}
}

func joinStringArray(arr []any, sep string) any {
	if len(arr) == 0 {
		return nil
	}
	ss := make([]string, 0, len(arr))
	for _, it := range arr {
		s, ok := it.(string)
		if !ok {
			return arr // mixed types; keep original
		}
		ss = append(ss, s)
	}
	return strings.Join(ss, sep)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
