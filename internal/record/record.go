// Package record defines the in-memory tabular representation shared by the
// parsers, the flattener, the normalizer and the sink clients.
package record

// Record maps column names to scalar values. Values are one of:
// string, bool, int64, float64, decimal.Decimal, json.Number, or nil.
type Record map[string]any

// Set is an ordered sequence of records sharing one column schema and
// destined for a single sink table.
//
// Invariant (after normalization): every record carries exactly the keys in
// Columns. Parsers may produce records with missing keys; AlignColumns fills
// the gaps with nil so downstream stages can rely on a uniform key set.
type Set struct {
	Table   string
	Columns []string
	Records []Record
}

// NewSet creates an empty Set for the given table and column order.
func NewSet(table string, columns []string) *Set {
	return &Set{
		Table:   table,
		Columns: append([]string(nil), columns...),
	}
}

// Append adds a record preserving insertion order.
func (s *Set) Append(r Record) {
	s.Records = append(s.Records, r)
}

// Len returns the number of records in the set.
func (s *Set) Len() int {
	return len(s.Records)
}

// HasColumn reports whether name is part of the declared column schema.
func (s *Set) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn appends a column to the schema if it is not already declared.
func (s *Set) AddColumn(name string) {
	if !s.HasColumn(name) {
		s.Columns = append(s.Columns, name)
	}
}

// AlignColumns gives every record the full declared key set, filling missing
// columns with nil. Extra keys not present in Columns are left untouched;
// the normalizer decides whether to drop or reject them.
func (s *Set) AlignColumns() {
	for _, r := range s.Records {
		for _, c := range s.Columns {
			if _, ok := r[c]; !ok {
				r[c] = nil
			}
		}
	}
}

// Clone returns a deep-enough copy: records are copied map-by-map so the
// caller can mutate the clone without touching the original. Scalar values
// are shared, which is safe because the pipeline never mutates them in place.
func (s *Set) Clone() *Set {
	out := NewSet(s.Table, s.Columns)
	out.Records = make([]Record, 0, len(s.Records))
	for _, r := range s.Records {
		cp := make(Record, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out.Records = append(out.Records, cp)
	}
	return out
}
