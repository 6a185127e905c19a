// Package batch groups normalized record sets into bounded batches for the
// sink clients.
package batch

import "lifelog/internal/record"

// Batch is one sink-sized slice of a record set. Records keep the set's
// order; concatenating a set's batches in sequence reconstructs the set.
type Batch struct {
	Table   string
	Columns []string
	Records []record.Record
}

// Len returns the number of records in the batch.
func (b Batch) Len() int {
	return len(b.Records)
}

// Split partitions a set into batches of at most max records. Every batch
// except possibly the last holds exactly max records. An empty set yields no
// batches. A max of zero or less falls back to one batch holding everything.
func Split(set *record.Set, max int) []Batch {
	if set.Len() == 0 {
		return nil
	}
	if max <= 0 {
		max = set.Len()
	}

	out := make([]Batch, 0, (set.Len()+max-1)/max)
	for start := 0; start < set.Len(); start += max {
		end := start + max
		if end > set.Len() {
			end = set.Len()
		}
		out = append(out, Batch{
			Table:   set.Table,
			Columns: set.Columns,
			Records: set.Records[start:end],
		})
	}
	return out
}
