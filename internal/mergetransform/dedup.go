package mergetransform

import "github.com/graintree/graintree/internal/rowmodel"

// Dedup is the downstream distinct-by-sort-key filter spec.md §4.2 appends
// after the transform when deduplicate_by_columns (or a full-row dedup) is
// requested. It assumes its input arrives in non-decreasing sort-key order,
// which every Merger.Run output satisfies.
type Dedup struct {
	columns []int
	have    bool
	last    []rowmodel.Value
}

// NewDedup builds a Dedup comparing rows by columns. A nil or empty columns
// slice compares the full row.
func NewDedup(columns []int) *Dedup {
	return &Dedup{columns: columns}
}

// Keep reports whether row is the first row seen with its dedup key, and
// records that key for the next call.
func (d *Dedup) Keep(row rowmodel.Row) bool {
	key := d.keyOf(row)
	if d.have && sameValues(d.last, key) {
		return false
	}
	d.have = true
	d.last = key
	return true
}

func (d *Dedup) keyOf(row rowmodel.Row) []rowmodel.Value {
	if len(d.columns) == 0 {
		return row.Columns
	}
	key := make([]rowmodel.Value, len(d.columns))
	for i, col := range d.columns {
		key[i] = row.Columns[col]
	}
	return key
}

func sameValues(a, b []rowmodel.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if rowmodel.Compare(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}
