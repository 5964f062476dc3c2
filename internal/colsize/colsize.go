// Package colsize implements the Column-Size Estimator (spec.md component
// 2): maps column name to bytes on disk across all inputs, used for
// progress reporting and for the Horizontal Stage's direct-I/O decision.
// The Merge-Algorithm Chooser's thresholds are counts and do not read it.
package colsize

// ColumnBytes is one source part's on-disk byte size for one column.
type ColumnBytes struct {
	Name  string
	Bytes uint64
}

// Estimator aggregates per-column byte sizes across every source part of a
// merge.
type Estimator struct {
	totals     map[string]uint64
	keyColumns map[string]struct{}
}

// NewEstimator builds an Estimator from each source part's per-column byte
// sizes and the table's sort-key column names.
func NewEstimator(perSourceColumns [][]ColumnBytes, keyColumns []string) *Estimator {
	e := &Estimator{
		totals:     make(map[string]uint64),
		keyColumns: make(map[string]struct{}, len(keyColumns)),
	}
	for _, name := range keyColumns {
		e.keyColumns[name] = struct{}{}
	}
	for _, cols := range perSourceColumns {
		for _, cb := range cols {
			e.totals[cb.Name] += cb.Bytes
		}
	}
	return e
}

// ColumnWeight returns the total bytes on disk for name across all sources.
func (e *Estimator) ColumnWeight(name string) uint64 {
	return e.totals[name]
}

// KeyColumnsWeight returns the combined byte weight of every sort-key column.
func (e *Estimator) KeyColumnsWeight() uint64 {
	var total uint64
	for name := range e.keyColumns {
		total += e.totals[name]
	}
	return total
}

// TotalWeight returns the combined byte weight of every column, used to
// decide direct-I/O.
func (e *Estimator) TotalWeight() uint64 {
	var total uint64
	for _, b := range e.totals {
		total += b
	}
	return total
}
