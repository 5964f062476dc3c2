package rowmodel

// Row is one physical row flowing through the merge pipeline: its column
// values plus the bookkeeping the merge needs to know which source part and
// offset it came from.
type Row struct {
	// Columns holds one Value per Schema.Columns entry, in schema order.
	Columns []Value

	// SourceIdx is the ascending index of the source part this row was read
	// from (0-based, in the order the future part lists its sources).
	SourceIdx int

	// SourceOffset is the row's ordinal position (_part_offset) within its
	// source part, as yielded by the Sequential Part Reader.
	SourceOffset uint64
}

// Clone returns a deep-enough copy of r suitable for buffering across a
// group boundary (Columns is copied; individual Value.Byt slices are not,
// since source blocks are immutable once read).
func (r Row) Clone() Row {
	cols := make([]Value, len(r.Columns))
	copy(cols, r.Columns)
	return Row{Columns: cols, SourceIdx: r.SourceIdx, SourceOffset: r.SourceOffset}
}

// Schema describes the table's physical columns and the subset participating
// in the sort key, plus the column indexes reserved for merge-mode roles.
type Schema struct {
	// Columns lists every physical column name, in on-disk order.
	Columns []string

	// KeyColumns are indexes into Columns forming the sort key, most
	// significant first. All key columns sort ascending.
	KeyColumns []int

	// SignColumn is the index of the Collapsing/VersionedCollapsing sign
	// column, or -1 if the table has none.
	SignColumn int

	// VersionColumn is the index of the Replacing/VersionedCollapsing
	// version column, or -1 if the table has none.
	VersionColumn int

	// IsDeletedColumn is the index of the Replacing is_deleted column, or -1.
	IsDeletedColumn int
}

// NewSchema builds a Schema with no mode-specific columns configured.
func NewSchema(columns []string, keyColumns []int) *Schema {
	return &Schema{
		Columns:         columns,
		KeyColumns:      keyColumns,
		SignColumn:      -1,
		VersionColumn:   -1,
		IsDeletedColumn: -1,
	}
}

// CompareKey compares a and b by the schema's sort key only.
func (s *Schema) CompareKey(a, b Row) int {
	for _, idx := range s.KeyColumns {
		if c := Compare(a.Columns[idx], b.Columns[idx]); c != 0 {
			return c
		}
	}
	return 0
}

// SameKey reports whether a and b share an equal sort key.
func (s *Schema) SameKey(a, b Row) bool {
	return s.CompareKey(a, b) == 0
}

// ColumnIndex returns the index of name in s.Columns, or -1 if absent.
func (s *Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
