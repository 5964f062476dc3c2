// Package mergetransform implements the Merging-Transform Family (spec.md
// component 4): the seven mode-specific N-way sorted merges that reduce the
// rows of N sorted input streams sharing a schema into one sorted output
// stream, writing one rows-sources record per row read from an input. The
// N-way merge driver is adapted from the teacher's blockStreamMerger
// (github.com/VictoriaMetrics/VictoriaMetrics/lib/mergeset/merge.go): a
// container/heap priority queue over one buffered head row per source,
// generalized from fixed-width Items to typed rowmodel.Row values and from
// whole-block emission to a per-row reduce callback.
package mergetransform

import (
	"container/heap"
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"

	"github.com/graintree/graintree/internal/rowmodel"
	"github.com/graintree/graintree/internal/rowsources"
	"github.com/graintree/graintree/lib/atomicutil"
)

// rowsWrittenTotal is the process-wide rows_written progress counter
// spec.md §6 names, bumped at the same point the Merge List Element's own
// rows_written counter advances in the original: once per output row a
// Reducer actually emits, not once per input row read.
var rowsWrittenTotal = metrics.NewCounter(`graintree_rows_written_total`)

// Source yields a part's rows in ascending sort-key order. Next returns
// io.EOF once the source is exhausted.
type Source interface {
	Next() (rowmodel.Row, error)
}

// GroupMember is one input row belonging to an equal-key group, tagged with
// the index of the source it was read from.
type GroupMember struct {
	Row    rowmodel.Row
	Source int
}

// Output is one row a Reducer decides to emit for a group, naming which
// group member is its "carrier": the member whose SourceOffset provenance
// the output row inherits, and the only member of the group recorded with
// skip=false in the rows-sources stream on the output's behalf.
type Output struct {
	Row        rowmodel.Row
	CarrierIdx int
}

// Reducer implements one merge mode's equal-key-group reduction. Group is
// ordered ascending by source index (the tie-breaking "insertion order"
// invariant), since the driver's heap breaks key ties that way.
type Reducer interface {
	Reduce(group []GroupMember) []Output
}

// Stats accumulates row counters across a Run, mirroring the Merge List
// Element counters the Horizontal Stage reports as progress.
type Stats struct {
	RowsRead    uint64
	RowsWritten uint64
}

// Merger drives the N-way sorted merge and the configured Reducer.
type Merger struct {
	schema  *rowmodel.Schema
	sources []Source
	reducer Reducer
	rs      *rowsources.Writer

	heap rowHeap

	// started marks whether the heap has been seeded from every source.
	// RunChunk seeds it lazily on its first call so a caller can drive the
	// merge across many calls without re-reading already-consumed sources.
	started bool

	// rowsWritten is updated from Run/RunChunk and may be polled from
	// another goroutine via Progress while a merge is in flight, so it uses
	// atomicutil.Uint64 to avoid false sharing with nearby fields.
	rowsWritten atomicutil.Uint64
}

// Progress returns the number of rows emitted so far. Safe to call
// concurrently with Run, for reporting a long merge's progress.
func (m *Merger) Progress() uint64 {
	return m.rowsWritten.Load()
}

// NewMerger returns a Merger over sources, reduced by reducer. rs is
// optional: pass nil to skip rows-sources accounting, as when N == 1 and the
// reducer never skips a row (spec.md §3, "the stream is optional").
func NewMerger(schema *rowmodel.Schema, sources []Source, reducer Reducer, rs *rowsources.Writer) *Merger {
	return &Merger{
		schema:  schema,
		sources: sources,
		reducer: reducer,
		rs:      rs,
		heap:    rowHeap{schema: schema},
	}
}

// Run pulls every row from every source, reduces each equal-key group, and
// invokes emit once per output row in ascending sort-key order.
func (m *Merger) Run(emit func(rowmodel.Row) error) (Stats, error) {
	_, st, err := m.RunChunk(emit, 0)
	return st, err
}

// RunChunk resumes the merge where the previous call left off and processes
// equal-key groups until at least maxRows output rows have been emitted or
// every source is drained, whichever comes first (maxRows <= 0 means
// unbounded, matching Run). more reports whether any source still holds
// unprocessed rows, letting a caller poll a cancellation token between
// calls instead of running the whole merge in one uninterruptible pass.
func (m *Merger) RunChunk(emit func(rowmodel.Row) error, maxRows int) (more bool, st Stats, err error) {
	if !m.started {
		m.heap.items = m.heap.items[:0]
		for i := range m.sources {
			if err := m.fillHeap(i); err != nil {
				return false, st, err
			}
		}
		heap.Init(&m.heap)
		m.started = true
	}

	for m.heap.Len() > 0 {
		keyRow := m.heap.items[0].row
		var group []GroupMember
		for m.heap.Len() > 0 && m.schema.SameKey(m.heap.items[0].row, keyRow) {
			item := heap.Pop(&m.heap).(*headItem)
			group = append(group, GroupMember{Row: item.row, Source: item.source})
			st.RowsRead++
			if err := m.fillHeap(item.source); err != nil {
				return false, st, err
			}
		}

		outputs := m.reducer.Reduce(group)
		skip := make([]bool, len(group))
		for i := range skip {
			skip[i] = true
		}
		for _, out := range outputs {
			if out.CarrierIdx < 0 || out.CarrierIdx >= len(group) {
				return false, st, fmt.Errorf("mergetransform: BUG: carrier index %d out of range for group of %d", out.CarrierIdx, len(group))
			}
			skip[out.CarrierIdx] = false
		}

		if m.rs != nil {
			for i, member := range group {
				if err := m.rs.Append(uint32(member.Source), skip[i]); err != nil {
					return false, st, fmt.Errorf("cannot append rows-sources record: %w", err)
				}
			}
		}

		for _, out := range outputs {
			if err := emit(out.Row); err != nil {
				return false, st, err
			}
			st.RowsWritten++
			m.rowsWritten.Add(1)
			rowsWrittenTotal.Inc()
		}

		if maxRows > 0 && st.RowsWritten >= uint64(maxRows) {
			return m.heap.Len() > 0, st, nil
		}
	}
	return false, st, nil
}

func (m *Merger) fillHeap(sourceIdx int) error {
	row, err := m.sources[sourceIdx].Next()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot read next row from source %d: %w", sourceIdx, err)
	}
	heap.Push(&m.heap, &headItem{row: row, source: sourceIdx})
	return nil
}

type headItem struct {
	row    rowmodel.Row
	source int
}

// rowHeap is a container/heap priority queue of one buffered head row per
// still-active source, ordered by sort key then ascending source index (the
// tie-breaking "insertion order" invariant).
type rowHeap struct {
	items  []*headItem
	schema *rowmodel.Schema
}

func (h *rowHeap) Len() int { return len(h.items) }

func (h *rowHeap) Less(i, j int) bool {
	if c := h.schema.CompareKey(h.items[i].row, h.items[j].row); c != 0 {
		return c < 0
	}
	return h.items[i].source < h.items[j].source
}

func (h *rowHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *rowHeap) Push(x any) { h.items = append(h.items, x.(*headItem)) }

func (h *rowHeap) Pop() any {
	n := len(h.items)
	item := h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	return item
}
