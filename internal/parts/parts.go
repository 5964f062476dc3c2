// Package parts holds the merge engine's core data-model types: the
// immutable Source Part, the Future Part naming a pending merge's output,
// and the New Data Part owned exclusively by the running task until
// finalize (spec.md §3).
package parts

import "github.com/graintree/graintree/internal/rowmodel"

// PartType is the destination layout: Wide (one file per column, the only
// layout eligible for the Vertical algorithm) or Compact (packed).
type PartType int

const (
	TypeWide PartType = iota
	TypeCompact
)

// VectorIndexState is a named vector index's readiness on a source part.
type VectorIndexState int

const (
	VectorIndexAbsent VectorIndexState = iota
	VectorIndexPending
	VectorIndexBuilt
)

// PartInfo totally orders parts by (min block, max block, level), the merge
// tree's natural non-overlapping ordering of inputs to a merge.
type PartInfo struct {
	MinBlock int64
	MaxBlock int64
	Level    int
}

// Less reports whether p sorts before o.
func (p PartInfo) Less(o PartInfo) bool {
	if p.MinBlock != o.MinBlock {
		return p.MinBlock < o.MinBlock
	}
	if p.MaxBlock != o.MaxBlock {
		return p.MaxBlock < o.MaxBlock
	}
	return p.Level < o.Level
}

// ColumnSize is one column's on-disk footprint within a part.
type ColumnSize struct {
	Name  string
	Bytes uint64
}

// VectorIndexRef names one configured vector index and its state on a part.
type VectorIndexRef struct {
	Name  string
	State VectorIndexState
}

// SourcePart is one immutable input to a merge.
type SourcePart struct {
	Name    string
	Info    PartInfo
	Type    PartType
	Rows    uint64
	Columns []ColumnSize

	// VectorIndexes lists this part's configured vector indexes and their
	// build state; absent entries are treated as VectorIndexAbsent.
	VectorIndexes []VectorIndexRef

	// LightweightDeleteBitmap is true when the part carries a lightweight-
	// delete bitmap alongside its rows (disqualifying "single VPart move").
	LightweightDeleteBitmap bool

	// Dir is the part's on-disk directory, opaque to this engine beyond the
	// reader/writer contracts in internal/partreader and internal/blockio.
	Dir string
}

// ColumnWeight returns bytes for name, or 0 if the part has no such column.
func (p SourcePart) ColumnWeight(name string) uint64 {
	for _, c := range p.Columns {
		if c.Name == name {
			return c.Bytes
		}
	}
	return 0
}

// VectorIndexState returns name's build state on p.
func (p SourcePart) VectorIndexState(name string) VectorIndexState {
	for _, v := range p.VectorIndexes {
		if v.Name == name {
			return v.State
		}
	}
	return VectorIndexAbsent
}

// MergeKind distinguishes an ordinary merge from the two TTL-driven variants.
type MergeKind int

const (
	MergeOrdinary MergeKind = iota
	MergeTTLDeletion
	MergeTTLRecompression
)

// FuturePart names a pending merge's output before any work has run.
type FuturePart struct {
	Name    string
	Info    PartInfo
	Type    PartType
	Storage StorageType
	Sources []SourcePart
	Kind    MergeKind

	// Parent is set when this future part is a projection's own merge
	// (spec.md component 9); nil for a top-level table merge.
	Parent *FuturePart
}

// StorageType distinguishes the "Full" storage eligible for Vertical from
// every other storage subtype the engine only ever writes Horizontally.
type StorageType int

const (
	StorageFull StorageType = iota
	StorageOther
)

// ColumnOrigin records whether a composed column came from a source
// natively or was synthesized from its DEFAULT expression because a source
// lacked it (SPEC_FULL.md §3, supplemented from original_source/).
type ColumnOrigin int

const (
	OriginNative ColumnOrigin = iota
	OriginDefaultFilled
)

// SerializationInfo is one output column's composed metadata.
type SerializationInfo struct {
	Name   string
	Origin ColumnOrigin
}

// TTLInfo is one column or table-level TTL's folded min/max expiry bound
// across all sources.
type TTLInfo struct {
	Column      string
	MinExpireAt int64
	MaxExpireAt int64
	// NeedsRecompute is set when any source lacked a precomputed TTL bound,
	// forcing the merge to recompute it from row data.
	NeedsRecompute bool
}

// NewPart is the new part under construction: mutable until Finalize seals
// it, owned exclusively by the running MergeTask.
type NewPart struct {
	Name    string
	Info    PartInfo
	Type    PartType
	Dir     string
	Schema  *rowmodel.Schema
	Columns []SerializationInfo
	TTL     []TTLInfo
	Rows    uint64

	// MinDedupInterval is always carried for parity with the original even
	// when deduplication is disabled for this merge (SPEC_FULL.md §3).
	MinDedupInterval int64

	// Projections holds each child projection merge's sealed sub-part,
	// keyed by projection name.
	Projections map[string]*NewPart

	// VectorIndexDecoupled/VectorIndexSingle record which vector-index
	// finalize path ran, for tests and diagnostics.
	VectorIndexDecoupled bool
	VectorIndexSingle    bool
}
