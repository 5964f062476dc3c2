// Package algochoice implements the Merge-Algorithm Chooser (spec.md
// component 3): a pure function of the merge task's inputs and settings
// returning Horizontal or Vertical. It never touches disk or state; every
// input is already resolved by the caller, mirroring the teacher's
// lib/mergeset merge helpers which take fully-resolved arguments rather
// than reaching into global config themselves.
package algochoice

import (
	"github.com/graintree/graintree/internal/colsize"
	"github.com/graintree/graintree/internal/mergeconf"
	"github.com/graintree/graintree/internal/mergemode"
	"github.com/graintree/graintree/internal/rowsources"
)

// Algorithm selects how the Horizontal Stage lays out the new part's data.
type Algorithm int

const (
	// Horizontal writes every column for every output row in one pass.
	Horizontal Algorithm = iota
	// Vertical writes only key/index columns in the first pass, then
	// gathers every other column independently in the Vertical Stage.
	Vertical
)

func (a Algorithm) String() string {
	if a == Vertical {
		return "Vertical"
	}
	return "Horizontal"
}

// PartStorage classifies a source or destination part's on-disk layout.
// Only Wide/Full parts are eligible for the Vertical algorithm; the
// teacher's Compact/InMemory equivalents always force Horizontal.
type PartStorage int

const (
	StorageFull PartStorage = iota
	StorageOther
)

// SourcePart is the subset of a source part's metadata the chooser needs.
type SourcePart struct {
	Wide bool
}

// Inputs bundles everything the chooser needs to reach a decision.
type Inputs struct {
	Mode mergemode.Mode

	// Deduplicate is true when this merge is a final/explicit dedup pass.
	Deduplicate bool

	// NeedsTTLRemoval is true when expired rows must be dropped this merge.
	NeedsTTLRemoval bool

	// DestPartWide is false for any non-Wide destination layout.
	DestPartWide bool
	// DestStorage must be StorageFull for Vertical to apply.
	DestStorage PartStorage

	Sources []SourcePart
	// AllowMixedStorage permits Vertical to stay reachable even when some
	// sources are not Wide. When false, any non-Wide source forces
	// Horizontal.
	AllowMixedStorage bool

	// NonKeyColumns is the number of gathering-candidate columns (every
	// column minus the sort-key columns). The threshold this is checked
	// against is a column count in both spec.md and the original
	// (gathering_columns.size()), not a byte weight.
	NonKeyColumns int
	// TotalRows is the sum of rows_read across all sources.
	TotalRows uint64

	// Estimator carries the Column-Size Estimator's per-column byte
	// weights for this merge's sources, when available. Choose itself
	// never branches on it (the original's algorithm-choice booleans are
	// column/row counts, not byte weights); EstimatedProgressSeed uses it
	// to seed the merge's starting progress credit.
	Estimator *colsize.Estimator

	Settings mergeconf.Settings
}

// EstimatedProgressSeed returns the progress value a caller should credit
// before any row is written, mirroring the original's use of the
// Column-Size Estimator's key-columns weight as the merge's starting
// progress (the sort/merge pass already covers the key columns' bytes
// before any gathering work begins). Returns 0 when in.Estimator is nil.
func EstimatedProgressSeed(in Inputs) uint64 {
	if in.Estimator == nil {
		return 0
	}
	return in.Estimator.KeyColumnsWeight()
}

// Choose returns the algorithm this merge must use. The choice is meant to
// be recorded once by the caller; the only later-allowed change is a
// downgrade to Horizontal (e.g. an unexpectedly empty output), never the
// reverse.
func Choose(in Inputs) Algorithm {
	if in.Deduplicate {
		return Horizontal
	}
	if !in.Settings.EnableVerticalMerge {
		return Horizontal
	}
	if in.NeedsTTLRemoval {
		return Horizontal
	}
	if !in.DestPartWide {
		return Horizontal
	}
	if in.DestStorage != StorageFull {
		return Horizontal
	}
	if !in.AllowMixedStorage {
		for _, s := range in.Sources {
			if !s.Wide {
				return Horizontal
			}
		}
	}
	if !in.Mode.SupportsVertical() {
		return Horizontal
	}
	if in.NonKeyColumns < in.Settings.VerticalMergeAlgorithmMinColumnsToActivate {
		return Horizontal
	}
	if in.TotalRows < in.Settings.VerticalMergeAlgorithmMinRowsToActivate {
		return Horizontal
	}
	if len(in.Sources) > rowsources.MaxParts {
		return Horizontal
	}
	return Vertical
}
