// Package mergeconf holds the numeric thresholds the Merge-Algorithm
// Chooser and the Horizontal Stage need. No flag or file parsing lives
// here: CLI/config parsing is out of scope (spec.md §1); the embedding
// caller is responsible for resolving these from whatever configuration
// layer it owns, the same way the teacher's lib/mergeset.Table takes
// already-resolved settings in its constructor rather than parsing them.
package mergeconf

// Settings controls algorithm choice, I/O, and vertical-stage batching.
type Settings struct {
	// EnableVerticalMerge disables the vertical algorithm outright when false.
	EnableVerticalMerge bool

	// VerticalMergeAlgorithmMinRowsToActivate is the minimum total input row
	// count below which Horizontal is always chosen.
	VerticalMergeAlgorithmMinRowsToActivate uint64

	// VerticalMergeAlgorithmMinColumnsToActivate is the minimum number of
	// non-key (gathering) columns below which Horizontal is always chosen.
	VerticalMergeAlgorithmMinColumnsToActivate int

	// AllowMixedStorageInHorizontalMerge keeps Vertical reachable when some
	// source parts are not Wide; when false, any non-Wide source forces the
	// Horizontal algorithm.
	AllowMixedStorageInHorizontalMerge bool

	// MinBytesToUseDirectIO is the total input byte size at or above which
	// the Horizontal Stage opens its pipeline with direct I/O.
	MinBytesToUseDirectIO uint64

	// MaxDelayedStreams bounds how many finished gathered-column output
	// streams the Vertical Stage keeps open before forcing the oldest to
	// finalize.
	MaxDelayedStreams int

	// FsyncAfterMerge forces an fsync on every output stream at finalize.
	FsyncAfterMerge bool

	// RowsPerGranule is the number of rows each emitted block/granule holds;
	// the Vertical Stage's "blocks are granules" invariant requires the
	// horizontal-phase output and every gathered column to use the same value.
	RowsPerGranule int
}

// Default returns the settings the teacher ships as out-of-the-box defaults
// for its own background merges, adapted to this engine's row-oriented model.
func Default() Settings {
	return Settings{
		EnableVerticalMerge:                         true,
		VerticalMergeAlgorithmMinRowsToActivate:      16 * 1024,
		VerticalMergeAlgorithmMinColumnsToActivate:    11,
		AllowMixedStorageInHorizontalMerge:            true,
		MinBytesToUseDirectIO:                         10 * 1024 * 1024 * 1024,
		MaxDelayedStreams:                             20,
		FsyncAfterMerge:                               false,
		RowsPerGranule:                                8192,
	}
}
