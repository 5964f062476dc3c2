// Package horizontal implements the Horizontal Stage (spec.md component 6):
// prepares the new part's directory, classifies columns into merging and
// gathering sets, picks the merge algorithm, and drives the merge transform
// step-by-step, writing either the whole part (Horizontal) or only its
// key/index columns plus the rows-sources stream (Vertical).
package horizontal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/graintree/graintree/internal/algochoice"
	"github.com/graintree/graintree/internal/colsize"
	"github.com/graintree/graintree/internal/mergeconf"
	"github.com/graintree/graintree/internal/mergeerr"
	"github.com/graintree/graintree/internal/mergemode"
	"github.com/graintree/graintree/internal/mergetransform"
	"github.com/graintree/graintree/internal/parts"
	"github.com/graintree/graintree/internal/partreader"
	"github.com/graintree/graintree/internal/rowmodel"
	"github.com/graintree/graintree/internal/rowsources"
	"github.com/graintree/graintree/internal/tempvolume"
	"github.com/graintree/graintree/lib/logger"
)

// CancelTokens is the composable pair of cancellation tokens plus the
// per-merge-list-element flag spec.md §5 describes, polled at every step.
type CancelTokens struct {
	Global func() bool
	TTL    func() bool
	Task   func() bool
}

// bytesWrittenUncompressedTotal is the process-wide bytes_written_uncompressed
// progress counter spec.md §6 names, bumped once per output row as it is
// appended to the new part's row stream.
var bytesWrittenUncompressedTotal = metrics.NewCounter(`graintree_bytes_written_uncompressed_total`)

func (c CancelTokens) fired(isTTL bool) bool {
	if c.Task != nil && c.Task() {
		return true
	}
	if c.Global != nil && c.Global() {
		return true
	}
	if isTTL && c.TTL != nil && c.TTL() {
		return true
	}
	return false
}

// Config bundles everything Prepare needs beyond the future part itself.
type Config struct {
	Schema   *rowmodel.Schema
	Mode     mergemode.Mode
	Future   *parts.FuturePart
	TempBase string
	TaskName string
	Settings mergeconf.Settings

	// IndexedColumns are columns referenced by a secondary index, folded
	// into the "merging" set even when they are not part of the sort key.
	IndexedColumns []int

	Deduplicate   bool
	DeduplicateBy []int // columns for the downstream distinct filter; nil = full row
	NeedsTTL      bool
	Cancel        CancelTokens

	// DestPartWide/DestStorage feed the Merge-Algorithm Chooser; see
	// internal/algochoice.Inputs.
	DestPartWide bool
	DestStorage  algochoice.PartStorage

	TotalRows uint64

	// SourceTTL holds each source's per-column TTL bounds, folded into the
	// new part's TTL infos during Prepare (spec.md §4.3 step 4).
	SourceTTL [][]parts.TTLInfo

	// Reducer builds the mode-specific reducer over Config.Schema; the
	// caller constructs it (e.g. mergetransform.NewReplacing(schema, true))
	// since only the caller knows mode-specific options like clean-up.
	Reducer mergetransform.Reducer
}

// Context is what the Horizontal Stage hands to the next stage
// (Vertical, or directly Projections when the algorithm is Horizontal).
type Context struct {
	NewPart          *parts.NewPart
	Algorithm        algochoice.Algorithm
	MergingColumns   []string
	GatheringColumns []string
	Volume           *tempvolume.Volume
	RowsSourcesPath  string
	NeedSync         bool
	RowsWritten      uint64
	// ProgressSeed is the byte-weight progress credit to report before any
	// gathering work begins, from algochoice.EstimatedProgressSeed.
	ProgressSeed uint64
}

// Stage drives preparation and step-wise execution of the horizontal phase.
type Stage struct {
	cfg Config

	prepared  bool
	done      bool
	algorithm algochoice.Algorithm

	merging   []string
	gathering []string

	volume *tempvolume.Volume
	rsPath string
	rsFile *os.File
	rsW    *rowsources.Writer
	rowsW  *partreader.Writer

	estimator    *colsize.Estimator
	progressSeed uint64

	newPart   *parts.NewPart
	startTime time.Time

	merger   *mergetransform.Merger
	dedup    *mergetransform.Dedup
	runStats mergetransform.Stats
}

// NewStage returns an unprepared Stage.
func NewStage(cfg Config) *Stage {
	return &Stage{cfg: cfg}
}

// Prepare runs the one-shot preparation steps of spec.md §4.3: cancellation
// checks, output directory creation, column classification, algorithm
// choice, and output-stream initialization.
func (s *Stage) Prepare(sources []mergetransform.Source, sourceMeta []parts.SourcePart) error {
	if s.cfg.Cancel.fired(s.cfg.Future.Kind != parts.MergeOrdinary) {
		return mergeerr.Aborted("cancellation token set before horizontal prepare")
	}

	dir := filepath.Join(s.cfg.TempBase, "tmp_merge_"+s.cfg.Future.Name)
	if _, err := os.Stat(dir); err == nil {
		return mergeerr.DirectoryExists(dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create new part directory %q: %w", dir, err)
	}

	s.merging, s.gathering = classifyColumns(s.cfg.Schema, s.cfg.Mode, s.cfg.IndexedColumns)

	var srcs []algochoice.SourcePart
	for _, sm := range sourceMeta {
		srcs = append(srcs, algochoice.SourcePart{Wide: sm.Type == parts.TypeWide})
	}
	s.estimator = buildEstimator(s.cfg.Schema, sourceMeta)
	inputs := algochoice.Inputs{
		Mode:              s.cfg.Mode,
		Deduplicate:       s.cfg.Deduplicate,
		NeedsTTLRemoval:   s.cfg.NeedsTTL,
		DestPartWide:      s.cfg.DestPartWide,
		DestStorage:       s.cfg.DestStorage,
		Sources:           srcs,
		AllowMixedStorage: s.cfg.Settings.AllowMixedStorageInHorizontalMerge,
		NonKeyColumns:     len(s.gathering),
		TotalRows:         s.cfg.TotalRows,
		Estimator:         s.estimator,
		Settings:          s.cfg.Settings,
	}
	s.algorithm = algochoice.Choose(inputs)
	s.progressSeed = algochoice.EstimatedProgressSeed(inputs)
	logger.Infof("preparing merge %q of %d source parts using the %s algorithm", s.cfg.Future.Name, len(sourceMeta), s.algorithm)

	volume, err := tempvolume.Open(s.cfg.TempBase, s.cfg.TaskName)
	if err != nil {
		return err
	}
	s.volume = volume

	// The rows-sources stream is created for every algorithm, not only
	// Vertical: the Row-Id-Map Builder needs it at horizontal-end whenever
	// a configured vector index is decouple-eligible, including when the
	// chosen algorithm is Horizontal-with-index (spec.md §4.3).
	f, path, err := volume.CreateFile("rows_sources")
	if err != nil {
		return err
	}
	rsW, err := rowsources.NewWriter(f)
	if err != nil {
		f.Close()
		return err
	}
	s.rsFile, s.rsPath, s.rsW = f, path, rsW

	rowsW, err := partreader.Create(dir, s.wantsDirectIO())
	if err != nil {
		return err
	}
	s.rowsW = rowsW

	outSchema := s.cfg.Schema
	if s.algorithm == algochoice.Vertical {
		outSchema = keyOnlySchema(s.cfg.Schema, s.merging)
	}

	s.newPart = &parts.NewPart{
		Name:    s.cfg.Future.Name,
		Info:    s.cfg.Future.Info,
		Type:    s.cfg.Future.Type,
		Dir:     dir,
		Schema:  outSchema,
		Columns: composeSerializationInfos(s.cfg.Schema, sourceMeta),
		TTL:     foldTTLInfos(s.cfg.SourceTTL),
	}

	reducer := s.cfg.Reducer
	if reducer == nil {
		reducer = mergetransform.NewOrdinary()
	}
	s.merger = mergetransform.NewMerger(s.cfg.Schema, sources, reducer, s.rsW)
	if len(s.cfg.DeduplicateBy) > 0 || s.cfg.Deduplicate {
		s.dedup = mergetransform.NewDedup(s.cfg.DeduplicateBy)
	}

	s.prepared = true
	return nil
}

// Execute pulls one bounded chunk of rows (Settings.RowsPerGranule, the same
// "blocks are granules" unit the Vertical Stage uses) from the merge and
// returns more=true until every source is drained, per spec.md §4.3/§5's
// cooperative step-wise yield model ("pulls one block ... call me again").
// A caller running a cooperative scheduler is expected to call Execute
// repeatedly, polling its own cancellation sources between calls; Execute
// additionally re-checks s.cfg.Cancel itself at every chunk boundary so a
// merge aborts within one granule of the token firing instead of only at
// the very start or end of the whole merge.
func (s *Stage) Execute() (more bool, err error) {
	if !s.prepared {
		return false, mergeerr.Logical("horizontal.Execute called before Prepare")
	}
	if s.done {
		return false, nil
	}
	if s.cfg.Cancel.fired(s.cfg.Future.Kind != parts.MergeOrdinary) {
		return false, mergeerr.Aborted("cancellation token set during horizontal execute")
	}
	if s.startTime.IsZero() {
		s.startTime = time.Now()
	}

	emit := func(row rowmodel.Row) error {
		if s.dedup != nil && !s.dedup.Keep(row) {
			return nil
		}
		outRow := row
		if s.algorithm == algochoice.Vertical {
			outRow = projectColumns(row, s.cfg.Schema, s.merging)
		}
		before := s.rowsW.BytesWritten()
		if err := s.rowsW.Append(outRow); err != nil {
			return err
		}
		bytesWrittenUncompressedTotal.Add(int(s.rowsW.BytesWritten() - before))
		return nil
	}

	chunkRows := s.cfg.Settings.RowsPerGranule
	if chunkRows <= 0 {
		chunkRows = 8192
	}
	moreRows, stats, err := s.merger.RunChunk(emit, chunkRows)
	s.runStats.RowsRead += stats.RowsRead
	s.runStats.RowsWritten += stats.RowsWritten
	if err != nil {
		s.rowsW.Reset()
		if s.rsW != nil {
			s.rsW.Reset()
		}
		return false, err
	}
	if moreRows {
		return true, nil
	}

	if s.cfg.Cancel.fired(s.cfg.Future.Kind != parts.MergeOrdinary) {
		return false, mergeerr.Aborted("cancellation token set after horizontal merge drained")
	}

	if err := s.rowsW.Close(); err != nil {
		return false, err
	}
	if s.rsW != nil {
		if err := s.rsW.Close(); err != nil {
			return false, err
		}
		if s.rsFile != nil {
			s.rsFile.Close()
		}
	}

	s.newPart.Rows = s.runStats.RowsWritten
	s.done = true
	logger.Infof("merged %d rows (read %d) in %.3f seconds to %q using the %s algorithm",
		s.runStats.RowsWritten, s.runStats.RowsRead, time.Since(s.startTime).Seconds(), s.newPart.Dir, s.algorithm)
	return false, nil
}

// RowsWrittenSoFar reports how many rows the merge has emitted so far. It is
// safe to call concurrently with Execute, so a caller can report progress on
// a long-running merge while it is still in flight.
func (s *Stage) RowsWrittenSoFar() uint64 {
	if s.merger == nil {
		return 0
	}
	return s.merger.Progress()
}

// buildEstimator aggregates every source's per-column byte sizes into a
// Column-Size Estimator scoped to this merge's sort key (spec.md component
// 2), used below for the direct-I/O/sync decision and to seed progress.
func buildEstimator(schema *rowmodel.Schema, sourceMeta []parts.SourcePart) *colsize.Estimator {
	perSource := make([][]colsize.ColumnBytes, len(sourceMeta))
	for i, sm := range sourceMeta {
		cols := make([]colsize.ColumnBytes, len(sm.Columns))
		for j, c := range sm.Columns {
			cols[j] = colsize.ColumnBytes{Name: c.Name, Bytes: c.Bytes}
		}
		perSource[i] = cols
	}
	keyNames := make([]string, len(schema.KeyColumns))
	for i, idx := range schema.KeyColumns {
		keyNames[i] = schema.Columns[idx]
	}
	return colsize.NewEstimator(perSource, keyNames)
}

// NeedSync computes the sync decision from the Column-Size Estimator's
// total weight across every source, per spec.md §4.3 step on pipeline EOF.
func (s *Stage) NeedSync() bool {
	return s.cfg.Settings.FsyncAfterMerge || s.wantsDirectIO()
}

// wantsDirectIO reports whether the merge's total input size, as measured
// by the Column-Size Estimator, crosses the direct-I/O threshold, the same
// decision point the original evaluates before opening its horizontal-phase
// output with O_DIRECT.
func (s *Stage) wantsDirectIO() bool {
	return s.estimator.TotalWeight() >= s.cfg.Settings.MinBytesToUseDirectIO
}

// Context returns the runtime context handed to the next stage. Valid only
// after Execute has returned more=false.
func (s *Stage) Context(sourceMeta []parts.SourcePart) Context {
	return Context{
		NewPart:          s.newPart,
		Algorithm:        s.algorithm,
		MergingColumns:   s.merging,
		GatheringColumns: s.gathering,
		Volume:           s.volume,
		RowsSourcesPath:  s.rsPath,
		NeedSync:         s.NeedSync(),
		RowsWritten:      s.runStats.RowsWritten,
		ProgressSeed:     s.progressSeed,
	}
}

// classifyColumns splits schema's columns into merging (sort-key ∪
// index-referenced ∪ mode-required {sign, version, is_deleted}) and
// gathering (the rest), guaranteeing merging is non-empty.
func classifyColumns(schema *rowmodel.Schema, mode mergemode.Mode, indexed []int) (merging, gathering []string) {
	isMerging := make(map[int]bool, len(schema.Columns))
	for _, idx := range schema.KeyColumns {
		isMerging[idx] = true
	}
	for _, idx := range indexed {
		isMerging[idx] = true
	}
	switch mode {
	case mergemode.Collapsing, mergemode.VersionedCollapsing:
		if schema.SignColumn >= 0 {
			isMerging[schema.SignColumn] = true
		}
	case mergemode.Replacing:
		if schema.VersionColumn >= 0 {
			isMerging[schema.VersionColumn] = true
		}
		if schema.IsDeletedColumn >= 0 {
			isMerging[schema.IsDeletedColumn] = true
		}
	}
	if schema.VersionColumn >= 0 && mode == mergemode.VersionedCollapsing {
		isMerging[schema.VersionColumn] = true
	}
	if len(isMerging) == 0 && len(schema.Columns) > 0 {
		isMerging[0] = true
	}
	for i, name := range schema.Columns {
		if isMerging[i] {
			merging = append(merging, name)
		} else {
			gathering = append(gathering, name)
		}
	}
	return merging, gathering
}

func keyOnlySchema(schema *rowmodel.Schema, merging []string) *rowmodel.Schema {
	cols := make([]string, len(merging))
	copy(cols, merging)
	keyIdx := make([]int, len(schema.KeyColumns))
	for i, idx := range schema.KeyColumns {
		keyIdx[i] = indexOf(cols, schema.Columns[idx])
	}
	out := rowmodel.NewSchema(cols, keyIdx)
	return out
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func projectColumns(row rowmodel.Row, schema *rowmodel.Schema, keep []string) rowmodel.Row {
	cols := make([]rowmodel.Value, len(keep))
	for i, name := range keep {
		cols[i] = row.Columns[schema.ColumnIndex(name)]
	}
	return rowmodel.Row{Columns: cols, SourceIdx: row.SourceIdx, SourceOffset: row.SourceOffset}
}

// foldTTLInfos folds every source's per-column TTL bounds into one set of
// table-wide bounds: min/max expiry per column, forcing NeedsRecompute
// whenever any source lacked a precomputed bound for that column.
func foldTTLInfos(sourceTTL [][]parts.TTLInfo) []parts.TTLInfo {
	byColumn := make(map[string]*parts.TTLInfo)
	var order []string
	seen := make(map[string]int) // column -> count of sources carrying it
	numSources := len(sourceTTL)
	for _, infos := range sourceTTL {
		for _, info := range infos {
			cur, ok := byColumn[info.Column]
			if !ok {
				c := info
				byColumn[info.Column] = &c
				order = append(order, info.Column)
			} else {
				if info.MinExpireAt < cur.MinExpireAt {
					cur.MinExpireAt = info.MinExpireAt
				}
				if info.MaxExpireAt > cur.MaxExpireAt {
					cur.MaxExpireAt = info.MaxExpireAt
				}
				cur.NeedsRecompute = cur.NeedsRecompute || info.NeedsRecompute
			}
			seen[info.Column]++
		}
	}
	out := make([]parts.TTLInfo, 0, len(order))
	for _, col := range order {
		info := *byColumn[col]
		if seen[col] < numSources {
			info.NeedsRecompute = true
		}
		out = append(out, info)
	}
	return out
}

// composeSerializationInfos returns one entry per column of schema's full
// column list, marking a column DefaultFilled when some source lacks it
// (SPEC_FULL.md §3). Columns present only in a source are not included.
func composeSerializationInfos(schema *rowmodel.Schema, sources []parts.SourcePart) []parts.SerializationInfo {
	infos := make([]parts.SerializationInfo, len(schema.Columns))
	for i, name := range schema.Columns {
		origin := parts.OriginNative
		for _, sp := range sources {
			found := false
			for _, c := range sp.Columns {
				if c.Name == name {
					found = true
					break
				}
			}
			if !found {
				origin = parts.OriginDefaultFilled
				break
			}
		}
		infos[i] = parts.SerializationInfo{Name: name, Origin: origin}
	}
	return infos
}
