// Package mergetask implements the Step Driver (spec.md component 11): a
// three-stage cooperative state machine (Horizontal → Vertical →
// Projections) that calls the current stage's Execute() until it reports
// no more work, then hands the stage's runtime context to the next one,
// finally invoking the Finalize stage and fulfilling the result future.
package mergetask

import (
	"fmt"
	"os"
	"sync"

	"github.com/graintree/graintree/internal/algochoice"
	"github.com/graintree/graintree/internal/finalize"
	"github.com/graintree/graintree/internal/horizontal"
	"github.com/graintree/graintree/internal/mergemode"
	"github.com/graintree/graintree/internal/parts"
	"github.com/graintree/graintree/internal/partreader"
	"github.com/graintree/graintree/internal/projections"
	"github.com/graintree/graintree/internal/rowidmap"
	"github.com/graintree/graintree/internal/rowsources"
	"github.com/graintree/graintree/internal/vertical"
)

type stageKind int

const (
	stageHorizontal stageKind = iota
	stageVertical
	stageProjections
	stageDone
)

// BuildVertical constructs the Vertical Stage once the Horizontal Stage's
// context (algorithm, gathering columns, rows-sources path) is known.
type BuildVertical func(ctx horizontal.Context) (*vertical.Stage, error)

// BuildProjections constructs the Projections Stage; may return a Stage
// over zero projections when none apply.
type BuildProjections func(ctx horizontal.Context) (*projections.Stage, error)

// Config bundles everything the driver needs to run one merge task to
// completion.
type Config struct {
	Horizontal       *horizontal.Stage
	BuildVertical    BuildVertical
	BuildProjections BuildProjections
	Finalizer        *finalize.Finalizer

	SourceMeta    []parts.SourcePart
	SourceOffsets [][]uint64 // per-source `_part_offset` sequences, for the row-id-map builder
	Mode          mergemode.Mode

	// IndexNames lists the configured vector indexes to evaluate for
	// decouple eligibility at horizontal-end.
	IndexNames []string

	Result *Future
}

// Task drives one merge from Horizontal preparation through Finalize.
type Task struct {
	cfg Config

	stage    stageKind
	vert     *vertical.Stage
	proj     *projections.Stage
	horizCtx horizontal.Context

	decisions     []horizontal.DecoupleDecision
	builderResult *rowidmap.Result
}

// New returns a Task ready to run cfg.Horizontal.Prepare followed by
// repeated calls to Execute.
func New(cfg Config) *Task {
	return &Task{cfg: cfg}
}

// Execute advances the task by one step. It returns more=true when the
// caller's external scheduler should call Execute again; more=false means
// the task is either finished (err == nil) or has failed (err != nil).
// Cancellation is polled inside each stage's own Execute, not here
// (spec.md §4.6).
func (t *Task) Execute() (more bool, err error) {
	switch t.stage {
	case stageHorizontal:
		more, err = t.stepHorizontal()
	case stageVertical:
		more, err = t.stepVertical()
	case stageProjections:
		more, err = t.stepProjections()
	default:
		return false, nil
	}
	if err != nil && t.cfg.Result != nil {
		t.cfg.Result.fulfill(nil, err)
	}
	return more, err
}

func (t *Task) stepHorizontal() (bool, error) {
	more, err := t.cfg.Horizontal.Execute()
	if err != nil {
		return false, err
	}
	if more {
		return true, nil
	}
	t.horizCtx = t.cfg.Horizontal.Context(t.cfg.SourceMeta)

	for _, name := range t.cfg.IndexNames {
		t.decisions = append(t.decisions, horizontal.DecideDecouple(name, t.cfg.SourceMeta))
	}

	if err := t.buildRowIDMapIfNeeded(); err != nil {
		return false, err
	}

	if t.horizCtx.Algorithm == algochoice.Vertical {
		vs, err := t.cfg.BuildVertical(t.horizCtx)
		if err != nil {
			return false, err
		}
		t.vert = vs
		t.stage = stageVertical
		return true, nil
	}
	return t.advanceToProjections()
}

func (t *Task) stepVertical() (bool, error) {
	more, err := t.vert.Execute()
	if err != nil {
		return false, err
	}
	if more {
		return true, nil
	}
	if err := t.vert.Finish(); err != nil {
		return false, err
	}
	return t.advanceToProjections()
}

func (t *Task) advanceToProjections() (bool, error) {
	ps, err := t.cfg.BuildProjections(t.horizCtx)
	if err != nil {
		return false, err
	}
	t.proj = ps
	t.stage = stageProjections
	return true, nil
}

func (t *Task) stepProjections() (bool, error) {
	more, err := t.proj.Execute()
	if err != nil {
		return false, err
	}
	if more {
		return true, nil
	}
	t.stage = stageDone
	newPart := t.horizCtx.NewPart
	if err := t.cfg.Finalizer.Finalize(newPart, t.decisions, t.cfg.SourceMeta, t.horizCtx.RowsSourcesPath, t.builderResult, t.proj.Results()); err != nil {
		return false, err
	}
	if t.horizCtx.Volume != nil {
		t.horizCtx.Volume.Close()
	}
	if t.cfg.Result != nil {
		t.cfg.Result.fulfill(newPart, nil)
	}
	return false, nil
}

// buildRowIDMapIfNeeded runs the Row-Id-Map Builder between horizontal-end
// and vertical-start (or right here, at horizontal-end, when the algorithm
// is Horizontal-with-index) whenever any index decision requires a
// decouple (spec.md §4.3's row-id-map generation step).
func (t *Task) buildRowIDMapIfNeeded() error {
	needed := false
	for _, d := range t.decisions {
		if d.CanDecouple {
			needed = true
			break
		}
	}
	if !needed || t.horizCtx.RowsSourcesPath == "" {
		return nil
	}

	f, err := os.Open(t.horizCtx.RowsSourcesPath)
	if err != nil {
		return fmt.Errorf("row-id-map builder: cannot open rows-sources stream %q: %w", t.horizCtx.RowsSourcesPath, err)
	}
	defer f.Close()
	rsReader, err := rowsources.NewReader(f)
	if err != nil {
		return err
	}
	defer rsReader.Close()

	rowsCount := make([]uint64, len(t.cfg.SourceMeta))
	for i, sp := range t.cfg.SourceMeta {
		rowsCount[i] = sp.Rows
	}

	sourceOffsets, err := t.sourceOffsets()
	if err != nil {
		return err
	}

	res, err := rowidmap.Build(rsReader, sourceOffsets, rowsCount, t.cfg.Mode)
	if err != nil {
		return err
	}
	t.builderResult = &res
	return nil
}

// sourceOffsets returns each source's `_part_offset` sequence. A caller
// that already tracked offsets while reading its sources (to skip a
// redundant disk pass) can set Config.SourceOffsets directly; otherwise
// it is rederived here by replaying each source part's row stream through
// partreader.PartOffsets.
func (t *Task) sourceOffsets() ([][]uint64, error) {
	if t.cfg.SourceOffsets != nil {
		return t.cfg.SourceOffsets, nil
	}
	offsets := make([][]uint64, len(t.cfg.SourceMeta))
	for i, sp := range t.cfg.SourceMeta {
		r, err := partreader.Open(sp.Dir, len(sp.Columns), false)
		if err != nil {
			return nil, fmt.Errorf("row-id-map builder: cannot open source %q for _part_offset replay: %w", sp.Name, err)
		}
		off, err := r.PartOffsets()
		closeErr := r.Close()
		if err != nil {
			return nil, fmt.Errorf("row-id-map builder: cannot read _part_offset sequence for %q: %w", sp.Name, err)
		}
		if closeErr != nil {
			return nil, closeErr
		}
		offsets[i] = off
	}
	return offsets, nil
}

// Future is the single-shot result future yielding the new data-part handle
// (spec.md §6).
type Future struct {
	mu   sync.Mutex
	done bool
	ch   chan struct{}
	part *parts.NewPart
	err  error
}

// NewFuture returns an unfulfilled Future.
func NewFuture() *Future {
	return &Future{ch: make(chan struct{})}
}

func (f *Future) fulfill(part *parts.NewPart, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return
	}
	f.part, f.err, f.done = part, err, true
	close(f.ch)
}

// Wait blocks until the future is fulfilled and returns its result.
func (f *Future) Wait() (*parts.NewPart, error) {
	<-f.ch
	return f.part, f.err
}
