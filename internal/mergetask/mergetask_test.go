package mergetask

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graintree/graintree/internal/algochoice"
	"github.com/graintree/graintree/internal/finalize"
	"github.com/graintree/graintree/internal/horizontal"
	"github.com/graintree/graintree/internal/mergeconf"
	"github.com/graintree/graintree/internal/mergemode"
	"github.com/graintree/graintree/internal/mergetransform"
	"github.com/graintree/graintree/internal/parts"
	"github.com/graintree/graintree/internal/partreader"
	"github.com/graintree/graintree/internal/projections"
	"github.com/graintree/graintree/internal/rowmodel"
	"github.com/graintree/graintree/internal/vectorindex"
	"github.com/graintree/graintree/internal/vertical"
)

type sliceSource struct {
	rows []rowmodel.Row
	pos  int
}

func (s *sliceSource) Next() (rowmodel.Row, error) {
	if s.pos >= len(s.rows) {
		return rowmodel.Row{}, io.EOF
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}

func row(k int64, v string) rowmodel.Row {
	return rowmodel.Row{Columns: []rowmodel.Value{rowmodel.Int64(k), rowmodel.String(v)}}
}

type nopMover struct{}

func (nopMover) CopyFile(srcDir, dstDir, srcName, dstName string) (uint64, error) { return 0, nil }

func runToCompletion(t *testing.T, task *Task) {
	t.Helper()
	for i := 0; i < 100; i++ {
		more, err := task.Execute()
		require.NoError(t, err)
		if !more {
			return
		}
	}
	t.Fatal("task did not finish within 100 steps")
}

func TestTaskDrivesHorizontalOnlyMerge(t *testing.T) {
	dir := t.TempDir()
	schema := rowmodel.NewSchema([]string{"k", "v"}, []int{0})
	future := &parts.FuturePart{Name: "result_1", Kind: parts.MergeOrdinary}

	hcfg := horizontal.Config{
		Schema: schema, Mode: mergemode.Ordinary, Future: future,
		TempBase: dir, TaskName: "task1", Settings: mergeconf.Default(),
		DestPartWide: true, DestStorage: algochoice.StorageFull,
		TotalRows: 2, Reducer: mergetransform.NewOrdinary(),
	}
	hstage := horizontal.NewStage(hcfg)

	a := &sliceSource{rows: []rowmodel.Row{row(1, "a")}}
	b := &sliceSource{rows: []rowmodel.Row{row(2, "b")}}
	sourceMeta := []parts.SourcePart{{Type: parts.TypeWide, Rows: 1}, {Type: parts.TypeWide, Rows: 1}}
	require.NoError(t, hstage.Prepare([]mergetransform.Source{a, b}, sourceMeta))

	finalizer := finalize.NewFinalizer(vectorindex.NewLocalSupport(nopMover{}), nil)

	result := NewFuture()
	task := New(Config{
		Horizontal: hstage,
		BuildVertical: func(ctx horizontal.Context) (*vertical.Stage, error) {
			t.Fatal("vertical stage should not be built for this small Ordinary merge")
			return nil, nil
		},
		BuildProjections: func(ctx horizontal.Context) (*projections.Stage, error) {
			return projections.NewStage(nil, nil), nil
		},
		Finalizer:  finalizer,
		SourceMeta: sourceMeta,
		Mode:       mergemode.Ordinary,
		Result:     result,
	})

	runToCompletion(t, task)

	newPart, err := result.Wait()
	require.NoError(t, err)
	require.NotNil(t, newPart)
	assert.EqualValues(t, 2, newPart.Rows)
}

func writeSourceRows(t *testing.T, rows ...rowmodel.Row) string {
	t.Helper()
	dir := t.TempDir()
	w, err := partreader.Create(dir, false)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, w.Append(r))
	}
	require.NoError(t, w.Close())
	return dir
}

func TestTaskBuildsRowIDMapForHorizontalWithDecoupleEligibleIndex(t *testing.T) {
	dir := t.TempDir()
	schema := rowmodel.NewSchema([]string{"k", "v"}, []int{0})
	future := &parts.FuturePart{Name: "result_idx", Kind: parts.MergeOrdinary}

	hcfg := horizontal.Config{
		Schema: schema, Mode: mergemode.Ordinary, Future: future,
		TempBase: dir, TaskName: "task-idx", Settings: mergeconf.Default(),
		DestPartWide: true, DestStorage: algochoice.StorageFull,
		TotalRows: 2, Reducer: mergetransform.NewOrdinary(),
	}
	hstage := horizontal.NewStage(hcfg)

	a := &sliceSource{rows: []rowmodel.Row{row(1, "a")}}
	b := &sliceSource{rows: []rowmodel.Row{row(2, "b")}}

	aDir := writeSourceRows(t, row(1, "a"))
	bDir := writeSourceRows(t, row(2, "b"))
	sourceMeta := []parts.SourcePart{
		{
			Name: "part_a", Type: parts.TypeWide, Rows: 1, Dir: aDir,
			Columns:       []parts.ColumnSize{{Name: "k"}, {Name: "v"}},
			VectorIndexes: []parts.VectorIndexRef{{Name: "hnsw", State: parts.VectorIndexBuilt}},
		},
		{
			Name: "part_b", Type: parts.TypeWide, Rows: 1, Dir: bDir,
			Columns:       []parts.ColumnSize{{Name: "k"}, {Name: "v"}},
			VectorIndexes: []parts.VectorIndexRef{{Name: "hnsw", State: parts.VectorIndexBuilt}},
		},
	}
	require.NoError(t, hstage.Prepare([]mergetransform.Source{a, b}, sourceMeta))

	finalizer := finalize.NewFinalizer(vectorindex.NewLocalSupport(nopMover{}), nil)

	result := NewFuture()
	task := New(Config{
		Horizontal: hstage,
		BuildProjections: func(ctx horizontal.Context) (*projections.Stage, error) {
			return projections.NewStage(nil, nil), nil
		},
		Finalizer:  finalizer,
		SourceMeta: sourceMeta,
		Mode:       mergemode.Ordinary,
		IndexNames: []string{"hnsw"},
		Result:     result,
	})

	runToCompletion(t, task)

	newPart, err := result.Wait()
	require.NoError(t, err)
	require.NotNil(t, newPart)
	// The algorithm stays Horizontal (2 rows, 1 non-key column, both well
	// below the vertical thresholds) but the index is still decouple
	// eligible, so the row-id-map builder must still have run.
	assert.True(t, newPart.VectorIndexDecoupled)
	assert.FileExists(t, filepath.Join(newPart.Dir, "merged-inverted_row_ids_map"))
	assert.FileExists(t, filepath.Join(newPart.Dir, "merged-0-part_a-row_ids_map"))
	assert.FileExists(t, filepath.Join(newPart.Dir, "merged-1-part_b-row_ids_map"))
}

func TestTaskFulfillsFutureOnError(t *testing.T) {
	dir := t.TempDir()
	schema := rowmodel.NewSchema([]string{"k"}, []int{0})
	future := &parts.FuturePart{Name: "broken", Kind: parts.MergeOrdinary}
	hcfg := horizontal.Config{
		Schema: schema, Mode: mergemode.Ordinary, Future: future,
		TempBase: dir, TaskName: "task2", Settings: mergeconf.Default(),
		DestPartWide: true, DestStorage: algochoice.StorageFull,
	}
	hstage := horizontal.NewStage(hcfg)
	// Deliberately skip Prepare so Execute fails immediately.

	result := NewFuture()
	task := New(Config{
		Horizontal: hstage,
		Result:     result,
	})

	_, err := task.Execute()
	assert.Error(t, err)

	_, waitErr := result.Wait()
	assert.Error(t, waitErr)
}
