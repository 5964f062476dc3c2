package finalize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graintree/graintree/internal/horizontal"
	"github.com/graintree/graintree/internal/parts"
	"github.com/graintree/graintree/internal/rowidmap"
	"github.com/graintree/graintree/internal/vectorindex"
)

type fakeSupport struct {
	moved      []vectorindex.Segment
	bitmapUpds map[string][]uint64
	cached     []vectorindex.Segment
	dumped     []string
}

func newFakeSupport() *fakeSupport {
	return &fakeSupport{bitmapUpds: make(map[string][]uint64)}
}

func (f *fakeSupport) MoveVectorIndexFiles(decouple bool, seg vectorindex.Segment, sourcePart parts.SourcePart, newPartDir string) (vectorindex.Checksums, error) {
	f.moved = append(f.moved, seg)
	return vectorindex.Checksums{seg.IndexName + ".idx": 7}, nil
}

func (f *fakeSupport) UpdateBitMap(seg vectorindex.Segment, deleteRowIDs []uint64) error {
	f.bitmapUpds[seg.SourceName] = deleteRowIDs
	return nil
}

func (f *fakeSupport) LoadDecoupleCache(seg vectorindex.Segment) error {
	f.cached = append(f.cached, seg)
	return nil
}

func (f *fakeSupport) DumpCheckSums(newPartDir, indexName string, sums vectorindex.Checksums) error {
	f.dumped = append(f.dumped, indexName)
	return nil
}

func sourcesWithBuiltIndex() []parts.SourcePart {
	return []parts.SourcePart{
		{Name: "part_a", Rows: 3, VectorIndexes: []parts.VectorIndexRef{{Name: "hnsw", State: parts.VectorIndexBuilt}}},
		{Name: "part_b", Rows: 2, VectorIndexes: []parts.VectorIndexRef{{Name: "hnsw", State: parts.VectorIndexBuilt}}},
	}
}

func TestFinalizeDecoupledPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rows.bin"), []byte("xyz"), 0o644))
	rsPath := filepath.Join(dir, "rows_sources_scratch")
	require.NoError(t, os.WriteFile(rsPath, []byte("abc"), 0o644))

	support := newFakeSupport()
	var precommitted *parts.NewPart
	finalizer := NewFinalizer(support, func(np *parts.NewPart) error {
		precommitted = np
		return nil
	})

	newPart := &parts.NewPart{Name: "result_1", Dir: dir, Rows: 5}
	decisions := []horizontal.DecoupleDecision{{IndexName: "hnsw", CanDecouple: true}}
	builderResult := &rowidmap.Result{
		Inverted:     []uint64{0, 0, 1},
		RowIDsMap:    [][]uint64{nil, nil},
		DeleteRowIDs: [][]uint64{{1}, {}},
	}

	err := finalizer.Finalize(newPart, decisions, sourcesWithBuiltIndex(), rsPath, builderResult, nil)
	require.NoError(t, err)

	assert.Len(t, support.moved, 2)
	assert.Equal(t, []uint64{1}, support.bitmapUpds["part_a"])
	assert.Len(t, support.cached, 2)
	assert.Equal(t, []string{"hnsw"}, support.dumped)
	assert.FileExists(t, filepath.Join(dir, "merged-inverted_row_sources_map"))
	assert.FileExists(t, filepath.Join(dir, "merged-inverted_row_ids_map"))
	// Every source's row_ids_map file is written unconditionally, even one
	// holding an empty/nil (all-tombstoned or zero-survivor) sparse map.
	assert.FileExists(t, filepath.Join(dir, "merged-0-part_a-row_ids_map"))
	assert.FileExists(t, filepath.Join(dir, "merged-1-part_b-row_ids_map"))
	assert.FileExists(t, filepath.Join(dir, "checksums.txt"))
	require.NotNil(t, precommitted)
	assert.Equal(t, "result_1", precommitted.Name)
	assert.True(t, newPart.VectorIndexDecoupled)
	assert.False(t, newPart.VectorIndexSingle)
}

func TestFinalizeSingleVPartPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rows.bin"), []byte("xyz"), 0o644))

	support := newFakeSupport()
	finalizer := NewFinalizer(support, nil)

	newPart := &parts.NewPart{Name: "result_1", Dir: dir, Rows: 3}
	decisions := []horizontal.DecoupleDecision{{IndexName: "hnsw", OnlyOneVPartMerged: true, SingleSourceIdx: 0}}
	sources := []parts.SourcePart{{Name: "part_a", Rows: 3}}

	err := finalizer.Finalize(newPart, decisions, sources, "", nil, nil)
	require.NoError(t, err)

	assert.Len(t, support.moved, 1)
	assert.True(t, newPart.VectorIndexSingle)
	assert.False(t, newPart.VectorIndexDecoupled)
	assert.Equal(t, []string{"hnsw"}, support.dumped)
}

func TestFinalizeClearsDecisionsWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	support := newFakeSupport()
	finalizer := NewFinalizer(support, nil)

	newPart := &parts.NewPart{Name: "result_empty", Dir: dir, Rows: 0}
	decisions := []horizontal.DecoupleDecision{{IndexName: "hnsw", CanDecouple: true}}

	err := finalizer.Finalize(newPart, decisions, sourcesWithBuiltIndex(), "", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, support.moved)
}

func TestFinalizeAttachesProjections(t *testing.T) {
	dir := t.TempDir()
	support := newFakeSupport()
	finalizer := NewFinalizer(support, nil)

	newPart := &parts.NewPart{Name: "result_1", Dir: dir, Rows: 1}
	projResults := map[string]*parts.NewPart{"p1": {Name: "p1_sub"}}

	err := finalizer.Finalize(newPart, nil, nil, "", nil, projResults)
	require.NoError(t, err)
	require.NotNil(t, newPart.Projections)
	assert.Equal(t, "p1_sub", newPart.Projections["p1"].Name)
}
