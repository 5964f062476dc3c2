package vectorindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graintree/graintree/internal/parts"
)

func TestDeleteBitmap(t *testing.T) {
	b := NewDeleteBitmap()
	b.Add(3)
	b.Add(7)

	assert.True(t, b.Contains(3))
	assert.False(t, b.Contains(4))
	assert.EqualValues(t, 2, b.Cardinality())

	clone := b.Clone()
	clone.Add(9)
	assert.False(t, b.Contains(9))
	assert.True(t, clone.Contains(9))
}

type fakeMover struct {
	calls []string
	fail  bool
}

func (m *fakeMover) CopyFile(srcDir, dstDir, srcName, dstName string) (uint64, error) {
	if m.fail {
		return 0, fmt.Errorf("boom")
	}
	m.calls = append(m.calls, fmt.Sprintf("%s/%s->%s/%s", srcDir, srcName, dstDir, dstName))
	return 42, nil
}

func TestLocalSupportMoveAndUpdate(t *testing.T) {
	mover := &fakeMover{}
	s := NewLocalSupport(mover)
	seg := Segment{SourceID: 1, SourceName: "part_1", IndexName: "hnsw"}
	sp := parts.SourcePart{Name: "part_1", Dir: "/tmp/part_1"}

	sums, err := s.MoveVectorIndexFiles(true, seg, sp, "/tmp/new")
	require.NoError(t, err)
	assert.Equal(t, Checksums{"merged-1-part_1-hnsw.idx": 42}, sums)
	require.Len(t, mover.calls, 1)

	require.NoError(t, s.UpdateBitMap(seg, []uint64{5, 6}))
	bm := s.Bitmap(seg)
	require.NotNil(t, bm)
	assert.True(t, bm.Contains(5))
	assert.True(t, bm.Contains(6))
	assert.False(t, bm.Contains(7))

	require.NoError(t, s.LoadDecoupleCache(seg))
	require.NoError(t, s.DumpCheckSums("/tmp/new", "hnsw", sums))
}

func TestLocalSupportMoveSingleVPartNaming(t *testing.T) {
	mover := &fakeMover{}
	s := NewLocalSupport(mover)
	seg := Segment{SourceID: 0, SourceName: "part_0", IndexName: "hnsw"}
	sp := parts.SourcePart{Name: "part_0", Dir: "/tmp/part_0"}

	sums, err := s.MoveVectorIndexFiles(false, seg, sp, "/tmp/new")
	require.NoError(t, err)
	assert.Equal(t, Checksums{"merged-0-part_0-hnsw.idx": 42}, sums)
}

func TestLocalSupportMoveFailure(t *testing.T) {
	mover := &fakeMover{fail: true}
	s := NewLocalSupport(mover)
	seg := Segment{SourceID: 0, SourceName: "part_0", IndexName: "hnsw"}
	sp := parts.SourcePart{Name: "part_0", Dir: "/tmp/part_0"}

	_, err := s.MoveVectorIndexFiles(true, seg, sp, "/tmp/new")
	assert.Error(t, err)
}
