package rowidmap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graintree/graintree/internal/mergemode"
	"github.com/graintree/graintree/internal/rowsources"
)

// buildRowsSources replays the S4 scenario's rows-sources trace: A=[10,20,30]
// all BUILT, B=[20,40] BUILT, Replacing mode, B's row-20 wins the tie.
func buildRowsSources(t *testing.T) *bytes.Buffer {
	buf := &bytes.Buffer{}
	w, err := rowsources.NewWriter(buf)
	require.NoError(t, err)
	records := []struct {
		source uint32
		skip   bool
	}{
		{0, false}, // A offset0 (key 10)
		{0, true},  // A offset1 (key 20, loses tie)
		{1, false}, // B offset0 (key 20, wins tie)
		{0, false}, // A offset2 (key 30)
		{1, false}, // B offset1 (key 40)
	}
	for _, r := range records {
		require.NoError(t, w.Append(r.source, r.skip))
	}
	require.NoError(t, w.Close())
	return buf
}

func TestBuildS4Decoupled(t *testing.T) {
	buf := buildRowsSources(t)
	r, err := rowsources.NewReader(buf)
	require.NoError(t, err)
	defer r.Close()

	res, err := Build(r, [][]uint64{{0, 1, 2}, {0, 1}}, []uint64{3, 2}, mergemode.Replacing)
	require.NoError(t, err)

	assert.Equal(t, []uint64{0, 0, 2, 1}, res.Inverted)
	assert.Equal(t, []uint64{1}, res.DeleteRowIDs[0])
	assert.Empty(t, res.DeleteRowIDs[1])
	// Replacing is collapse-like: row_ids_map stays sparse, holding only
	// surviving old offsets in ascending order with no tombstone entries
	// (spec.md:202's S4 scenario: row_ids_map[A] = {0->0, 1->., 2->2},
	// row_ids_map[B] = {0->1, 1->3}).
	assert.Equal(t, []uint64{0, 2}, res.RowIDsMap[0])
	assert.Equal(t, []uint64{1, 3}, res.RowIDsMap[1])
}

func TestBuildOrdinaryPopulatesRowIDsMap(t *testing.T) {
	buf := &bytes.Buffer{}
	w, err := rowsources.NewWriter(buf)
	require.NoError(t, err)
	require.NoError(t, w.Append(0, false))
	require.NoError(t, w.Append(1, false))
	require.NoError(t, w.Close())

	r, err := rowsources.NewReader(buf)
	require.NoError(t, err)
	defer r.Close()

	res, err := Build(r, [][]uint64{{0}, {0}}, []uint64{1, 1}, mergemode.Ordinary)
	require.NoError(t, err)

	// Inverted holds old offsets, not new row ids: both sources' single
	// row has old offset 0, so the values happen to coincide here.
	assert.Equal(t, []uint64{0, 0}, res.Inverted)
	assert.Equal(t, []uint64{0}, res.RowIDsMap[0])
	assert.Equal(t, []uint64{1}, res.RowIDsMap[1])
	assert.Empty(t, res.DeleteRowIDs[0])
}

func TestTextMapRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	values := []uint64{0, 5, Tombstone, 42}
	require.NoError(t, writeTextMap(buf, values))

	got, err := ReadTextMap(buf)
	require.NoError(t, err)
	assert.Equal(t, values, got)
}
