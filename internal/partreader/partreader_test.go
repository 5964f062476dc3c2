package partreader

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graintree/graintree/internal/rowmodel"
)

func TestWriteThenReadRoundTripTracksPartOffset(t *testing.T) {
	dir := t.TempDir()

	w, err := Create(dir, false)
	require.NoError(t, err)
	rows := []rowmodel.Row{
		{Columns: []rowmodel.Value{rowmodel.Int64(1), rowmodel.String("a")}},
		{Columns: []rowmodel.Value{rowmodel.Int64(2), rowmodel.String("b")}},
		{Columns: []rowmodel.Value{rowmodel.Int64(3), rowmodel.String("c")}},
	}
	for _, r := range rows {
		require.NoError(t, w.Append(r))
	}
	assert.EqualValues(t, 3, w.Rows())
	require.NoError(t, w.Close())

	r, err := Open(dir, 2, false)
	require.NoError(t, err)
	defer r.Close()

	for i, want := range rows {
		got, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, want.Columns[0].I64, got.Columns[0].I64)
		assert.Equal(t, want.Columns[1].Str, got.Columns[1].Str)
		assert.EqualValues(t, i, got.SourceOffset)
	}
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestPartOffsetsDrainsAllRows(t *testing.T) {
	dir := t.TempDir()

	w, err := Create(dir, false)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Append(rowmodel.Row{Columns: []rowmodel.Value{rowmodel.Int64(int64(i))}}))
	}
	require.NoError(t, w.Close())

	r, err := Open(dir, 1, false)
	require.NoError(t, err)
	defer r.Close()

	offsets, err := r.PartOffsets()
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, offsets)
}

func TestWriterResetDiscardsUnflushedRows(t *testing.T) {
	dir := t.TempDir()

	w, err := Create(dir, false)
	require.NoError(t, err)
	require.NoError(t, w.Append(rowmodel.Row{Columns: []rowmodel.Value{rowmodel.Int64(1)}}))
	w.Reset()
	require.NoError(t, w.Close())

	r, err := Open(dir, 1, false)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestAsSourceAdaptsToMergetransformSource(t *testing.T) {
	dir := t.TempDir()

	w, err := Create(dir, false)
	require.NoError(t, err)
	require.NoError(t, w.Append(rowmodel.Row{Columns: []rowmodel.Value{rowmodel.Int64(42)}}))
	require.NoError(t, w.Close())

	r, err := Open(dir, 1, false)
	require.NoError(t, err)
	defer r.Close()

	src := r.AsSource()
	row, err := src.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 42, row.Columns[0].I64)
}
