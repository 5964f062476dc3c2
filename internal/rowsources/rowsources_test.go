package rowsources

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []Part{
		{SourceNum: 0, Skip: false},
		{SourceNum: 0, Skip: true},
		{SourceNum: 5, Skip: true},
		{SourceNum: MaxParts - 1, Skip: false},
	}
	for _, p := range cases {
		b, err := Pack(p)
		require.NoError(t, err)
		assert.Equal(t, p, Unpack(b))
	}
}

func TestPackRejectsSourceNumAtOrAboveMaxParts(t *testing.T) {
	_, err := Pack(Part{SourceNum: MaxParts})
	assert.Error(t, err)
}

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	records := []Part{
		{SourceNum: 0, Skip: false},
		{SourceNum: 1, Skip: true},
		{SourceNum: 0, Skip: true},
	}
	for _, p := range records {
		require.NoError(t, w.Append(p.SourceNum, p.Skip))
	}
	assert.EqualValues(t, len(records), w.Len())
	require.NoError(t, w.Close())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	defer r.Close()

	for _, want := range records {
		got, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestWriterResetDiscardsUnflushedRecords(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	require.NoError(t, w.Append(3, false))
	w.Reset()
	require.NoError(t, w.Close())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}
