package vertical

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graintree/graintree/internal/blockio"
	"github.com/graintree/graintree/internal/mergeconf"
	"github.com/graintree/graintree/internal/parts"
	"github.com/graintree/graintree/internal/rowcodec"
	"github.com/graintree/graintree/internal/rowmodel"
	"github.com/graintree/graintree/internal/rowsources"
)

// fakeColumnSource replays a fixed slice of values, implementing ColumnSource.
type fakeColumnSource struct {
	values []rowmodel.Value
	pos    int
}

func (f *fakeColumnSource) Next() (rowmodel.Value, error) {
	if f.pos >= len(f.values) {
		return rowmodel.Value{}, io.EOF
	}
	v := f.values[f.pos]
	f.pos++
	return v, nil
}

func (f *fakeColumnSource) Close() error { return nil }

func writeRowsSources(t *testing.T, path string, records []rowsources.Part) {
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w, err := rowsources.NewWriter(f)
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, w.Append(r.SourceNum, r.Skip))
	}
	require.NoError(t, w.Close())
}

func readColumnValues(t *testing.T, path string) []rowmodel.Value {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	br, err := blockio.NewReader(f)
	require.NoError(t, err)
	defer br.Close()

	var out []rowmodel.Value
	for {
		row, err := rowcodec.DecodeRow(br, 1)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		require.NoError(t, err)
		out = append(out, row.Columns[0])
	}
	return out
}

func TestVerticalGathersOneColumn(t *testing.T) {
	dir := t.TempDir()
	rsPath := filepath.Join(dir, "rows_sources")
	// A contributes offset0 (skipped, lost a tie) and offset1 (kept);
	// B contributes offset0 (kept). 2 rows survive out of 3 records read.
	writeRowsSources(t, rsPath, []rowsources.Part{
		{SourceNum: 0, Skip: true},
		{SourceNum: 1, Skip: false},
		{SourceNum: 0, Skip: false},
	})

	newPart := &parts.NewPart{Dir: dir}
	open := func(column string) ([]ColumnSource, error) {
		return []ColumnSource{
			&fakeColumnSource{values: []rowmodel.Value{rowmodel.String("a0"), rowmodel.String("a1")}},
			&fakeColumnSource{values: []rowmodel.Value{rowmodel.String("b0")}},
		}, nil
	}

	// rowsRead=3 matches the 3 rows-sources records (2 of which survive
	// to the gathered output; expectedRows below is the surviving count).
	stage, err := NewStage(mergeconf.Default(), newPart, []string{"v"}, rsPath, 2, 3, 0, 2, open)
	require.NoError(t, err)

	for {
		more, err := stage.Execute()
		require.NoError(t, err)
		if !more {
			break
		}
	}
	require.NoError(t, stage.Finish())

	values := readColumnValues(t, filepath.Join(dir, "col-v.bin"))
	require.Len(t, values, 2)
	assert.Equal(t, "b0", values[0].Str)
	assert.Equal(t, "a1", values[1].Str)
}

func TestVerticalGatherBumpsColumnsWrittenCounter(t *testing.T) {
	dir := t.TempDir()
	rsPath := filepath.Join(dir, "rows_sources")
	writeRowsSources(t, rsPath, []rowsources.Part{{SourceNum: 0, Skip: false}})

	newPart := &parts.NewPart{Dir: dir}
	open := func(column string) ([]ColumnSource, error) {
		return []ColumnSource{&fakeColumnSource{values: []rowmodel.Value{rowmodel.String("a0")}}}, nil
	}
	stage, err := NewStage(mergeconf.Default(), newPart, []string{"v"}, rsPath, 1, 1, 0, 1, open)
	require.NoError(t, err)

	before := columnsWrittenTotal.Get()
	for {
		more, err := stage.Execute()
		require.NoError(t, err)
		if !more {
			break
		}
	}
	require.NoError(t, stage.Finish())
	assert.EqualValues(t, before+1, columnsWrittenTotal.Get())
}

func TestValidateRowsSourcesCountMismatch(t *testing.T) {
	dir := t.TempDir()
	rsPath := filepath.Join(dir, "rows_sources")
	writeRowsSources(t, rsPath, []rowsources.Part{{SourceNum: 0, Skip: false}})

	_, err := NewStage(mergeconf.Default(), &parts.NewPart{Dir: dir}, []string{"v"}, rsPath, 1, 5, 0, 2, nil)
	assert.Error(t, err)
}

func TestValidateRowsSourcesCountSingleSourceNoFilter(t *testing.T) {
	dir := t.TempDir()
	_, err := NewStage(mergeconf.Default(), &parts.NewPart{Dir: dir}, []string{"v"}, filepath.Join(dir, "missing"), 0, 0, 0, 1, nil)
	assert.NoError(t, err)
}
