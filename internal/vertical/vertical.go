// Package vertical implements the Vertical Stage (spec.md component 8):
// runs only when the Horizontal Stage chose the Vertical algorithm, and
// iterates the gathering columns one at a time, replaying the rows-sources
// stream against each source's per-column sequential reader to gather the
// finished column into the new part.
package vertical

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/VictoriaMetrics/metrics"

	"github.com/graintree/graintree/internal/blockio"
	"github.com/graintree/graintree/internal/mergeconf"
	"github.com/graintree/graintree/internal/mergeerr"
	"github.com/graintree/graintree/internal/parts"
	"github.com/graintree/graintree/internal/rowcodec"
	"github.com/graintree/graintree/internal/rowmodel"
	"github.com/graintree/graintree/internal/rowsources"
)

// columnsWrittenTotal is the process-wide columns_written progress counter
// spec.md §6 names, bumped once per gathering column fully gathered.
var columnsWrittenTotal = metrics.NewCounter(`graintree_columns_written_total`)

// innerState is the three-state inner machine spec.md §4.4 names.
type innerState int

const (
	needPrepare innerState = iota
	needExecute
	needFinish
)

// ColumnSource yields one source part's values for a single gathering
// column, in the same row order the horizontal key-merge read that source.
type ColumnSource interface {
	Next() (rowmodel.Value, error) // io.EOF at end
	Close() error
}

// delayedStream is a gathered column's output stream not yet finalized.
type delayedStream struct {
	column string
	f      *os.File
	bw     *blockio.Writer
	rows   uint64
}

// Stage drives the per-column gather loop.
type Stage struct {
	settings mergeconf.Settings
	newPart  *parts.NewPart
	columns  []string
	rsPath   string
	expected uint64 // rows written in the horizontal stage; every column must match

	idx     int
	state   innerState
	delayed []*delayedStream

	openColumnSources func(column string) ([]ColumnSource, error)
}

// NewStage returns a Stage over columns, after checking that rsPath's
// record count equals rowsRead - rowsFiltered (spec.md §4.4's first check).
// expectedRows is checked later, against each gathered column's row count.
func NewStage(settings mergeconf.Settings, newPart *parts.NewPart, columns []string, rsPath string, expectedRows uint64, rowsRead, rowsFiltered uint64, numSources int, openColumnSources func(column string) ([]ColumnSource, error)) (*Stage, error) {
	if err := validateRowsSourcesCount(rsPath, rowsRead, rowsFiltered, numSources); err != nil {
		return nil, err
	}
	return &Stage{
		settings:          settings,
		newPart:           newPart,
		columns:           columns,
		rsPath:            rsPath,
		expected:          expectedRows,
		openColumnSources: openColumnSources,
	}, nil
}

func validateRowsSourcesCount(rsPath string, rowsRead, rowsFiltered uint64, numSources int) error {
	want := rowsRead - rowsFiltered
	if want == 0 && numSources == 1 {
		return nil
	}
	got, err := countRowsSources(rsPath)
	if err != nil {
		return err
	}
	if got != want {
		return mergeerr.Logical("rows-sources byte count %d does not equal rows_read(%d) - input_rows_filtered(%d) = %d", got, rowsRead, rowsFiltered, want)
	}
	return nil
}

func countRowsSources(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("cannot open rows-sources file %q: %w", path, err)
	}
	defer f.Close()
	r, err := rowsources.NewReader(f)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	var n uint64
	for {
		_, err := r.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
		n++
	}
}

// Execute runs the inner state machine for the current column until it has
// been fully gathered, then advances to the next column. Returns more=true
// while columns remain.
func (s *Stage) Execute() (more bool, err error) {
	if s.idx >= len(s.columns) {
		return false, nil
	}
	column := s.columns[s.idx]

	switch s.state {
	case needPrepare:
		if err := s.prepareColumn(); err != nil {
			return false, err
		}
		s.state = needExecute
		return true, nil

	case needExecute:
		if err := s.gatherColumn(column); err != nil {
			return false, err
		}
		s.state = needFinish
		return true, nil

	case needFinish:
		if err := s.finishColumn(); err != nil {
			return false, err
		}
		s.idx++
		s.state = needPrepare
		return s.idx < len(s.columns), nil
	}
	return false, mergeerr.Logical("vertical stage: unknown inner state %d", s.state)
}

func (s *Stage) prepareColumn() error {
	// Re-seeking the rows-sources stream to 0 happens implicitly: each
	// column gets a fresh rowsources.Reader in gatherColumn.
	return nil
}

func (s *Stage) gatherColumn(column string) error {
	sources, err := s.openColumnSources(column)
	if err != nil {
		return err
	}
	defer func() {
		for _, cs := range sources {
			cs.Close()
		}
	}()

	rsFile, err := os.Open(s.rsPath)
	if err != nil {
		return fmt.Errorf("cannot open rows-sources file %q: %w", s.rsPath, err)
	}
	defer rsFile.Close()
	rsReader, err := rowsources.NewReader(rsFile)
	if err != nil {
		return err
	}
	defer rsReader.Close()

	ds, err := s.newDelayedStream(column)
	if err != nil {
		return err
	}

	for {
		rec, err := rsReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		v, err := sources[rec.SourceNum].Next()
		if err != nil {
			return fmt.Errorf("column %q: source %d exhausted early: %w", column, rec.SourceNum, err)
		}
		if rec.Skip {
			continue
		}
		if err := rowcodec.EncodeRow(ds.bw, rowmodel.Row{Columns: []rowmodel.Value{v}}); err != nil {
			return err
		}
		ds.rows++
	}

	if ds.rows != s.expected {
		return mergeerr.Logical("column %q: gathered %d rows, want %d (horizontal stage row count)", column, ds.rows, s.expected)
	}

	columnsWrittenTotal.Inc()
	s.delayed = append(s.delayed, ds)
	if len(s.delayed) > s.settings.MaxDelayedStreams {
		if err := s.finalizeOldest(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stage) finishColumn() error {
	return nil
}

func (s *Stage) newDelayedStream(column string) (*delayedStream, error) {
	path := filepath.Join(s.newPart.Dir, "col-"+column+".bin")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cannot create gathered column file %q: %w", path, err)
	}
	bw, err := blockio.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &delayedStream{column: column, f: f, bw: bw}, nil
}

func (s *Stage) finalizeOldest() error {
	if len(s.delayed) == 0 {
		return nil
	}
	ds := s.delayed[0]
	s.delayed = s.delayed[1:]
	return finalizeStream(ds, s.settings.FsyncAfterMerge)
}

// Finish finalizes every remaining delayed stream.
func (s *Stage) Finish() error {
	for len(s.delayed) > 0 {
		if err := s.finalizeOldest(); err != nil {
			return err
		}
	}
	return nil
}

func finalizeStream(ds *delayedStream, fsync bool) error {
	if err := ds.bw.Close(); err != nil {
		ds.f.Close()
		return fmt.Errorf("cannot close gathered column %q: %w", ds.column, err)
	}
	if fsync {
		if err := ds.f.Sync(); err != nil {
			ds.f.Close()
			return fmt.Errorf("cannot fsync gathered column %q: %w", ds.column, err)
		}
	}
	return ds.f.Close()
}
