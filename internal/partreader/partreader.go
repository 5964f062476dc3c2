// Package partreader implements the Sequential Part Reader (spec.md
// component 5): yields one source part's rows in primary-key order, with an
// optional `_part_offset` virtual column tracked alongside every row
// (SPEC_FULL.md §3, supplemented from
// _examples/original_source/src/Storages/MergeTree/MergeTask.cpp's
// pre-merge `_part_offset` read).
package partreader

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/graintree/graintree/internal/blockio"
	"github.com/graintree/graintree/internal/mergetransform"
	"github.com/graintree/graintree/internal/rowcodec"
	"github.com/graintree/graintree/internal/rowmodel"
	"github.com/graintree/graintree/lib/filestream"
)

// RowsFileName is the row-stream file every part directory carries.
const RowsFileName = "rows.bin"

// Reader sequentially yields a part's rows and tracks `_part_offset`.
type Reader struct {
	rc      filestream.ReadCloser
	br      *blockio.Reader
	numCols int
	offset  uint64

	// directIO records whether this reader was opened for a large source
	// part (MinBytesToUseDirectIO threshold crossed). True direct I/O
	// (O_DIRECT) is not portably available through Go's standard library
	// across the platforms this module targets, so it is threaded through
	// as lib/filestream's nocache flag instead: the OS is advised to drop
	// the part's pages from cache as they're read, the practical Go
	// equivalent of bypassing the cache for a large sequential scan.
	directIO bool
}

// Open opens part's row stream for sequential reading. numColumns must
// match the schema's physical column count the rows were encoded with.
func Open(partDir string, numColumns int, directIO bool) (*Reader, error) {
	path := filepath.Join(partDir, RowsFileName)
	rc, err := filestream.Open(path, directIO)
	if err != nil {
		return nil, fmt.Errorf("cannot open part row stream %q: %w", path, err)
	}
	br, err := blockio.NewReader(rc)
	if err != nil {
		rc.MustClose()
		return nil, fmt.Errorf("cannot open block reader for %q: %w", path, err)
	}
	return &Reader{rc: rc, br: br, numCols: numColumns, directIO: directIO}, nil
}

// Next returns the next row in primary-key order, with SourceOffset set to
// the `_part_offset` virtual column value (0-based, ascending). Returns
// io.EOF once the part is exhausted.
func (r *Reader) Next() (rowmodel.Row, error) {
	row, err := rowcodec.DecodeRow(r.br, r.numCols)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return rowmodel.Row{}, io.EOF
		}
		return rowmodel.Row{}, fmt.Errorf("cannot decode row at offset %d: %w", r.offset, err)
	}
	row.SourceOffset = r.offset
	r.offset++
	return row, nil
}

// PartOffsets drains the reader, returning the SourceOffset
// (`_part_offset`) of every row read — used by callers (the Row-Id-Map Builder) that
// need the full per-source `_part_offset` sequence rather than a streaming
// pull. It is only practical for parts small enough to hold in memory;
// large-part callers should use Next directly in a streaming loop instead.
func (r *Reader) PartOffsets() ([]uint64, error) {
	var offsets []uint64
	for {
		row, err := r.Next()
		if err == io.EOF {
			return offsets, nil
		}
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, row.SourceOffset)
	}
}

// Close releases the reader's file handle. The underlying filestream
// handle closes via MustClose, matching the teacher's Must-prefixed
// convention of panicking on a close failure rather than returning one,
// since a part's row stream failing to close cleanly is an unrecoverable
// storage fault, not an ordinary runtime condition.
func (r *Reader) Close() error {
	err := r.br.Close()
	r.rc.MustClose()
	return err
}

// AsSource adapts r to the mergetransform.Source interface.
func (r *Reader) AsSource() mergetransform.Source {
	return (*source)(r)
}

type source Reader

func (s *source) Next() (rowmodel.Row, error) {
	return (*Reader)(s).Next()
}
