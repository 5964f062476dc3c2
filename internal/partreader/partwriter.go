package partreader

import (
	"fmt"
	"path/filepath"

	"github.com/graintree/graintree/internal/blockio"
	"github.com/graintree/graintree/internal/rowcodec"
	"github.com/graintree/graintree/internal/rowmodel"
	"github.com/graintree/graintree/lib/filestream"
)

// Writer sequentially appends rows to a new part's row stream, used by the
// Horizontal Stage (and by tests building fixture parts).
type Writer struct {
	wc           filestream.WriteCloser
	bw           *blockio.Writer
	n            uint64
	bytesWritten uint64
}

// Create opens partDir's row stream for writing, truncating any existing
// file (the caller is expected to have already created a fresh tmp_merge_
// directory; this never overwrites a sealed part). nocache requests the
// same page-cache-bypass advice Reader's directIO flag requests on read,
// appropriate for a new part's row stream that won't be re-read soon.
func Create(partDir string, nocache bool) (*Writer, error) {
	path := filepath.Join(partDir, RowsFileName)
	wc, err := filestream.Create(path, nocache)
	if err != nil {
		return nil, fmt.Errorf("cannot create part row stream %q: %w", path, err)
	}
	bw, err := blockio.NewWriter(wc)
	if err != nil {
		wc.MustClose()
		return nil, fmt.Errorf("cannot create block writer for %q: %w", path, err)
	}
	return &Writer{wc: wc, bw: bw}, nil
}

// Write implements io.Writer, counting uncompressed bytes before forwarding
// to the block writer, so Append's callers can measure exactly how many
// uncompressed bytes the row it just wrote added (spec.md §6's
// bytes_written_uncompressed progress counter).
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.bw.Write(p)
	w.bytesWritten += uint64(n)
	return n, err
}

// Append writes one row.
func (w *Writer) Append(row rowmodel.Row) error {
	if err := rowcodec.EncodeRow(w, row); err != nil {
		return fmt.Errorf("cannot encode row %d: %w", w.n, err)
	}
	w.n++
	return nil
}

// Rows returns the number of rows appended so far.
func (w *Writer) Rows() uint64 { return w.n }

// BytesWritten returns the cumulative uncompressed byte count of every row
// encoded so far.
func (w *Writer) BytesWritten() uint64 { return w.bytesWritten }

// Close flushes the block writer and closes the underlying file. The
// filestream handle's MustClose always fsyncs before closing, so every row
// stream is durable on disk once Close returns regardless of
// mergeconf.Settings.FsyncAfterMerge — that setting instead gates whether
// the Vertical Stage's per-column output streams fsync (internal/vertical),
// where a large merge may want to skip the cost until the very last stream.
func (w *Writer) Close() error {
	err := w.bw.Close()
	w.wc.MustClose()
	return err
}

// Reset discards unflushed buffered bytes, used on the error path so a
// later Close does not flush partially-written state.
func (w *Writer) Reset() {
	w.bw.Reset()
}
