// Package rowsources implements the Rows-Sources Codec (spec.md component
// 1): a compact binary stream of RowSourcePart records, one per input row
// the key-merge phase reads (skipped rows included), persisted through a block-compressed
// temporary file (internal/blockio) and replayed by the Vertical Stage's
// column gatherer and by the Row-Id-Map Builder.
package rowsources

import (
	"fmt"
	"io"

	"github.com/graintree/graintree/internal/blockio"
)

// sourceNumBits is the number of bits reserved for the source index in the
// packed byte; the remaining bit is the skip flag. This fixes the maximum
// number of source parts a single merge can address.
const sourceNumBits = 7

// MaxParts is RowSourcePart::MAX_PARTS: the largest source count a single
// byte-packed record can represent.
const MaxParts = 1 << sourceNumBits

// Part is one decoded RowSourcePart record.
type Part struct {
	// SourceNum is the ascending index of the source part this record refers to.
	SourceNum uint32
	// Skip marks a row read from the source that was not emitted to the output.
	Skip bool
}

// Pack encodes p into its one-byte wire representation.
func Pack(p Part) (byte, error) {
	if p.SourceNum >= MaxParts {
		return 0, fmt.Errorf("source_num %d exceeds RowSourcePart::MAX_PARTS %d", p.SourceNum, MaxParts)
	}
	b := byte(p.SourceNum) << 1
	if p.Skip {
		b |= 1
	}
	return b, nil
}

// Unpack decodes the one-byte wire representation back into a Part.
func Unpack(b byte) Part {
	return Part{
		SourceNum: uint32(b >> 1),
		Skip:      b&1 != 0,
	}
}

// Writer appends RowSourcePart records to a block-compressed stream.
type Writer struct {
	bw  *blockio.Writer
	n   uint64
	buf [1]byte
}

// NewWriter wraps dst as a rows-sources stream writer.
func NewWriter(dst io.Writer) (*Writer, error) {
	bw, err := blockio.NewWriter(dst)
	if err != nil {
		return nil, err
	}
	return &Writer{bw: bw}, nil
}

// Append writes one record. sourceNum must be < MaxParts.
func (w *Writer) Append(sourceNum uint32, skip bool) error {
	b, err := Pack(Part{SourceNum: sourceNum, Skip: skip})
	if err != nil {
		return err
	}
	w.buf[0] = b
	if _, err := w.bw.Write(w.buf[:]); err != nil {
		return fmt.Errorf("cannot append rows-sources record: %w", err)
	}
	w.n++
	return nil
}

// Len returns the number of records appended so far.
func (w *Writer) Len() uint64 {
	return w.n
}

// Close flushes the final block.
func (w *Writer) Close() error {
	return w.bw.Close()
}

// Reset discards any buffered, unflushed bytes without writing them. Callers
// use this on the error path before rethrowing, so no flush runs during
// destructor-time teardown of broken state.
func (w *Writer) Reset() {
	w.bw.Reset()
}

// Reader reads back a rows-sources stream written by Writer.
type Reader struct {
	br  *blockio.Reader
	buf [1]byte
}

// NewReader wraps src as a rows-sources stream reader.
func NewReader(src io.Reader) (*Reader, error) {
	br, err := blockio.NewReader(src)
	if err != nil {
		return nil, err
	}
	return &Reader{br: br}, nil
}

// Next returns the next record, or io.EOF once the stream is exhausted.
func (r *Reader) Next() (Part, error) {
	if _, err := io.ReadFull(r.br, r.buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Part{}, io.EOF
		}
		return Part{}, err
	}
	return Unpack(r.buf[0]), nil
}

// Close releases reader resources.
func (r *Reader) Close() error {
	return r.br.Close()
}
