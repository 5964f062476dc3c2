// Package blockio implements the block-compressed sequential stream format
// used throughout the merge engine for temporary state (the rows-sources
// stream, the row-id-map files) and for the new part's own row and column
// data. It is adapted from the teacher's lib/mergeset block-stream
// reader/writer (github.com/VictoriaMetrics/VictoriaMetrics/lib/mergeset,
// block_stream_writer.go / block_stream_reader.go): records are buffered and
// flushed as independently zstd-compressed blocks, written back to back with
// a length prefix, and read back strictly sequentially. The teacher's
// sparse index block, metaindex, and LRU block caches are dropped here:
// those exist to support random point/range lookups into a part, which
// spec.md §1 explicitly places out of scope — this engine only ever does a
// single forward pass over each stream.
package blockio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/graintree/graintree/lib/bytesutil"
)

// DefaultBlockSize is the uncompressed size threshold at which Writer
// flushes a pending block.
const DefaultBlockSize = 64 * 1024

// Writer buffers appended bytes and flushes them as independently
// compressed blocks once DefaultBlockSize is reached or Close is called.
type Writer struct {
	dst       io.Writer
	enc       *zstd.Encoder
	buf       bytesutil.ByteBuffer
	blockSize int
	packed    []byte
}

// NewWriter returns a Writer appending compressed blocks to dst.
func NewWriter(dst io.Writer) (*Writer, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("cannot create zstd encoder: %w", err)
	}
	return &Writer{dst: dst, enc: enc, blockSize: DefaultBlockSize}, nil
}

// Write implements io.Writer, buffering p until a block boundary.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf.MustWrite(p)
	for w.buf.Len() >= w.blockSize {
		if err := w.flushBlock(w.buf.B[:w.blockSize]); err != nil {
			return 0, err
		}
		w.buf.B = w.buf.B[w.blockSize:]
	}
	return len(p), nil
}

func (w *Writer) flushBlock(block []byte) error {
	if len(block) == 0 {
		return nil
	}
	w.packed = w.enc.EncodeAll(block, w.packed[:0])
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(block)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(w.packed)))
	if _, err := w.dst.Write(hdr[:]); err != nil {
		return fmt.Errorf("cannot write block header: %w", err)
	}
	if _, err := w.dst.Write(w.packed); err != nil {
		return fmt.Errorf("cannot write compressed block: %w", err)
	}
	return nil
}

// Close flushes any remaining buffered bytes and closes the zstd encoder.
// On error the caller must not rely on any previously flushed block either:
// callers reset their surrounding write buffer before rethrowing so no
// further flush is attempted on broken state (spec.md §4.3).
func (w *Writer) Close() error {
	if err := w.flushBlock(w.buf.B); err != nil {
		w.buf.Reset()
		return err
	}
	w.buf.Reset()
	return w.enc.Close()
}

// Reset discards any buffered, not-yet-flushed bytes without writing them.
// Used on the error path so a destructor-time Close never flushes
// partially-constructed state.
func (w *Writer) Reset() {
	w.buf.Reset()
}

// Reader reads back a stream written by Writer, one block at a time.
type Reader struct {
	src     io.Reader
	dec     *zstd.Decoder
	pending []byte
	pos     int
	packed  []byte
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("cannot create zstd decoder: %w", err)
	}
	return &Reader{src: src, dec: dec}, nil
}

// Read implements io.Reader, transparently decompressing block boundaries.
func (r *Reader) Read(p []byte) (int, error) {
	if r.pos >= len(r.pending) {
		if err := r.nextBlock(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.pending[r.pos:])
	r.pos += n
	return n, nil
}

func (r *Reader) nextBlock() error {
	var hdr [8]byte
	if _, err := io.ReadFull(r.src, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return io.EOF
		}
		return err
	}
	rawLen := binary.LittleEndian.Uint32(hdr[0:4])
	packedLen := binary.LittleEndian.Uint32(hdr[4:8])
	r.packed = bytesutil.ResizeNoCopyMayOverallocate(r.packed, int(packedLen))
	if _, err := io.ReadFull(r.src, r.packed); err != nil {
		return fmt.Errorf("cannot read compressed block of %d bytes: %w", packedLen, err)
	}
	unpacked, err := r.dec.DecodeAll(r.packed, make([]byte, 0, rawLen))
	if err != nil {
		return fmt.Errorf("cannot decompress block: %w", err)
	}
	r.pending = unpacked
	r.pos = 0
	return nil
}

// Close releases the decoder. It does not close the underlying src.
func (r *Reader) Close() error {
	r.dec.Close()
	return nil
}
