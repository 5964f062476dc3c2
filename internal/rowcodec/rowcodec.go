// Package rowcodec implements the concrete byte encoding for rowmodel.Row
// values within a part's row stream. The on-disk columnar layout itself is
// implementation-defined and opaque to spec.md §6 ("Part Storage"); this
// package picks one simple, self-describing row encoding so the Sequential
// Part Reader and Horizontal Stage have something concrete to read and
// write, in place of the teacher's full column-file/marks/granule layout
// (out of scope per spec.md §1: "on-disk part layout details ... other than
// the abstract reader/writer contracts").
package rowcodec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/graintree/graintree/internal/rowmodel"
)

// EncodeRow writes one row's columns to w as a self-describing record:
// kind byte + value bytes per column, in schema order.
func EncodeRow(w io.Writer, row rowmodel.Row) error {
	var hdr [9]byte
	for _, v := range row.Columns {
		hdr[0] = byte(v.Kind)
		switch v.Kind {
		case rowmodel.KindInt64:
			binary.LittleEndian.PutUint64(hdr[1:9], uint64(v.I64))
			if _, err := w.Write(hdr[:9]); err != nil {
				return err
			}
		case rowmodel.KindUint64:
			binary.LittleEndian.PutUint64(hdr[1:9], v.U64)
			if _, err := w.Write(hdr[:9]); err != nil {
				return err
			}
		case rowmodel.KindFloat64:
			binary.LittleEndian.PutUint64(hdr[1:9], math.Float64bits(v.F64))
			if _, err := w.Write(hdr[:9]); err != nil {
				return err
			}
		case rowmodel.KindString:
			if err := writeBytesField(w, hdr[:1], []byte(v.Str)); err != nil {
				return err
			}
		case rowmodel.KindBytes:
			if err := writeBytesField(w, hdr[:1], v.Byt); err != nil {
				return err
			}
		default:
			return fmt.Errorf("rowcodec: unknown value kind %d", v.Kind)
		}
	}
	return nil
}

func writeBytesField(w io.Writer, kindByte []byte, data []byte) error {
	if _, err := w.Write(kindByte); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, err := w.Write(data)
	return err
}

// DecodeRow reads one row of numColumns columns from r.
func DecodeRow(r io.Reader, numColumns int) (rowmodel.Row, error) {
	row := rowmodel.Row{Columns: make([]rowmodel.Value, numColumns)}
	var kindByte [1]byte
	var wordBuf [8]byte
	var lenBuf [4]byte
	for i := 0; i < numColumns; i++ {
		if _, err := io.ReadFull(r, kindByte[:]); err != nil {
			return rowmodel.Row{}, err
		}
		kind := rowmodel.Kind(kindByte[0])
		switch kind {
		case rowmodel.KindInt64:
			if _, err := io.ReadFull(r, wordBuf[:]); err != nil {
				return rowmodel.Row{}, err
			}
			row.Columns[i] = rowmodel.Int64(int64(binary.LittleEndian.Uint64(wordBuf[:])))
		case rowmodel.KindUint64:
			if _, err := io.ReadFull(r, wordBuf[:]); err != nil {
				return rowmodel.Row{}, err
			}
			row.Columns[i] = rowmodel.Uint64(binary.LittleEndian.Uint64(wordBuf[:]))
		case rowmodel.KindFloat64:
			if _, err := io.ReadFull(r, wordBuf[:]); err != nil {
				return rowmodel.Row{}, err
			}
			row.Columns[i] = rowmodel.Float64(math.Float64frombits(binary.LittleEndian.Uint64(wordBuf[:])))
		case rowmodel.KindString:
			b, err := readBytesField(r, lenBuf[:])
			if err != nil {
				return rowmodel.Row{}, err
			}
			row.Columns[i] = rowmodel.String(string(b))
		case rowmodel.KindBytes:
			b, err := readBytesField(r, lenBuf[:])
			if err != nil {
				return rowmodel.Row{}, err
			}
			row.Columns[i] = rowmodel.Bytes(b)
		default:
			return rowmodel.Row{}, fmt.Errorf("rowcodec: unknown value kind %d on decode", kind)
		}
	}
	return row, nil
}

func readBytesField(r io.Reader, lenBuf []byte) ([]byte, error) {
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf)
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
