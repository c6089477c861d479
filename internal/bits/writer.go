// Package bits provides the little-endian binary encode/decode primitives
// the directory header and index rely on.
package bits

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
)

// Writer accumulates bytes into a growable buffer, little-endian only —
// the on-disk layout is little-endian throughout.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with buf as its initial backing array. buf may
// be nil.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf[:0]}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) PutU8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) PutU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutF64(v float64) {
	w.PutU64(math.Float64bits(v))
}

func (w *Writer) PutBytes(p []byte) {
	w.buf = append(w.buf, p...)
}

func (w *Writer) PutUUID(id uuid.UUID) {
	w.buf = append(w.buf, id[:]...)
}

// PutString writes a u16 byte-length prefix followed by the UTF-8 bytes,
// matching the codec-name/codec-params/path-table string framing used
// throughout the directory file.
func (w *Writer) PutString(s string) {
	w.PutU16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}
