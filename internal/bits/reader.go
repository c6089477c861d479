package bits

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// ErrShortBuffer is returned when a read would run past the end of the
// underlying slice.
var ErrShortBuffer = fmt.Errorf("bits: short buffer")

// Reader walks a byte slice extracting little-endian fields. It never
// allocates past the slice it was given — the directory file's header and
// index are read into one buffer and picked apart with this type the way
// the teacher's BitsReader picks apart slab headers.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Pos() int { return r.pos }

func (r *Reader) require(n int) error {
	if r.pos+n > len(r.buf) {
		return ErrShortBuffer
	}
	return nil
}

func (r *Reader) ReadU8() (uint8, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadU16() (uint16, error) {
	if err := r.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadU32() (uint32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadU64() (uint64, error) {
	if err := r.require(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadF64() (float64, error) {
	u, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}

func (r *Reader) ReadUUID() (uuid.UUID, error) {
	var id uuid.UUID
	if err := r.require(len(id)); err != nil {
		return id, err
	}
	copy(id[:], r.buf[r.pos:])
	r.pos += len(id)
	return id, nil
}

// ReadBytes returns a sub-slice of n bytes. The slice aliases the Reader's
// backing array and must be copied by the caller before mutation.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.require(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// ReadString reads a u16 byte-length prefix followed by that many bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadU16()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MustReadU64 panics on error; reserved for decoding buffers whose length
// was already validated by the caller (e.g. a fixed-size index entry).
func (r *Reader) MustReadU64() uint64 {
	v, err := r.ReadU64()
	if err != nil {
		panic(err)
	}
	return v
}
