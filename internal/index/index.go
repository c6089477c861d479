// Package index implements the dense in-memory coordinate-to-location
// table described in spec §3/§4.3: a flat array of 14-byte entries,
// indexed by the linearised grid coordinate, serialised bit-exact to the
// directory file.
package index

import (
	"fmt"
	"sync"
	"sync/atomic"

	"blockfs/internal/bits"
	"blockfs/internal/volume"
)

// EntrySize is the on-disk width of one index entry: file_id(2) +
// offset(8) + nbytes(4), per §6.
const EntrySize = 2 + 8 + 4

// Entry locates one block's encoded bytes. The zero value — file_id=0,
// offset=0, nbytes=0 — is the "absent" sentinel per §3.
type Entry struct {
	FileID uint16
	Offset uint64
	NBytes uint32
}

// Absent reports whether e denotes an unwritten block.
func (e Entry) Absent() bool {
	return e.NBytes == 0
}

func (e Entry) encode(w *bits.Writer) {
	w.PutU16(e.FileID)
	w.PutU64(e.Offset)
	w.PutU32(e.NBytes)
}

func decodeEntry(r *bits.Reader) (Entry, error) {
	fileID, err := r.ReadU16()
	if err != nil {
		return Entry{}, err
	}
	offset, err := r.ReadU64()
	if err != nil {
		return Entry{}, err
	}
	nbytes, err := r.ReadU32()
	if err != nil {
		return Entry{}, err
	}
	return Entry{FileID: fileID, Offset: offset, NBytes: nbytes}, nil
}

// cell is the runtime representation of one index slot: the entry, guarded
// by a mutex, plus a presence flag set with a release store once its
// append has committed, for a single-writer-per-cell array.
type cell struct {
	// present is set with Store after entry has been fully written, and
	// checked with Load before entry is read — the release/acquire pair
	// that lets reads race safely with the one writer permitted per cell.
	present atomic.Bool
	mu      sync.Mutex
	entry   Entry
}

// Index is the dense coordinate -> Entry table, length Nx*Ny*Nz.
type Index struct {
	vol   volume.Volume
	cells []cell
}

// New allocates an all-absent index sized to vol's grid.
func New(vol volume.Volume) *Index {
	return &Index{vol: vol, cells: make([]cell, vol.GridSize())}
}

// Get returns the entry for c and whether it is present (non-absent).
func (ix *Index) Get(c volume.Coordinate) (Entry, bool) {
	idx := ix.vol.LinearIndex(c)
	cl := &ix.cells[idx]
	if !cl.present.Load() {
		return Entry{}, false
	}
	cl.mu.Lock()
	e := cl.entry
	cl.mu.Unlock()
	return e, true
}

// ErrDuplicateWrite is returned by Put when the cell for c already holds a
// committed entry — per §4.3, a contract violation surfaced to callers as
// DuplicateWrite rather than silently overwritten.
var ErrDuplicateWrite = fmt.Errorf("index: duplicate write")

// Put records entry for c. It is called only after a WriterPool worker has
// reported a successful append for a coordinate it alone owns, so no two
// goroutines call Put for the same cell concurrently; the mutex here
// guards visibility to concurrent Get callers, not writer/writer races.
func (ix *Index) Put(c volume.Coordinate, entry Entry) error {
	idx := ix.vol.LinearIndex(c)
	cl := &ix.cells[idx]
	if cl.present.Load() {
		return ErrDuplicateWrite
	}
	cl.mu.Lock()
	cl.entry = entry
	cl.mu.Unlock()
	cl.present.Store(true)
	return nil
}

// Len returns the number of cells (Nx*Ny*Nz).
func (ix *Index) Len() int {
	return len(ix.cells)
}

// Serialize appends the bit-exact on-disk representation (§6: index length
// u64 followed by length*14 bytes of entries) to w.
func (ix *Index) Serialize(w *bits.Writer) {
	w.PutU64(uint64(len(ix.cells)))
	for i := range ix.cells {
		cl := &ix.cells[i]
		var e Entry
		if cl.present.Load() {
			cl.mu.Lock()
			e = cl.entry
			cl.mu.Unlock()
		}
		e.encode(w)
	}
}

// Deserialize reads an index previously written by Serialize for vol.
func Deserialize(r *bits.Reader, vol volume.Volume) (*Index, error) {
	length, err := r.ReadU64()
	if err != nil {
		return nil, fmt.Errorf("index: reading length: %w", err)
	}
	if length != vol.GridSize() {
		return nil, fmt.Errorf("index: length %d does not match volume grid size %d", length, vol.GridSize())
	}
	ix := New(vol)
	for i := uint64(0); i < length; i++ {
		e, err := decodeEntry(r)
		if err != nil {
			return nil, fmt.Errorf("index: reading entry %d: %w", i, err)
		}
		if e.NBytes > 0 {
			ix.cells[i].entry = e
			ix.cells[i].present.Store(true)
		}
	}
	return ix, nil
}

// MaxOffsetForFile returns the maximum offset+nbytes among entries
// referencing fileID, used by Directory.Open to truncate a BlockFile back
// to its last committed append per §4.2's reopen recovery rule.
func (ix *Index) MaxOffsetForFile(fileID uint16) uint64 {
	var max uint64
	for i := range ix.cells {
		cl := &ix.cells[i]
		if !cl.present.Load() {
			continue
		}
		if cl.entry.FileID != fileID {
			continue
		}
		if end := cl.entry.Offset + uint64(cl.entry.NBytes); end > max {
			max = end
		}
	}
	return max
}
