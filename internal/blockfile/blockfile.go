// Package blockfile implements the append-only spindle file each
// WriterPool worker owns exclusively, per spec §4.2. It is a thin,
// positional-I/O wrapper around *os.File in the style of the teacher's
// io.FileReader (manager/meta's GetSlabFile/WriteAt/FillZeroes), adapted
// from random-access slab storage to strict append-then-read-only-what-
// was-appended semantics.
package blockfile

import (
	"fmt"
	"os"
	"sync"
)

// BlockFile is identified by a small file_id and backed by one path on
// disk. Appends are serialised by the caller (the owning WriterPool
// worker); reads may run concurrently with appends provided they stay
// within already-appended bytes, which is enforced by never advertising a
// byte range through the Index until Append has returned successfully.
type BlockFile struct {
	id   uint16
	path string
	file *os.File

	mu     sync.Mutex // serialises Append's WriteAt at length + length update
	length int64
}

// Create creates a new, empty BlockFile at path.
func Create(id uint16, path string) (*BlockFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("blockfile: create %s: %w", path, err)
	}
	return &BlockFile{id: id, path: path, file: f}, nil
}

// Open opens an existing BlockFile at path for append and random read.
func Open(id uint16, path string) (*BlockFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("blockfile: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockfile: stat %s: %w", path, err)
	}
	return &BlockFile{id: id, path: path, file: f, length: info.Size()}, nil
}

// ID returns the file_id this BlockFile was created/opened with.
func (bf *BlockFile) ID() uint16 { return bf.id }

// Path returns the filesystem path backing this BlockFile.
func (bf *BlockFile) Path() string { return bf.path }

// Append writes buf to the end of the file and returns the byte offset it
// begins at and its length, per §4.2's append contract. Any I/O error
// propagates as WriteFailure to the caller (WriterPool); on error, the
// tail bytes past the last successful append are treated as undefined and
// the Directory will truncate them away on reopen (TruncateTo).
func (bf *BlockFile) Append(buf []byte) (offset uint64, nbytes uint32, err error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	offset = uint64(bf.length)
	n, err := bf.file.WriteAt(buf, bf.length)
	if err != nil {
		return 0, 0, fmt.Errorf("blockfile %d: append: %w", bf.id, err)
	}
	if n != len(buf) {
		return 0, 0, fmt.Errorf("blockfile %d: short append: wrote %d of %d bytes", bf.id, n, len(buf))
	}
	bf.length += int64(n)
	return offset, uint32(n), nil
}

// ReadAt returns the nbytes byte slice beginning at offset. Callers must
// only request ranges the Index has advertised as committed.
func (bf *BlockFile) ReadAt(offset uint64, nbytes uint32) ([]byte, error) {
	buf := make([]byte, nbytes)
	n, err := bf.file.ReadAt(buf, int64(offset))
	if err != nil {
		return nil, fmt.Errorf("blockfile %d: read at %d: %w", bf.id, offset, err)
	}
	if uint32(n) != nbytes {
		return nil, fmt.Errorf("blockfile %d: short read at %d: got %d of %d bytes", bf.id, offset, n, nbytes)
	}
	return buf, nil
}

// TruncateTo truncates the file to maxLen — called on reopen with the
// maximum (offset+nbytes) the persisted index records for this file's id,
// discarding any undefined tail left by a crash mid-append (§4.2, §8
// property 8).
func (bf *BlockFile) TruncateTo(maxLen uint64) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if err := bf.file.Truncate(int64(maxLen)); err != nil {
		return fmt.Errorf("blockfile %d: truncate to %d: %w", bf.id, maxLen, err)
	}
	bf.length = int64(maxLen)
	return nil
}

// Sync flushes the file to stable storage.
func (bf *BlockFile) Sync() error {
	if err := bf.file.Sync(); err != nil {
		return fmt.Errorf("blockfile %d: sync: %w", bf.id, err)
	}
	return nil
}

// Close closes the underlying file handle.
func (bf *BlockFile) Close() error {
	if err := bf.file.Close(); err != nil {
		return fmt.Errorf("blockfile %d: close: %w", bf.id, err)
	}
	return nil
}
