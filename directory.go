// Package blockfs implements a file-based storage engine for large 3-D
// scalar volumes, partitioned into fixed-size blocks: a directory file
// holding a dense coordinate index, one or more append-only BlockFiles
// holding encoded block bytes, and a bounded WriterPool that lets many
// goroutines ingest disjoint blocks concurrently.
//
// Directory is the top-level orchestrator, grounded in the shape of the
// teacher's manager/meta slab-file lifecycle (create/open/flush/close over
// a set of on-disk files plus an in-memory header) generalised from a
// single fixed-width slab layout to BlockFS's variable grid/codec model.
package blockfs

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"blockfs/internal/blockfile"
	"blockfs/internal/codec"
	"blockfs/internal/index"
	"blockfs/internal/volume"
	"blockfs/internal/writerpool"
)

// CreateConfig describes a new volume's fixed parameters, passed to
// Create. Workers and QueueDepth default (0) to runtime.NumCPU() and
// writerpool.DefaultQueueDepthFactor*Workers respectively.
type CreateConfig struct {
	Path string

	X, Y, Z    uint64
	BX, BY, BZ uint32
	DType      DType

	Codec       string
	CodecParams []byte

	Workers    int
	QueueDepth int
}

// Directory is a single opened BlockFS volume: its header, its dense
// index, its BlockFiles, and — once StartWriterProcesses has been called
// — its WriterPool and index-update agent.
type Directory struct {
	id uuid.UUID

	path           string
	vol            volume.Volume
	codec          codec.Codec
	blockFilePaths []string
	blockFiles     []*blockfile.BlockFile

	idx    *index.Index
	errLog *writerpool.ErrorLog

	pool       *writerpool.Pool
	queueDepth int
	agentDone  chan struct{}

	readOnly bool
	sf       singleflight.Group

	mu      sync.Mutex
	writing bool
	closed  bool
}

// Create makes a new, empty volume at cfg.Path: a directory file with an
// all-absent index, and one BlockFile per worker. The Directory returned
// has not started its WriterPool; call StartWriterProcesses before the
// first WriteBlock.
func Create(cfg CreateConfig) (*Directory, error) {
	if _, err := os.Stat(cfg.Path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, cfg.Path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("blockfs: stat %s: %w", cfg.Path, err)
	}

	vol := volume.Volume{
		X: cfg.X, Y: cfg.Y, Z: cfg.Z,
		BX: cfg.BX, BY: cfg.BY, BZ: cfg.BZ,
		DType: cfg.DType,
	}

	c, err := codec.Resolve(cfg.Codec, cfg.CodecParams)
	if err != nil {
		return nil, err
	}

	w := cfg.Workers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	if w < 1 {
		w = 1
	}

	blockFilePaths := make([]string, w)
	blockFiles := make([]*blockfile.BlockFile, w)
	for i := 0; i < w; i++ {
		p := blockFilePath(cfg.Path, i)
		bf, err := blockfile.Create(uint16(i), p)
		if err != nil {
			for j := 0; j < i; j++ {
				blockFiles[j].Close()
				os.Remove(blockFilePaths[j])
			}
			return nil, err
		}
		blockFilePaths[i] = p
		blockFiles[i] = bf
	}

	d := &Directory{
		id:             uuid.New(),
		path:           cfg.Path,
		vol:            vol,
		codec:          c,
		blockFilePaths: blockFilePaths,
		blockFiles:     blockFiles,
		idx:            index.New(vol),
		errLog:         writerpool.NewErrorLog(),
		queueDepth:     cfg.QueueDepth,
	}

	if err := d.persist(); err != nil {
		for _, bf := range blockFiles {
			bf.Close()
		}
		for _, p := range blockFilePaths {
			os.Remove(p)
		}
		return nil, err
	}

	log.Printf(" >> created %s (%d block files)", cfg.Path, w)
	return d, nil
}

// blockFilePath derives the i-th BlockFile's path from the directory
// file's own path, following the "<path>.<i>" convention.
func blockFilePath(dirPath string, i int) string {
	return fmt.Sprintf("%s.%d", dirPath, i)
}

// Open loads an existing directory file at path read-only: it decodes the
// header and index, opens every BlockFile named in the header, and
// truncates each back to the maximum committed offset its index entries
// record, discarding any undefined tail a crash may have left. A BlockFile
// that is missing from its recorded path is looked for under the same file
// name beside the directory file, so a volume whose files were all moved
// together can still be opened and then rebased. The returned Directory
// cannot WriteBlock, and StartWriterProcesses on it returns ErrClosed.
func Open(path string) (*Directory, error) {
	buf, err := readDirectoryFile(path)
	if err != nil {
		return nil, err
	}

	h, idx, err := decodeDirectoryFile(buf)
	if err != nil {
		return nil, err
	}

	c, err := codec.Resolve(h.CodecName, h.CodecParams)
	if err != nil {
		return nil, err
	}

	blockFiles := make([]*blockfile.BlockFile, len(h.BlockFilePaths))
	for i, p := range h.BlockFilePaths {
		bf, err := blockfile.Open(uint16(i), p)
		if errors.Is(err, os.ErrNotExist) {
			sibling := filepath.Join(filepath.Dir(path), filepath.Base(p))
			if sbf, serr := blockfile.Open(uint16(i), sibling); serr == nil {
				bf, err = sbf, nil
			}
		}
		if err != nil {
			for j := 0; j < i; j++ {
				blockFiles[j].Close()
			}
			return nil, err
		}
		if err := bf.TruncateTo(idx.MaxOffsetForFile(uint16(i))); err != nil {
			for j := 0; j <= i; j++ {
				blockFiles[j].Close()
			}
			return nil, err
		}
		blockFiles[i] = bf
	}

	log.Printf(" --- opened %s read-only (%d block files)", path, len(blockFiles))
	return &Directory{
		id:             uuid.New(),
		path:           path,
		vol:            h.Volume,
		codec:          c,
		blockFilePaths: h.BlockFilePaths,
		blockFiles:     blockFiles,
		idx:            idx,
		errLog:         writerpool.NewErrorLog(),
		readOnly:       true,
	}, nil
}

// readDirectoryFile reads path, preferring it over a stray ".tmp" sibling
// left by an interrupted persist — the recovery rule for the
// tmp+fsync+rename atomic rewrite.
func readDirectoryFile(path string) ([]byte, error) {
	tmp := path + ".tmp"
	if _, err := os.Stat(path); err == nil {
		os.Remove(tmp)
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
		}
		return buf, nil
	}
	buf, err := os.ReadFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("blockfs: recovering %s from tmp: %w", path, err)
	}
	return buf, nil
}

// Volume returns the volume's fixed parameters.
func (d *Directory) Volume() Volume { return d.vol }

// BlockFileStats summarizes one BlockFile's committed usage.
type BlockFileStats struct {
	FileID uint16
	Path   string
	Bytes  uint64
}

// Stats summarizes the directory's index occupancy and per-file byte
// totals for introspection tooling (cmd/blockfs's inspect verb), in the
// spirit of the teacher's io.DumpNumbersArrayBlock diagnostic helper —
// adapted here from dumping a raw array to reporting on a volume's
// on-disk layout.
type Stats struct {
	Present uint64
	Absent  uint64
	Files   []BlockFileStats
}

func (d *Directory) Stats() Stats {
	nx, ny, nz := d.vol.GridExtent()
	var s Stats
	for z := uint64(0); z < nz; z++ {
		for y := uint64(0); y < ny; y++ {
			for x := uint64(0); x < nx; x++ {
				c := volume.Coordinate{X: uint32(x), Y: uint32(y), Z: uint32(z)}
				if _, ok := d.idx.Get(c); ok {
					s.Present++
				} else {
					s.Absent++
				}
			}
		}
	}
	for i, p := range d.blockFilePaths {
		s.Files = append(s.Files, BlockFileStats{
			FileID: uint16(i),
			Path:   p,
			Bytes:  d.idx.MaxOffsetForFile(uint16(i)),
		})
	}
	return s
}

// ID is a process-lifetime identifier for this opened Directory, used to
// tag correlation IDs in logs.
func (d *Directory) ID() uuid.UUID { return d.id }

// StartWriterProcesses builds and starts the WriterPool and the
// index-update agent that consumes its commit stream. It is a no-op, and
// an error, on a Directory opened read-only via Open.
func (d *Directory) StartWriterProcesses() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.readOnly {
		return fmt.Errorf("%w: opened read-only", ErrClosed)
	}
	if d.writing {
		return nil
	}

	// A zero queue depth is resolved by writerpool.New's default.
	d.pool = writerpool.New(d.vol, d.codec, d.blockFiles, d.queueDepth)
	d.pool.Start()

	d.agentDone = make(chan struct{})
	go d.runIndexAgent()

	d.writing = true
	return nil
}

// runIndexAgent is the single consumer of the WriterPool's commit channel:
// it applies committed entries to the index, records duplicate/failure
// events to the error log, and acknowledges Flush barriers. It is the
// only writer to d.idx while the pool is running, so Index.Put's internal
// locking only has to arbitrate with concurrent Get callers, never with
// another Put.
func (d *Directory) runIndexAgent() {
	defer close(d.agentDone)
	for c := range d.pool.Commits() {
		switch c.Kind {
		case writerpool.CommitCommitted:
			if err := d.idx.Put(c.Coord, c.Entry); err != nil {
				d.errLog.RecordWriteFailure(c.Coord, err, c.CorrelationID)
			}
		case writerpool.CommitDuplicate:
			d.errLog.RecordDuplicateWrite(c.Coord, c.CorrelationID)
		case writerpool.CommitFailed:
			d.errLog.RecordWriteFailure(c.Coord, c.Err, c.CorrelationID)
		case writerpool.CommitBarrier:
			if c.Ack != nil {
				c.Ack <- struct{}{}
			}
		}
	}
}

// WriteBlock submits raw for coordinate c to the WriterPool. raw may be
// either the volume's full nominal-shape block, or the (possibly smaller)
// logical shape at a high-extent edge — zero-padded into nominal shape
// before encoding. WriteBlock
// returns once the submission is queued, not once it commits; call Flush
// to wait for outstanding submissions and learn of any failures.
func (d *Directory) WriteBlock(c Coordinate, raw []byte) error {
	d.mu.Lock()
	writing, closed := d.writing, d.closed
	d.mu.Unlock()
	if d.readOnly || !writing || closed {
		return fmt.Errorf("%w: writer pool not running", ErrClosed)
	}
	if !d.vol.InRange(c) {
		return fmt.Errorf("%w: %v", ErrOutOfRange, c)
	}

	block, err := d.buildNominalBlock(c, raw)
	if err != nil {
		return err
	}

	d.pool.Submit(c, block)
	return nil
}

// buildNominalBlock validates raw's length against either the nominal or
// the extent-truncated logical shape for c, zero-padding the latter into
// a full nominal-shape buffer.
func (d *Directory) buildNominalBlock(c Coordinate, raw []byte) ([]byte, error) {
	nominal := d.vol.NominalByteSize()
	if uint64(len(raw)) == nominal {
		return raw, nil
	}

	elem := uint64(d.vol.DType.Size())
	bz, by, bx := d.vol.LogicalShape(c)
	logical := uint64(bz) * uint64(by) * uint64(bx) * elem
	if uint64(len(raw)) != logical {
		return nil, fmt.Errorf("%w: got %d bytes, want %d (nominal) or %d (edge-truncated)",
			ErrShapeMismatch, len(raw), nominal, logical)
	}
	out := make([]byte, nominal)
	rowBytes := uint64(bx) * elem
	planeStrideNominal := uint64(d.vol.BY) * uint64(d.vol.BX) * elem
	rowStrideNominal := uint64(d.vol.BX) * elem
	for z := uint32(0); z < bz; z++ {
		for y := uint32(0); y < by; y++ {
			src := (uint64(z)*uint64(by) + uint64(y)) * rowBytes
			dst := uint64(z)*planeStrideNominal + uint64(y)*rowStrideNominal
			copy(out[dst:dst+rowBytes], raw[src:src+rowBytes])
		}
	}
	return out, nil
}

// ReadBlock returns the decoded bytes for coordinate c, or ok=false if no
// write has committed for it (the absent sentinel — not an error).
// Concurrent ReadBlock calls for the same coordinate are coalesced onto a
// single decode via singleflight, matching the teacher's use of the same
// package for duplicate-suppression on its own hot read path.
func (d *Directory) ReadBlock(c Coordinate) (raw []byte, ok bool, err error) {
	if !d.vol.InRange(c) {
		return nil, false, fmt.Errorf("%w: %v", ErrOutOfRange, c)
	}

	entry, present := d.idx.Get(c)
	if !present {
		return nil, false, nil
	}

	fileID := entry.FileID
	if int(fileID) >= len(d.blockFiles) {
		return nil, false, fmt.Errorf("%w: entry references unknown file_id %d", ErrFormatError, fileID)
	}
	bf := d.blockFiles[fileID]

	key := fmt.Sprintf("%d:%d:%d", fileID, entry.Offset, entry.NBytes)
	v, err, _ := d.sf.Do(key, func() (interface{}, error) {
		encoded, err := bf.ReadAt(entry.Offset, entry.NBytes)
		if err != nil {
			return nil, err
		}
		return d.codec.Decode(encoded, d.vol)
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), true, nil
}

// Flush forces every submission accepted so far to commit or fail, then
// atomically rewrites the directory file with the current index, and
// returns the Directory's ErrorLog. The log is the live one, not a copy:
// events recorded after Flush returns are appended to it too. Flush does
// not stop the WriterPool; writes may continue after Flush returns. After
// Close, Flush returns ErrClosed.
func (d *Directory) Flush() (*ErrorLog, error) {
	d.mu.Lock()
	writing, closed := d.writing, d.closed
	d.mu.Unlock()
	if closed {
		return d.errLog, ErrClosed
	}
	if writing {
		ack := d.pool.Barrier()
		for i := 0; i < d.pool.WorkerCount(); i++ {
			<-ack
		}
	}

	if err := d.persist(); err != nil {
		return d.errLog, fmt.Errorf("blockfs: flush: %w", err)
	}
	return d.errLog, nil
}

// Close stops the WriterPool (draining every worker's queue and joining
// them), waits for the index-update agent to finish applying the final
// commits, persists the directory file one last time, and releases every
// BlockFile. Close is idempotent.
func (d *Directory) Close() (*ErrorLog, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return d.errLog, nil
	}
	d.closed = true
	writing := d.writing
	d.mu.Unlock()

	if writing {
		if err := d.pool.Close(); err != nil {
			return d.errLog, fmt.Errorf("blockfs: close: writer pool: %w", err)
		}
		<-d.agentDone
	}

	persistErr := d.persist()

	for _, bf := range d.blockFiles {
		if err := bf.Close(); err != nil && persistErr == nil {
			persistErr = err
		}
	}

	if persistErr != nil {
		return d.errLog, fmt.Errorf("blockfs: close: %w", persistErr)
	}
	return d.errLog, nil
}

// persist atomically rewrites the directory file at d.path with the
// current header and index.
func (d *Directory) persist() error {
	h := directoryHeader{
		Version:        CurrentVersion,
		Volume:         d.vol,
		CodecName:      d.codec.Name(),
		CodecParams:    d.codec.Params(),
		BlockFilePaths: d.blockFilePaths,
	}
	return writeDirectoryFileAtomic(d.path, h, d.idx)
}

// writeDirectoryFileAtomic encodes h and idx and writes them to path via
// "<path>.tmp", fsync, rename over path — the atomic-rewrite rule shared
// by persist and Rebase/CopyTo.
func writeDirectoryFileAtomic(path string, h directoryHeader, idx *index.Index) error {
	buf := encodeDirectoryFile(h, idx)

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("blockfs: persist: create %s: %w", tmp, err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("blockfs: persist: write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("blockfs: persist: fsync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("blockfs: persist: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("blockfs: persist: rename %s to %s: %w", tmp, path, err)
	}
	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}
