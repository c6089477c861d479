// Package writerpool implements the bounded set of worker agents described
// in spec §4.4: each owns exactly one BlockFile, receives
// (coordinate, raw block) submissions routed by a stable coordinate hash,
// and reports committed index entries on a single-consumer commit
// channel. The routing guarantees exactly one worker ever writes a given
// coordinate, so there is no contention on duplicate detection or on the
// owning BlockFile — only the commit channel crosses goroutines.
//
// The worker loop and its channel-draining shutdown are grounded in the
// teacher's manager/manager_worker_processor.go and
// manager/executor/chunk_thread_processor.go (range over a tasks channel,
// per-thread status, color-coded log lines); the hash-routing-to-exactly-
// one-owner idea is this package's own, since the spec requires it.
package writerpool

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"blockfs/internal/blockfile"
	"blockfs/internal/codec"
	"blockfs/internal/index"
	"blockfs/internal/volume"
)

// DefaultQueueDepthFactor is the default submission-queue capacity per
// worker, expressed as a multiple of the worker count: capacity = factor*W
// (§4.4).
const DefaultQueueDepthFactor = 4

// submission is one producer-supplied block in flight to its owning
// worker, or a flush barrier.
type submission struct {
	coord   volume.Coordinate
	raw     []byte
	barrier bool
	ack     chan<- struct{}
}

// CommitKind classifies the outcome of one submission once its owning
// worker has finished with it — the §4.4 state machine's three terminal
// states.
type CommitKind int

const (
	CommitCommitted CommitKind = iota
	CommitDuplicate
	CommitFailed
	// CommitBarrier is not a submission outcome — it is how Flush learns
	// that every commit a worker emitted before the barrier has already
	// been observed by the single consumer of this channel, since a
	// single goroutine's sends preserve order. The consumer must
	// acknowledge it by sending on Ack.
	CommitBarrier
)

// Commit is what a worker sends up the single commit channel for one
// submission.
type Commit struct {
	Coord         volume.Coordinate
	Kind          CommitKind
	Entry         index.Entry
	Err           error
	CorrelationID uuid.UUID
	Ack           chan<- struct{}
}

// Pool is the bounded WriterPool: W workers, each owning one BlockFile,
// fed by W independent bounded channels and draining onto one shared
// commit channel.
type Pool struct {
	vol     volume.Volume
	codec   codec.Codec
	workers []*worker
	commits chan Commit

	wg      errgroup.Group
	started bool
	mu      sync.Mutex
}

// New builds a Pool over files (one BlockFile per worker, ownership by
// index) that will encode with c. queueDepth, if 0, defaults to
// DefaultQueueDepthFactor*len(files).
func New(vol volume.Volume, c codec.Codec, files []*blockfile.BlockFile, queueDepth int) *Pool {
	w := len(files)
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepthFactor * w
	}
	p := &Pool{
		vol:     vol,
		codec:   c,
		workers: make([]*worker, w),
		commits: make(chan Commit, queueDepth),
	}
	for i, f := range files {
		p.workers[i] = newWorker(i, f, vol, c, queueDepth)
	}
	return p
}

// Start launches one goroutine per worker. Submissions made before Start
// wait in their worker's queue, and Submit blocks once that queue is full,
// until the workers run — Directory.StartWriterProcesses is the only
// caller.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for _, w := range p.workers {
		w := w
		p.wg.Go(func() error {
			w.run(p.commits)
			return nil
		})
	}
}

// Commits returns the single-consumer channel the Directory's
// index-update agent ranges over.
func (p *Pool) Commits() <-chan Commit {
	return p.commits
}

// WorkerCount returns W.
func (p *Pool) WorkerCount() int { return len(p.workers) }

// routeHash is FNV-1a over the 12-byte little-endian (gx,gy,gz) triple, a
// stable, order-independent hash per §4.4.
func routeHash(c volume.Coordinate) uint32 {
	var b [12]byte
	putU32(b[0:4], c.X)
	putU32(b[4:8], c.Y)
	putU32(b[8:12], c.Z)
	h := fnv.New32a()
	h.Write(b[:])
	return h.Sum32()
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Barrier enqueues a flush marker onto every worker's queue and returns a
// channel that receives one acknowledgement per worker once the
// Directory's index-update agent has processed that worker's marker —
// which, because channel sends from one goroutine preserve order, can only
// happen after every commit that worker emitted ahead of the marker has
// already been applied. Flush uses this to implement §5's "every
// submission accepted before flush has committed or failed" guarantee
// without stopping the pool.
func (p *Pool) Barrier() <-chan struct{} {
	ack := make(chan struct{}, len(p.workers))
	for _, w := range p.workers {
		w.submit(submission{barrier: true, ack: ack})
	}
	return ack
}

// Submit routes (coord, raw) to its owning worker, blocking the caller
// when that worker's queue is full — the backpressure §4.4/§5 specify.
// Submit returns once the submission is accepted into the queue, not once
// it commits.
func (p *Pool) Submit(coord volume.Coordinate, raw []byte) {
	idx := routeHash(coord) % uint32(len(p.workers))
	p.workers[idx].submit(submission{coord: coord, raw: raw})
}

// Close stops accepting new work, drains every worker's queue, joins them,
// then closes the commit channel so the Directory's index-update agent can
// observe completion. It blocks until every submission accepted before the
// call has either committed, been marked duplicate, or failed (§5).
func (p *Pool) Close() error {
	for _, w := range p.workers {
		close(w.in)
	}
	err := p.wg.Wait()
	close(p.commits)
	return err
}

// worker owns exactly one BlockFile and a bounded inbound channel. It
// tracks, locally and without locking, which coordinates it has already
// committed — safe because routeHash guarantees it is the only worker
// that will ever see a given coordinate.
type worker struct {
	id        int
	file      *blockfile.BlockFile
	vol       volume.Volume
	codec     codec.Codec
	in        chan submission
	committed map[volume.Coordinate]struct{}
}

func newWorker(id int, f *blockfile.BlockFile, vol volume.Volume, c codec.Codec, queueDepth int) *worker {
	return &worker{
		id:        id,
		file:      f,
		vol:       vol,
		codec:     c,
		in:        make(chan submission, queueDepth),
		committed: make(map[volume.Coordinate]struct{}),
	}
}

func (w *worker) submit(s submission) {
	w.in <- s
}

func (w *worker) run(commits chan<- Commit) {
	slog.Info("writerpool worker started", "worker_id", w.id)
	defer slog.Info("writerpool worker stopped", "worker_id", w.id)

	for s := range w.in {
		if s.barrier {
			commits <- Commit{Kind: CommitBarrier, Ack: s.ack}
			continue
		}
		commits <- w.process(s)
	}
}

func (w *worker) process(s submission) Commit {
	correlationID := uuid.New()

	if _, dup := w.committed[s.coord]; dup {
		color.Yellow("blockfs: worker %d: duplicate write for %v dropped", w.id, s.coord)
		return Commit{Coord: s.coord, Kind: CommitDuplicate, CorrelationID: correlationID}
	}

	encoded, err := encodeBlock(w.codec, s.raw, w.vol)
	if err != nil {
		color.Red("blockfs: worker %d: encode failed for %v: %s", w.id, s.coord, err)
		return Commit{Coord: s.coord, Kind: CommitFailed, Err: fmt.Errorf("encode: %w", err), CorrelationID: correlationID}
	}

	offset, nbytes, err := w.file.Append(encoded)
	if err != nil {
		color.Red("blockfs: worker %d: append failed for %v: %s", w.id, s.coord, err)
		return Commit{Coord: s.coord, Kind: CommitFailed, Err: fmt.Errorf("append: %w", err), CorrelationID: correlationID}
	}

	w.committed[s.coord] = struct{}{}
	return Commit{
		Coord: s.coord,
		Kind:  CommitCommitted,
		Entry: index.Entry{FileID: w.file.ID(), Offset: offset, NBytes: nbytes},
		CorrelationID: correlationID,
	}
}

// encodeBlock dispatches to EncodeBlock for codecs that need the block
// shape (the per-z-slice image codecs), or Encode otherwise.
func encodeBlock(c codec.Codec, raw []byte, vol volume.Volume) ([]byte, error) {
	if bc, ok := c.(codec.BlockAwareCodec); ok {
		return bc.EncodeBlock(raw, vol)
	}
	return c.Encode(raw)
}
