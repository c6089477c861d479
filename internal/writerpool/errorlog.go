package writerpool

import (
	"sync"

	"github.com/google/uuid"

	"blockfs/internal/volume"
)

// EventKind classifies one background-processing outcome recorded in an
// ErrorLog, per §7's policy that background errors accumulate rather than
// raise asynchronously at producers.
type EventKind int

const (
	// EventDuplicateWrite is recorded when a coordinate already had a
	// committed entry at submission time.
	EventDuplicateWrite EventKind = iota
	// EventWriteFailure is recorded when encode or append failed.
	EventWriteFailure
)

func (k EventKind) String() string {
	switch k {
	case EventDuplicateWrite:
		return "DuplicateWrite"
	case EventWriteFailure:
		return "WriteFailure"
	default:
		return "unknown"
	}
}

// Event is one entry in the error log: a coordinate, what happened to it,
// and (for failures) the underlying error.
type Event struct {
	Coord         volume.Coordinate
	Kind          EventKind
	Err           error
	CorrelationID uuid.UUID
}

// ErrorLog accumulates background-processing events from every worker,
// returned by Directory.Flush/Close so batch producers can detect partial
// failures at drain boundaries (§7).
type ErrorLog struct {
	mu     sync.Mutex
	events []Event
}

// NewErrorLog returns an empty, ready-to-use ErrorLog.
func NewErrorLog() *ErrorLog {
	return &ErrorLog{}
}

func (l *ErrorLog) record(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

// RecordDuplicateWrite appends a DuplicateWrite event. Exported for the
// Directory's index-update agent, which lives in a different package.
func (l *ErrorLog) RecordDuplicateWrite(coord volume.Coordinate, correlationID uuid.UUID) {
	l.record(Event{Coord: coord, Kind: EventDuplicateWrite, CorrelationID: correlationID})
}

// RecordWriteFailure appends a WriteFailure event.
func (l *ErrorLog) RecordWriteFailure(coord volume.Coordinate, err error, correlationID uuid.UUID) {
	l.record(Event{Coord: coord, Kind: EventWriteFailure, Err: err, CorrelationID: correlationID})
}

// Events returns a snapshot of every event recorded so far.
func (l *ErrorLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// CountOf returns how many events of kind k have been recorded.
func (l *ErrorLog) CountOf(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Empty reports whether no events have been recorded.
func (l *ErrorLog) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events) == 0
}
