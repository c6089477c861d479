package blockfs

import (
	"blockfs/internal/volume"
	"blockfs/internal/writerpool"
)

// DType identifies a volume's element type.
type DType = volume.DType

const (
	U8  = volume.U8
	U16 = volume.U16
	U32 = volume.U32
	U64 = volume.U64
	I8  = volume.I8
	I16 = volume.I16
	I32 = volume.I32
	I64 = volume.I64
	F32 = volume.F32
	F64 = volume.F64
)

// Coordinate is an integer block-grid triple (gx, gy, gz).
type Coordinate = volume.Coordinate

// Volume carries a directory's immutable global parameters: extent,
// block extent, and element type.
type Volume = volume.Volume

// EventKind classifies a background-processing outcome recorded in an
// ErrorLog.
type EventKind = writerpool.EventKind

const (
	EventDuplicateWrite = writerpool.EventDuplicateWrite
	EventWriteFailure   = writerpool.EventWriteFailure
)

// Event is one ErrorLog entry.
type Event = writerpool.Event

// ErrorLog accumulates DuplicateWrite/WriteFailure events from background
// WriterPool processing, returned by Flush and Close.
type ErrorLog = writerpool.ErrorLog
