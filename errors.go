package blockfs

import (
	"errors"

	"blockfs/internal/codec"
)

// Sentinel error kinds returned across the package's public API. Wrap with
// fmt.Errorf("...: %w", ErrX) to add context while staying
// errors.Is-comparable to these.
var (
	// ErrAlreadyExists is returned by Create when the target path exists.
	ErrAlreadyExists = errors.New("blockfs: already exists")

	// ErrNotFound is returned by Open for a missing or unreadable
	// directory file.
	ErrNotFound = errors.New("blockfs: not found")

	// ErrFormatError covers magic mismatch, unsupported version, CRC
	// mismatch, and truncated directory files.
	ErrFormatError = errors.New("blockfs: format error")

	// ErrUnsupportedCodec is returned by Create and Open when the codec
	// name is absent from the registry. It is the codec registry's own
	// sentinel, so the errors those calls return match it.
	ErrUnsupportedCodec = codec.ErrUnsupportedCodec

	// ErrOutOfRange is returned when a coordinate falls outside the
	// volume's block grid.
	ErrOutOfRange = errors.New("blockfs: coordinate out of range")

	// ErrShapeMismatch is returned when a submitted block's byte length
	// matches neither the volume's nominal block shape nor, for a
	// high-edge block, its extent-truncated logical shape.
	ErrShapeMismatch = errors.New("blockfs: shape mismatch")

	// ErrDtypeMismatch names a block whose dtype differs from the
	// volume's. No call returns it: WriteBlock takes untyped bytes, so it
	// checks only their length (see ErrShapeMismatch).
	ErrDtypeMismatch = errors.New("blockfs: dtype mismatch")

	// ErrClosed is returned by WriteBlock and Flush after Close, and by
	// WriteBlock and StartWriterProcesses on a read-only opened Directory.
	ErrClosed = errors.New("blockfs: directory closed or read-only")

	// ErrAbsent names the "no committed data" result. ReadBlock never
	// returns it: it reports absence as ok=false with a nil error, since
	// absence is a result, not a failure.
	ErrAbsent = errors.New("blockfs: block absent")
)
