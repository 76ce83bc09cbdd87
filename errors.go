package rangestream

import (
	"errors"

	"github.com/meigma/rangestream/internal/rangeio"
)

// Sentinel errors surfaced to callers. Every operation documented in the
// spec's error taxonomy maps to exactly one of these, so callers can branch
// with errors.Is regardless of which layer produced the failure.
var (
	// ErrStreamClosed is returned by any operation (other than a second
	// Close) performed on a stream after Close has completed.
	ErrStreamClosed = errors.New("rangestream: stream closed")

	// ErrIndexOutOfBounds is returned when a ReadInto destination slice and
	// offset/length triple violates off+length <= len(dst).
	ErrIndexOutOfBounds = errors.New("rangestream: index out of bounds")

	// ErrNegativeSeek is returned by Seek when the target position is
	// negative. Skip clamps such targets to zero instead.
	ErrNegativeSeek = errors.New("rangestream: negative seek position")

	// ErrPastEOF is returned by Seek when the target position exceeds the
	// object's content length, and by Skip when skipping forward from a
	// position already at the end of the object.
	ErrPastEOF = errors.New("rangestream: seek past end of stream")

	// ErrNotFound is returned when the backing object has vanished.
	ErrNotFound = rangeio.ErrNotFound

	// ErrIO covers any other transport or protocol failure from the
	// one-block strategy (optimised-path I/O errors are recovered locally
	// and never reach the caller as ErrIO).
	ErrIO = rangeio.ErrIO

	// ErrUnsupported is returned by Mark and Reset.
	ErrUnsupported = errors.New("rangestream: unsupported operation")
)
