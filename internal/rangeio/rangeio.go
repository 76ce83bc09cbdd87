// Package rangeio adapts an external positioned range-read client to the
// fixed RangeReader contract used by the stream and read-ahead layers.
//
// Backend is the out-of-scope collaborator: authentication, ETag
// negotiation, and retry policy all live on the other side of that
// interface. Reader's only job is to enforce the preconditions and the
// NotFound/IOError taxonomy described by the spec.
package rangeio

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// Backend performs a single positioned range read against a remote object.
// Implementations are supplied by the caller (e.g. an HTTP client wrapper,
// a cloud SDK download-range call) and are responsible for their own
// authentication and retries.
//
// ReadRange must fill dst as completely as the remote object allows,
// starting at position. A short read is only valid at end-of-object.
// Implementations signal a missing object with an error wrapping
// ErrNotFound; any other failure is treated as a generic transport error.
type Backend interface {
	ReadRange(path string, position int64, dst []byte, etag string) (int, error)
}

// Sentinel errors surfaced by Reader.
var (
	// ErrNotFound indicates the backend reported the object missing (e.g. HTTP 404).
	ErrNotFound = errors.New("rangeio: object not found")

	// ErrIO covers any other transport or protocol failure.
	ErrIO = errors.New("rangeio: transport failure")
)

// Reader issues single positioned range reads against one open object,
// translating Backend's errors into the NotFound/IOError taxonomy and
// applying the out-of-band-append ETag override.
type Reader struct {
	backend       Backend
	path          string
	contentLength int64
	etag          string
	tolerateOOB   bool
}

// New returns a Reader bound to path, sized at contentLength, pinned to
// etag unless tolerateOOB requests the wildcard ETag on every read.
func New(backend Backend, path string, contentLength int64, etag string, tolerateOOB bool) *Reader {
	return &Reader{
		backend:       backend,
		path:          path,
		contentLength: contentLength,
		etag:          etag,
		tolerateOOB:   tolerateOOB,
	}
}

// ReadRange reads up to len(dst) bytes starting at position.
//
// It returns (0, io.EOF) once position has reached or passed the end of
// the object — the Go-idiomatic stand-in for the spec's "-1" sentinel.
func (r *Reader) ReadRange(position int64, dst []byte) (int, error) {
	if position < 0 {
		return 0, fmt.Errorf("%w: negative position %d", ErrIO, position)
	}
	if len(dst) == 0 {
		return 0, nil
	}
	if position >= r.contentLength {
		return 0, io.EOF
	}

	etag := r.etag
	if r.tolerateOOB {
		etag = "*"
	}

	n, err := r.backend.ReadRange(r.path, position, dst, etag)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, r.path)
		}
		return 0, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if n < 0 {
		return 0, io.EOF
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: bytes received %d exceeds max addressable size", ErrIO, n)
	}
	return n, nil
}

// ContentLength returns the size captured at open.
func (r *Reader) ContentLength() int64 { return r.contentLength }
