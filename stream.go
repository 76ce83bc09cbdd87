// Package rangestream implements a positioned, buffered, read-only byte
// stream over an immutable remote object. A PositionedStream presents the
// familiar io.Reader/io.Seeker surface while internally dispatching to one
// of several refill strategies chosen from the shape of the first read:
// small objects are inlined whole, large columnar files have their trailing
// footer inlined, and everything else is served one fixed-size block at a
// time, with sequential access additionally fed by a shared read-ahead pool.
package rangestream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/meigma/rangestream/internal/rangeio"
	"github.com/meigma/rangestream/internal/readahead"
)

var (
	defaultPoolOnce sync.Once
	defaultPool     *readahead.Pool
)

func sharedPool(queueDepth int) *readahead.Pool {
	defaultPoolOnce.Do(func() {
		depth := resolveQueueDepth(queueDepth)
		defaultPool = readahead.New(depth, depth*4)
	})
	return defaultPool
}

// streamState names the Fresh -> Buffered -> Closed lifecycle. Only the
// transition to stateClosed is recorded in PositionedStream.state; whether a
// stream is still fresh is carried by window.firstRead.
type streamState int32

const (
	stateFresh streamState = iota
	stateBuffered
	stateClosed
)

// window is the stream's in-memory buffer, addressed by the cursor
// invariant f_cursor - limit + b_cursor == get_pos(). fCursor is the
// object-relative offset of the byte one past the end of the buffered
// region; limit is the number of valid bytes currently in buf; bCursor is
// the read offset into buf.
type window struct {
	buf       []byte
	fCursor   int64
	limit     int
	bCursor   int
	firstRead bool

	// resumePoint is the object offset one past the end of the last
	// completed refill (-1 if no refill has happened yet). A later refill
	// starting exactly here is a resumed sequential read, per §4.3.1 step 3.
	resumePoint int64
}

func newWindow(bufferSize int) window {
	return window{
		buf:         make([]byte, bufferSize),
		firstRead:   true,
		resumePoint: -1,
	}
}

func (w *window) pos() int64 {
	return w.fCursor - int64(w.limit) + int64(w.bCursor)
}

func (w *window) available() int {
	return w.limit - w.bCursor
}

func (w *window) snapshot() window {
	return *w
}

func (w *window) restore(s window) {
	*w = s
}

// PositionedStream is a buffered, seekable, read-only view over a single
// immutable remote object.
type PositionedStream struct {
	id     uint64
	path   string
	size   int64
	etag   string
	cfg    config
	rr     *rangeio.Reader
	pool   *readahead.Pool
	logger *slog.Logger

	mu    sync.Mutex
	state streamState
	w     window
}

// Open binds a PositionedStream to the object at path, sized contentLength,
// reading through backend. The ETag captured at open (via WithETag) pins
// subsequent reads to that version unless WithToleranceOOBAppends is set.
func Open(backend rangeio.Backend, path string, contentLength int64, opts ...Option) (*PositionedStream, error) {
	if contentLength < 0 {
		return nil, fmt.Errorf("%w: negative content length %d", ErrIO, contentLength)
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	pool := cfg.pool
	if pool == nil {
		pool = sharedPool(cfg.readAheadDepth)
	}

	s := &PositionedStream{
		id:     nextStreamID(),
		path:   path,
		size:   contentLength,
		etag:   cfg.etag,
		cfg:    cfg,
		rr:     rangeio.New(backend, path, contentLength, cfg.etag, cfg.tolerateOOBAppends),
		pool:   pool,
		logger: cfg.logger,
		w:      newWindow(cfg.bufferSize),
	}
	return s, nil
}

// FetchRange satisfies readahead.Fetcher so the stream can be used directly
// as the backing fetch for its own prefetch requests.
func (s *PositionedStream) FetchRange(offset int64, dst []byte) (int, error) {
	n, err := s.rr.ReadRange(offset, dst)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

// Size returns the object's content length captured at open.
func (s *PositionedStream) Size() int64 { return s.size }

// Position reports the stream's current logical offset.
func (s *PositionedStream) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.pos()
}

// Available reports how many bytes remain between the current position and
// the end of the object.
func (s *PositionedStream) Available() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return 0
	}
	return s.size - s.w.pos()
}

// Read implements io.Reader. It returns (0, io.EOF) once the stream is
// positioned at or past the end of the object, rather than the spec's -1
// sentinel.
func (s *PositionedStream) Read(p []byte) (int, error) {
	return s.ReadInto(p, 0, len(p))
}

// ReadByte implements io.ByteReader.
func (s *PositionedStream) ReadByte() (byte, error) {
	var b [1]byte
	n, err := s.ReadInto(b[:], 0, 1)
	if n == 1 {
		return b[0], nil
	}
	return 0, err
}

// ReadInto reads up to length bytes into dst starting at off, the direct
// analogue of the spec's read(dst, off, len). Checks run closed-state first,
// then bounds: a closed stream reports ErrStreamClosed even when off/length
// also violate dst's bounds.
func (s *PositionedStream) ReadInto(dst []byte, off, length int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return 0, ErrStreamClosed
	}
	if off < 0 || length < 0 || off+length > len(dst) {
		return 0, ErrIndexOutOfBounds
	}
	if length == 0 {
		return 0, nil
	}
	if s.w.pos() >= s.size {
		return 0, io.EOF
	}

	total := 0
	for total < length {
		if s.w.available() == 0 {
			if err := s.refill(length); err != nil {
				if total > 0 {
					return total, nil
				}
				return 0, err
			}
			if s.w.available() == 0 {
				break
			}
		}
		n := copy(dst[off+total:off+length], s.w.buf[s.w.bCursor:s.w.limit])
		s.w.bCursor += n
		total += n
	}
	return total, nil
}

// Seek implements io.Seeker. SeekCurrent and SeekEnd are resolved against
// the current position and the object's content length respectively.
func (s *PositionedStream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return 0, ErrStreamClosed
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.w.pos() + offset
	case io.SeekEnd:
		target = s.size + offset
	default:
		return 0, fmt.Errorf("%w: invalid whence %d", ErrUnsupported, whence)
	}

	if target < 0 {
		return 0, ErrNegativeSeek
	}
	if target > s.size {
		return 0, ErrPastEOF
	}

	s.seekTo(target)
	return target, nil
}

// Skip advances the stream by n bytes and returns the number of bytes
// actually skipped. The target position is clamped to [0, Size()] rather
// than rejected, except that skipping forward while already at EOF signals
// PastEOF.
func (s *PositionedStream) Skip(n int64) (int64, error) {
	before := s.Position()
	if before >= s.Size() && n > 0 {
		return 0, ErrPastEOF
	}

	target := before + n
	if target < 0 {
		target = 0
	}
	if target > s.Size() {
		target = s.Size()
	}

	after, err := s.Seek(target, io.SeekStart)
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

// seekTo repositions the window, reusing the buffered region when target
// already falls inside it and invalidating it otherwise. Must be called
// with s.mu held.
func (s *PositionedStream) seekTo(target int64) {
	lo := s.w.fCursor - int64(s.w.limit)
	if target >= lo && target <= s.w.fCursor {
		s.w.bCursor = int(target - lo)
		return
	}
	s.w.fCursor = target
	s.w.limit = 0
	s.w.bCursor = 0
}

// Mark is unsupported; PositionedStream has no mark/reset facility.
func (s *PositionedStream) Mark(_ int) error { return ErrUnsupported }

// Reset is unsupported; PositionedStream has no mark/reset facility.
func (s *PositionedStream) Reset() error { return ErrUnsupported }

// SeekToNewSource always reports false: a PositionedStream has exactly one backing source.
func (s *PositionedStream) SeekToNewSource(int64) bool { return false }

// Close releases the stream's buffer and evicts any outstanding read-ahead
// entries. It is idempotent.
func (s *PositionedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return nil
	}
	s.state = stateClosed
	s.w.buf = nil
	s.pool.Evict(s.id)
	s.logger.Debug("stream closed", "path", s.path, "id", s.id)
	return nil
}
