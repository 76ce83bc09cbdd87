package rangestream

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/rangestream/internal/sizing"
)

// errStrategyNotApplicable signals that neither optimized strategy fits the
// current read, not that the fetch itself failed. It never escapes this
// file.
var errStrategyNotApplicable = errors.New("rangestream: no optimized strategy applies")

// refill replenishes the window once it is fully consumed. The first
// refill of a stream's life gets one shot at an optimized strategy before
// permanently falling back to the one-block strategy for the rest of the
// stream's life; every later refill goes straight to one-block. requestedLen
// is the full length of the caller's original read request, used by
// oneBlockRefill to decide whether this refill looks sequential.
//
// Must be called with s.mu held and s.w.available() == 0.
func (s *PositionedStream) refill(requestedLen int) error {
	if s.w.fCursor >= s.size {
		return io.EOF
	}

	if s.w.firstRead {
		s.w.firstRead = false
		if err := s.optimizedRefill(); err == nil {
			return nil
		} else if errors.Is(err, ErrNotFound) {
			return err
		} else if !errors.Is(err, errStrategyNotApplicable) {
			s.logger.Debug("optimized refill fell back", "path", s.path, "err", err)
		}
	}

	return s.oneBlockRefill(s.w.fCursor, requestedLen)
}

// optimizedRefill chooses between the full-file and tail-block strategies
// based on the object's size and the stream's position, and attempts it.
// errStrategyNotApplicable means neither strategy's preconditions held, or
// the fetched block turned out not to contain target; any other error means
// the chosen strategy was attempted and failed.
func (s *PositionedStream) optimizedRefill() error {
	target := s.w.fCursor

	switch {
	case s.cfg.smallFilesComplete && s.size <= int64(len(s.w.buf)):
		return s.attemptOptimized(0, s.size, target)
	case s.cfg.footerOpt && target >= sizing.Max(0, s.size-FooterSize):
		lastBlockStart := sizing.Max(0, s.size-int64(len(s.w.buf)))
		actualLen := sizing.Min(int64(len(s.w.buf)), s.size)
		return s.attemptOptimized(lastBlockStart, actualLen, target)
	default:
		return errStrategyNotApplicable
	}
}

// attemptOptimized fetches [start, start+length) into the window, up to
// MaxOptimizedReadAttempts direct reads accumulating into buffer[limit..],
// positioning the window so that target falls at the returned window's
// cursor. On failure, or if the accumulated bytes still can't satisfy
// target, the window is left exactly as it was found.
func (s *PositionedStream) attemptOptimized(start, length, target int64) error {
	snap := s.w.snapshot()

	lengthInt, err := sizing.ToInt(length, ErrIO)
	if err != nil {
		return err
	}

	s.w.fCursor = start
	s.w.limit = 0

	var ioErr error
	for attempt := 0; attempt < MaxOptimizedReadAttempts && s.w.fCursor < s.size; attempt++ {
		n, ferr := s.rr.ReadRange(s.w.fCursor, s.w.buf[s.w.limit:lengthInt])
		if ferr != nil {
			if !errors.Is(ferr, io.EOF) {
				ioErr = ferr
			}
			break
		}
		if n <= 0 {
			break
		}
		s.w.limit += n
		s.w.fCursor += int64(n)
		s.w.resumePoint = s.w.fCursor
	}

	if ioErr != nil {
		s.w.restore(snap)
		return ioErr
	}
	if s.w.limit < 1 {
		s.w.restore(snap)
		return fmt.Errorf("%w: optimized refill read no bytes", ErrIO)
	}

	bCursor := int(target - start)
	if s.w.fCursor < s.size && bCursor > s.w.limit {
		// Attempts exhausted before target's data arrived; let one-block
		// satisfy the caller's original request instead.
		s.w.restore(snap)
		return fmt.Errorf("%w: optimized refill could not satisfy request", ErrIO)
	}
	if bCursor < 0 || bCursor > s.w.limit {
		// Target lies outside the fetched block. This happens in the
		// tail-block strategy when the buffer is smaller than FooterSize and
		// target precedes the last block; never hand back a corrupt cursor.
		s.w.restore(snap)
		return errStrategyNotApplicable
	}

	s.w.bCursor = bCursor
	return nil
}

// oneBlockRefill fetches a single fixed-size block starting at start. A
// refill is treated as sequential — consulting the read-ahead pool and
// enqueuing the next block — when there has been no prior refill, start
// resumes exactly where the previous refill ended, or the caller's
// destination is itself at least buffer_size long. Otherwise read-ahead is
// bypassed entirely in favor of a direct fetch.
func (s *PositionedStream) oneBlockRefill(start int64, requestedLen int) error {
	if start >= s.size {
		return io.EOF
	}

	length := sizing.Min(int64(len(s.w.buf)), s.size-start)
	lengthInt, err := sizing.ToInt(length, ErrIO)
	if err != nil {
		return err
	}

	sequential := s.w.resumePoint < 0 || start == s.w.resumePoint || requestedLen >= len(s.w.buf)

	var n int
	if sequential {
		if n, err = s.pool.TryServe(s.id, start, lengthInt, s.w.buf[:lengthInt]); err != nil {
			return err
		}
	}
	if n == 0 {
		if n, err = s.rr.ReadRange(start, s.w.buf[:lengthInt]); err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return err
		}
	}

	s.w.fCursor = start + int64(n)
	s.w.limit = n
	s.w.bCursor = 0
	s.w.resumePoint = s.w.fCursor

	if sequential {
		s.enqueueNextBlock(s.w.fCursor)
	}
	return nil
}

// enqueueNextBlock asks the read-ahead pool to prefetch the block that
// would satisfy the next sequential refill, a no-op once next reaches EOF.
func (s *PositionedStream) enqueueNextBlock(next int64) {
	if next >= s.size {
		return
	}
	length := sizing.Min(int64(len(s.w.buf)), s.size-next)
	lengthInt, err := sizing.ToInt(length, ErrIO)
	if err != nil {
		return
	}
	s.pool.Enqueue(s.id, s, next, lengthInt)
}
