// Package readahead implements the bounded, process-wide prefetch pool
// shared by every open PositionedStream.
//
// The pool owns a fixed set of worker slots (queue_depth) and a bounded
// cache of completed prefetch buffers keyed by (stream identity, offset,
// length). Enqueue is fire-and-forget: it starts a worker if a slot is
// free, dedupes against an identical in-flight or cached request, and
// silently drops the request if the pool is saturated. TryServe is the
// only synchronous, blocking-capable entry point, and only blocks briefly
// waiting on an in-flight fetch it already owns.
package readahead

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// inFlightWait bounds how long TryServe waits for a prefetch that is
// already running before giving up and reporting a miss.
const inFlightWait = 20 * time.Millisecond

// Fetcher performs the single positioned range read backing a prefetch.
// A PositionedStream implements Fetcher against its own path and ETag.
type Fetcher interface {
	FetchRange(offset int64, dst []byte) (int, error)
}

type status int32

const (
	statusQueued status = iota
	statusRunning
	statusDone
	statusFailed
)

type key struct {
	stream uint64
	offset int64
	length int
}

type cacheEntry struct {
	key  key
	done chan struct{}

	mu     sync.Mutex
	status status
	data   []byte
	n      int
	err    error
}

func (e *cacheEntry) finish(n int, data []byte, err error) {
	e.mu.Lock()
	e.n = n
	e.data = data
	e.err = err
	if err != nil {
		e.status = statusFailed
	} else {
		e.status = statusDone
	}
	e.mu.Unlock()
	close(e.done)
}

func (e *cacheEntry) snapshot() (status, int, []byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.n, e.data, e.err
}

// Pool is the bounded worker set and prefetch cache.
type Pool struct {
	sem    *semaphore.Weighted
	maxCap int

	mu      sync.Mutex
	entries map[key]*cacheEntry
	order   []key
}

// New creates a Pool with the given worker slot count and maximum number
// of cached prefetch entries (in-flight plus completed).
func New(queueDepth, maxCachedBuffers int) *Pool {
	if queueDepth <= 0 {
		queueDepth = 1
	}
	if maxCachedBuffers <= 0 {
		maxCachedBuffers = queueDepth * 4
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(queueDepth)),
		maxCap:  maxCachedBuffers,
		entries: make(map[key]*cacheEntry),
	}
}

// Enqueue starts a prefetch of length bytes at offset for streamID, unless
// an identical request is already in flight or cached, or every worker
// slot is busy, in which case the call is a silent no-op.
func (p *Pool) Enqueue(streamID uint64, f Fetcher, offset int64, length int) {
	if length <= 0 {
		return
	}
	k := key{stream: streamID, offset: offset, length: length}

	p.mu.Lock()
	if _, exists := p.entries[k]; exists {
		p.mu.Unlock()
		return
	}
	if !p.sem.TryAcquire(1) {
		p.mu.Unlock()
		return
	}
	e := &cacheEntry{key: k, done: make(chan struct{}), status: statusQueued}
	p.entries[k] = e
	p.order = append(p.order, k)
	p.evictLocked()
	p.mu.Unlock()

	go p.run(e, f)
}

func (p *Pool) run(e *cacheEntry, f Fetcher) {
	defer p.sem.Release(1)

	e.mu.Lock()
	e.status = statusRunning
	e.mu.Unlock()

	buf := make([]byte, e.key.length)
	n, err := f.FetchRange(e.key.offset, buf)
	e.finish(n, buf, err)
}

// TryServe looks for a completed or in-flight entry exactly matching
// (streamID, position, length). On a hit it copies up to length bytes
// into dst and returns the count; a miss, a short wait timeout, or a
// failed entry all return (0, nil) so the caller falls back to a direct
// read. Served entries are removed (single-reader semantics).
func (p *Pool) TryServe(streamID uint64, position int64, length int, dst []byte) (int, error) {
	if length <= 0 {
		return 0, nil
	}
	k := key{stream: streamID, offset: position, length: length}

	p.mu.Lock()
	e, ok := p.entries[k]
	p.mu.Unlock()
	if !ok {
		return 0, nil
	}

	select {
	case <-e.done:
	case <-time.After(inFlightWait):
		return 0, nil
	}

	p.mu.Lock()
	delete(p.entries, k)
	p.mu.Unlock()

	st, n, data, err := e.snapshot()
	if st == statusFailed || err != nil {
		return 0, nil
	}
	return copy(dst, data[:n]), nil
}

// Evict discards every entry belonging to streamID. In-flight workers are
// left to finish; their results simply become unreferenced.
func (p *Pool) Evict(streamID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.entries {
		if k.stream == streamID {
			delete(p.entries, k)
		}
	}
}

// evictLocked enforces the cache's entry-count bound by dropping the
// oldest tracked keys, mirroring a simple FIFO eviction policy. Must be
// called with p.mu held.
func (p *Pool) evictLocked() {
	for len(p.order) > p.maxCap {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.entries, oldest)
	}
}
