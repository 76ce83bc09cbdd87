package readahead

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingFetcher serves fixed content for an offset, optionally blocking
// until release is closed and counting how many times it was invoked.
type recordingFetcher struct {
	data    []byte
	release chan struct{}

	mu    sync.Mutex
	calls int
	err   error
}

func (f *recordingFetcher) FetchRange(offset int64, dst []byte) (int, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	n := copy(dst, f.data[offset:])
	return n, nil
}

func (f *recordingFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitForServe(t *testing.T, p *Pool, streamID uint64, offset int64, length int, dst []byte) int {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := p.TryServe(streamID, offset, length, dst)
		require.NoError(t, err)
		if n > 0 {
			return n
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for prefetch of offset %d", offset)
	return 0
}

func TestPoolEnqueueThenServe(t *testing.T) {
	data := []byte("0123456789")
	fetcher := &recordingFetcher{data: data}
	p := New(2, 8)

	p.Enqueue(1, fetcher, 0, 5)

	dst := make([]byte, 5)
	n := waitForServe(t, p, 1, 0, 5, dst)
	assert.Equal(t, 5, n)
	assert.Equal(t, "01234", string(dst[:n]))
}

func TestPoolServeMissReturnsZero(t *testing.T) {
	p := New(1, 4)
	n, err := p.TryServe(1, 0, 5, make([]byte, 5))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPoolEntryConsumedOnce(t *testing.T) {
	data := []byte("abcdef")
	fetcher := &recordingFetcher{data: data}
	p := New(2, 8)

	p.Enqueue(1, fetcher, 0, 3)
	dst := make([]byte, 3)
	waitForServe(t, p, 1, 0, 3, dst)

	n, err := p.TryServe(1, 0, 3, dst)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a served entry must not be handed out twice")
}

func TestPoolDuplicateEnqueueDeduped(t *testing.T) {
	data := []byte("abcdefgh")
	fetcher := &recordingFetcher{data: data, release: make(chan struct{})}
	p := New(4, 8)

	p.Enqueue(1, fetcher, 0, 4)
	p.Enqueue(1, fetcher, 0, 4) // identical request while the first is in flight
	close(fetcher.release)

	waitForServe(t, p, 1, 0, 4, make([]byte, 4))
	assert.Equal(t, 1, fetcher.callCount())
}

func TestPoolDropsWhenSaturated(t *testing.T) {
	blockFirst := make(chan struct{})
	fetcher := &recordingFetcher{data: []byte("0123456789"), release: blockFirst}
	p := New(1, 8)

	p.Enqueue(1, fetcher, 0, 2)  // occupies the single worker slot
	p.Enqueue(1, fetcher, 4, 2) // no free slot, silently dropped

	close(blockFirst)
	waitForServe(t, p, 1, 0, 2, make([]byte, 2))

	n, err := p.TryServe(1, 4, 2, make([]byte, 2))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPoolFailedFetchIsTreatedAsMiss(t *testing.T) {
	fetcher := &recordingFetcher{data: []byte("ignored"), err: errors.New("boom")}
	p := New(1, 4)

	p.Enqueue(1, fetcher, 0, 4)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && fetcher.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, fetcher.callCount())

	n, err := p.TryServe(1, 0, 4, make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPoolEvictRemovesStreamEntries(t *testing.T) {
	fetcher := &recordingFetcher{data: []byte("0123456789"), release: make(chan struct{})}
	p := New(2, 8)

	p.Enqueue(7, fetcher, 0, 4)
	p.Evict(7)
	close(fetcher.release)

	time.Sleep(10 * time.Millisecond)
	n, err := p.TryServe(7, 0, 4, make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPoolZeroLengthEnqueueIsNoop(t *testing.T) {
	fetcher := &recordingFetcher{data: []byte("abc")}
	p := New(1, 4)

	p.Enqueue(1, fetcher, 0, 0)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 0, fetcher.callCount())
}
