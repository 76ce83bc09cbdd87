package rangestream

import "sync/atomic"

// nextStreamID hands out the monotonically increasing stream identities used
// to key read-ahead pool entries. A counter is preferred over pointer
// identity so that pool bookkeeping survives a stream being garbage
// collected and never risks colliding with a reused address.
var streamIDCounter atomic.Uint64

func nextStreamID() uint64 {
	return streamIDCounter.Add(1)
}
