package rangestream

import (
	"log/slog"
	"runtime"

	"github.com/meigma/rangestream/internal/readahead"
)

// FooterSize is the fixed trailing-region size optimised by the tail-block
// strategy, chosen to match columnar formats (Parquet, ORC) whose footer
// metadata fits comfortably within it. It is part of the wire contract with
// those readers and must not be changed per stream.
const FooterSize = 16 << 10

// MaxOptimizedReadAttempts bounds how many direct reads the full-file and
// tail-block strategies issue before giving up and falling back to the
// one-block strategy.
const MaxOptimizedReadAttempts = 2

const defaultBufferSize = 8 << 20

// config collects the construction parameters for a PositionedStream.
type config struct {
	bufferSize         int
	readAheadDepth     int
	tolerateOOBAppends bool
	etag               string
	smallFilesComplete bool
	footerOpt          bool
	logger             *slog.Logger
	pool               *readahead.Pool
}

func defaultConfig() config {
	return config{
		bufferSize:         defaultBufferSize,
		readAheadDepth:     -1,
		smallFilesComplete: true,
		footerOpt:          true,
		logger:             slog.New(slog.DiscardHandler),
	}
}

// Option configures a PositionedStream at construction.
type Option func(*config)

// WithBufferSize sets the maximum size of the in-memory window. Must be positive;
// invalid values are silently ignored in favor of the default.
func WithBufferSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithReadAheadQueueDepth sets the number of prefetch worker slots used by
// the shared read-ahead pool. Negative values (the default) fall back to
// runtime.NumCPU. Only the first stream to touch the pool determines its
// size; later streams' requests are ignored, since the pool is
// process-wide.
func WithReadAheadQueueDepth(n int) Option {
	return func(c *config) {
		c.readAheadDepth = n
	}
}

// WithToleranceOOBAppends enables out-of-band append tolerance: every range
// read the stream issues uses the wildcard ETag "*" instead of the ETag
// captured at open.
func WithToleranceOOBAppends(tolerate bool) Option {
	return func(c *config) {
		c.tolerateOOBAppends = tolerate
	}
}

// WithETag sets the version tag captured at open. Leave unset when
// tolerating out-of-band appends.
func WithETag(etag string) Option {
	return func(c *config) {
		c.etag = etag
	}
}

// WithSmallFileOptimization toggles the full-file first-read strategy.
// Enabled by default.
func WithSmallFileOptimization(enabled bool) Option {
	return func(c *config) {
		c.smallFilesComplete = enabled
	}
}

// WithFooterOptimization toggles the tail-block first-read strategy.
// Enabled by default.
func WithFooterOptimization(enabled bool) Option {
	return func(c *config) {
		c.footerOpt = enabled
	}
}

// WithLogger sets the structured logger used for diagnostic messages.
// Defaults to a discarding logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithReadAheadPool overrides the shared process-wide pool, mainly for tests
// that want isolated prefetch bookkeeping.
func WithReadAheadPool(pool *readahead.Pool) Option {
	return func(c *config) {
		c.pool = pool
	}
}

func resolveQueueDepth(n int) int {
	if n < 0 {
		return runtime.NumCPU()
	}
	if n == 0 {
		return 1
	}
	return n
}
