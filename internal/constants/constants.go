package constants

// Default configuration constants
const (
	// MaxEpollEvents is the per-wait dequeue batch size
	MaxEpollEvents = 32

	// DefaultBufferSize is the target size of a single recv in bytes (100KB)
	DefaultBufferSize = 100000

	// DefaultPipeBuffThresh is the per-pipe back-pressure threshold in bytes (1MB)
	DefaultPipeBuffThresh = 1_000_000

	// DefaultNullsThresh is the tombstone count above which a collection
	// is compacted
	DefaultNullsThresh = 32

	// DefaultBacklog is the listen(2) backlog
	DefaultBacklog = 64
)
