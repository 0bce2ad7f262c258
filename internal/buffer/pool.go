package buffer

import (
	"sync"

	"github.com/ehrlich-b/go-xps/internal/constants"
)

// Slab pooling for the hot allocation paths. Uses size-bucketed pools so
// the per-recv scratch buffer (DefaultBufferSize) and the common small
// assembly sizes are recycled instead of hitting the allocator every tick.
//
// Uses *[]byte pattern to avoid sync.Pool interface allocation overhead.

// Slab size buckets
const (
	size4k   = 4 * 1024
	size16k  = 16 * 1024
	size64k  = 64 * 1024
	sizeRecv = constants.DefaultBufferSize
)

// globalPool is the shared slab pool for all buffers.
var globalPool = struct {
	pool4k   sync.Pool
	pool16k  sync.Pool
	pool64k  sync.Pool
	poolRecv sync.Pool
}{
	pool4k:   sync.Pool{New: func() any { b := make([]byte, size4k); return &b }},
	pool16k:  sync.Pool{New: func() any { b := make([]byte, size16k); return &b }},
	pool64k:  sync.Pool{New: func() any { b := make([]byte, size64k); return &b }},
	poolRecv: sync.Pool{New: func() any { b := make([]byte, sizeRecv); return &b }},
}

// getSlab returns a slab of exactly the requested size and whether it came
// from a pool. Pooled slabs match a bucket size exactly so content from a
// previous use never leaks past the logical length accounting.
func getSlab(size int) ([]byte, bool) {
	switch size {
	case size4k:
		return *globalPool.pool4k.Get().(*[]byte), true
	case size16k:
		return *globalPool.pool16k.Get().(*[]byte), true
	case size64k:
		return *globalPool.pool64k.Get().(*[]byte), true
	case sizeRecv:
		return *globalPool.poolRecv.Get().(*[]byte), true
	default:
		return make([]byte, size), false
	}
}

// putSlab returns a slab to its pool. The slab's capacity determines which
// pool it goes to; non-bucket slabs are dropped for the GC.
func putSlab(slab []byte) {
	slab = slab[:cap(slab)]
	switch cap(slab) {
	case size4k:
		globalPool.pool4k.Put(&slab)
	case size16k:
		globalPool.pool16k.Put(&slab)
	case size64k:
		globalPool.pool64k.Put(&slab)
	case sizeRecv:
		globalPool.poolRecv.Put(&slab)
	}
}
