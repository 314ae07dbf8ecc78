// Package pool reduces allocations on the data management core's hot
// paths: building a batch of quads to remove, collecting a resource's
// sub-resource children, and serialising one audit line. It pools
// typed slices/buffers via sync.Pool instead of a Neo4j-shaped
// row/column buffer, since this module has no tabular query results to
// pool.
//
// Usage:
//
//	quads := pool.GetQuadSlice()
//	defer pool.PutQuadSlice(quads)
//	quads = append(quads, q)
package pool

import (
	"sync"

	"github.com/nepomuk-go/datacore/pkg/store"
)

// Config configures pooling behavior.
type Config struct {
	// Enabled controls whether pooling is active.
	Enabled bool
	// MaxSize limits how large a returned quad or string slice may be
	// and still be kept in its pool, preventing one oversized batch from
	// pinning memory in the pool indefinitely. Byte buffers use a fixed
	// 64 KiB limit instead.
	MaxSize int
}

var globalConfig = Config{Enabled: true, MaxSize: 1000}

// Configure sets global pool configuration. Should be called early
// during initialization, before any Get call.
func Configure(cfg Config) {
	globalConfig = cfg
	initPools()
}

func initPools() {
	quadSlicePool = sync.Pool{New: func() any { return make([]store.Quad, 0, 64) }}
	stringSlicePool = sync.Pool{New: func() any { return make([]string, 0, 16) }}
	byteBufferPool = sync.Pool{New: func() any { return make([]byte, 0, 256) }}
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return globalConfig.Enabled
}

// =============================================================================
// Quad slice pool — batches of statements gathered before a bulk
// removal pass (removeResourceEntirely, dropApplicationFromResource).
// =============================================================================

var quadSlicePool = sync.Pool{
	New: func() any { return make([]store.Quad, 0, 64) },
}

// GetQuadSlice returns a zero-length quad slice from the pool.
func GetQuadSlice() []store.Quad {
	if !globalConfig.Enabled {
		return make([]store.Quad, 0, 64)
	}
	return quadSlicePool.Get().([]store.Quad)[:0]
}

// PutQuadSlice returns a quad slice to the pool.
func PutQuadSlice(quads []store.Quad) {
	if !globalConfig.Enabled {
		return
	}
	if cap(quads) > globalConfig.MaxSize {
		return
	}
	quadSlicePool.Put(quads[:0])
}

// =============================================================================
// String slice pool — per-node child URI lists (transitiveSubResources).
// =============================================================================

var stringSlicePool = sync.Pool{
	New: func() any { return make([]string, 0, 16) },
}

// GetStringSlice returns a zero-length string slice from the pool.
func GetStringSlice() []string {
	if !globalConfig.Enabled {
		return make([]string, 0, 16)
	}
	return stringSlicePool.Get().([]string)[:0]
}

// PutStringSlice returns a string slice to the pool.
func PutStringSlice(s []string) {
	if !globalConfig.Enabled {
		return
	}
	if cap(s) > globalConfig.MaxSize {
		return
	}
	stringSlicePool.Put(s[:0])
}

// =============================================================================
// Byte buffer pool — one audit Event's marshaled JSON line.
// =============================================================================

var byteBufferPool = sync.Pool{
	New: func() any { return make([]byte, 0, 256) },
}

// GetByteBuffer returns a zero-length byte buffer from the pool.
func GetByteBuffer() []byte {
	if !globalConfig.Enabled {
		return make([]byte, 0, 256)
	}
	return byteBufferPool.Get().([]byte)[:0]
}

// PutByteBuffer returns a byte buffer to the pool.
func PutByteBuffer(buf []byte) {
	if !globalConfig.Enabled {
		return
	}
	if cap(buf) > 64*1024 {
		return
	}
	byteBufferPool.Put(buf[:0])
}
