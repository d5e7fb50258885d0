package crypto

import (
	"sync"
	"sync/atomic"
)

// BufferPool pools ChunkSize-width byte buffers so the channel/CDN chunk
// sources and the decrypt path do not allocate a fresh 128 KiB slice per
// chunk.
type BufferPool struct {
	pool *sync.Pool

	hits, misses int64
}

// NewBufferPool creates a pool of ChunkSize buffers.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: &sync.Pool{
			New: func() interface{} { return make([]byte, ChunkSize) },
		},
	}
}

// Get returns a buffer with capacity ChunkSize, truncated to size.
func (p *BufferPool) Get(size int) []byte {
	if size > ChunkSize || size < 0 {
		return make([]byte, size)
	}
	v := p.pool.Get()
	buf := v.([]byte)
	if cap(buf) < size {
		atomic.AddInt64(&p.misses, 1)
		return make([]byte, size)
	}
	atomic.AddInt64(&p.hits, 1)
	return buf[:size]
}

// Put returns a buffer to the pool after zeroizing it, so decrypted audio
// bytes from one track never leak into a future chunk for a different one.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) != ChunkSize {
		return
	}
	full := buf[:ChunkSize]
	for i := range full {
		full[i] = 0
	}
	p.pool.Put(full) //nolint:staticcheck // full has cap==ChunkSize, matches New
}

// BufferPoolMetrics reports pool hit/miss counters for the metrics package.
type BufferPoolMetrics struct {
	Hits, Misses int64
}

// Stats returns a snapshot of the pool's hit/miss counters.
func (p *BufferPool) Stats() BufferPoolMetrics {
	return BufferPoolMetrics{
		Hits:   atomic.LoadInt64(&p.hits),
		Misses: atomic.LoadInt64(&p.misses),
	}
}
