package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferPoolGetPutRoundTrip(t *testing.T) {
	p := NewBufferPool()

	buf := p.Get(ChunkSize)
	require.Len(t, buf, ChunkSize)

	for i := range buf {
		buf[i] = 0xFF
	}
	p.Put(buf)

	reused := p.Get(ChunkSize)
	require.Len(t, reused, ChunkSize)
	for i, b := range reused {
		require.Equalf(t, byte(0), b, "byte %d not zeroized on reuse", i)
	}
}

func TestBufferPoolOversizeFallsBackToAlloc(t *testing.T) {
	p := NewBufferPool()
	buf := p.Get(ChunkSize + 1)
	require.Len(t, buf, ChunkSize+1)

	// An oversized buffer must never be accepted back into the pool.
	p.Put(buf)
	stats := p.Stats()
	require.Zero(t, stats.Hits+stats.Misses, "oversize Get must not touch the sync.Pool")
}

func TestBufferPoolStatsTrackHitsAndMisses(t *testing.T) {
	p := NewBufferPool()

	buf := p.Get(ChunkSize)
	p.Put(buf)
	_ = p.Get(ChunkSize)

	stats := p.Stats()
	require.GreaterOrEqual(t, stats.Hits+stats.Misses, int64(2))
}

func TestBufferPoolLastChunkShorterThanChunkSize(t *testing.T) {
	p := NewBufferPool()
	buf := p.Get(1234)
	require.Len(t, buf, 1234)
	require.LessOrEqual(t, cap(buf), ChunkSize)
}
