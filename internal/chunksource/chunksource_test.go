package chunksource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arifainchtein/librespot-go/internal/metadata"
)

type fakeSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

type sinkCall struct {
	index      int
	ciphertext []byte
	cached     bool
}

func (s *fakeSink) WriteChunk(index int, ciphertext []byte, cached bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{index, append([]byte(nil), ciphertext...), cached})
	return nil
}

type fakeChannel struct {
	mu       sync.Mutex
	requests []int
	payload  map[int][]byte
}

func (c *fakeChannel) RequestChunk(ctx context.Context, fileID metadata.FileID, index int, sink Sink) error {
	c.mu.Lock()
	c.requests = append(c.requests, index)
	c.mu.Unlock()
	return sink.WriteChunk(index, c.payload[index], false)
}

type fakeCache struct {
	mu        sync.Mutex
	cached    map[int][]byte
	writeErr  error
	readErr   error
	written   map[int][]byte
	readCalls int
}

func newFakeCache() *fakeCache {
	return &fakeCache{cached: map[int][]byte{}, written: map[int][]byte{}}
}

func (c *fakeCache) HasCached(fileID metadata.FileID, index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.cached[index]
	return ok
}

func (c *fakeCache) ReadCached(ctx context.Context, fileID metadata.FileID, index int, sink Sink) error {
	c.mu.Lock()
	c.readCalls++
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return err
	}
	data := c.cached[index]
	c.mu.Unlock()
	return sink.WriteChunk(index, data, true)
}

func (c *fakeCache) WriteBack(ctx context.Context, fileID metadata.FileID, index int, ciphertext []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written[index] = append([]byte(nil), ciphertext...)
	return nil
}

func TestRequestChunkPrefersCacheWhenPresent(t *testing.T) {
	cache := newFakeCache()
	cache.cached[0] = []byte("cached-bytes")
	channel := &fakeChannel{payload: map[int][]byte{}}
	sink := &fakeSink{}

	src := New(channel, cache, nil, metadata.FileID{}, "", nil)
	require.NoError(t, src.RequestChunk(context.Background(), 0, sink))

	require.Empty(t, channel.requests, "channel must not be consulted when cache has the chunk")
	require.Len(t, sink.calls, 1)
	require.True(t, sink.calls[0].cached)
	require.Equal(t, []byte("cached-bytes"), sink.calls[0].ciphertext)
}

func TestRequestChunkFallsBackToChannelWhenNotCached(t *testing.T) {
	cache := newFakeCache()
	channel := &fakeChannel{payload: map[int][]byte{1: []byte("from-channel")}}
	sink := &fakeSink{}

	src := New(channel, cache, nil, metadata.FileID{}, "", nil)
	require.NoError(t, src.RequestChunk(context.Background(), 1, sink))

	require.Equal(t, []int{1}, channel.requests)
	require.Len(t, sink.calls, 1)
	require.False(t, sink.calls[0].cached)
	require.Equal(t, []byte("from-channel"), sink.calls[0].ciphertext)
}

func TestRequestChunkWritesBackOnChannelDelivery(t *testing.T) {
	cache := newFakeCache()
	channel := &fakeChannel{payload: map[int][]byte{2: []byte("payload-2")}}
	sink := &fakeSink{}

	src := New(channel, cache, nil, metadata.FileID{}, "", nil)
	require.NoError(t, src.RequestChunk(context.Background(), 2, sink))

	require.Equal(t, []byte("payload-2"), cache.written[2])
}

func TestRequestChunkSwallowsCacheWriteBackErrors(t *testing.T) {
	cache := newFakeCache()
	cache.writeErr = errors.New("disk full")
	channel := &fakeChannel{payload: map[int][]byte{3: []byte("payload-3")}}
	sink := &fakeSink{}

	src := New(channel, cache, nil, metadata.FileID{}, "", nil)
	err := src.RequestChunk(context.Background(), 3, sink)

	require.NoError(t, err, "cache write-back failures must not propagate to the caller")
	require.Len(t, sink.calls, 1, "the chunk must still reach the sink despite the cache error")
}

func TestRequestChunkFallsBackWhenCacheReadFails(t *testing.T) {
	cache := newFakeCache()
	cache.cached[4] = []byte("stale")
	cache.readErr = errors.New("corrupt entry")
	channel := &fakeChannel{payload: map[int][]byte{4: []byte("fresh-from-channel")}}
	sink := &fakeSink{}

	src := New(channel, cache, nil, metadata.FileID{}, "", nil)
	require.NoError(t, src.RequestChunk(context.Background(), 4, sink))

	require.Equal(t, []int{4}, channel.requests, "a cache read error must fall through to the channel")
	require.Equal(t, []byte("fresh-from-channel"), sink.calls[0].ciphertext)
}

func TestRequestChunkWithoutCacheGoesStraightToChannel(t *testing.T) {
	channel := &fakeChannel{payload: map[int][]byte{5: []byte("no-cache")}}
	sink := &fakeSink{}

	src := New(channel, nil, nil, metadata.FileID{}, "", nil)
	require.NoError(t, src.RequestChunk(context.Background(), 5, sink))

	require.Equal(t, []int{5}, channel.requests)
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	d := NewDispatcher(2)

	var mu sync.Mutex
	active, maxActive := 0, 0
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		d.Dispatch(context.Background(), func() {
			defer wg.Done()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		})
	}

	wg.Wait()
	d.Wait()

	require.LessOrEqual(t, maxActive, 2)
}

func TestDispatcherRespectsContextCancellation(t *testing.T) {
	d := NewDispatcher(1)
	ctx, cancel := context.WithCancel(context.Background())

	blocker := make(chan struct{})
	d.Dispatch(context.Background(), func() { <-blocker })

	cancel()
	ran := false
	d.Dispatch(ctx, func() { ran = true })
	close(blocker)
	d.Wait()

	require.False(t, ran, "a task dispatched with an already-cancelled context must not run")
}
