// Package chunksource implements the Chunk Source: an abstract fetcher
// that turns a (file-id, chunk-index) pair into bytes delivered to a
// Sink, via a channel provider, an optional cache provider, or (for
// episodes) a CDN provider. The policy is cache-first, channel/CDN
// fallback, with best-effort write-back to cache on channel delivery.
// Requests are dispatched through a bounded worker pool so concurrent
// chunk fetches across many streams share one concurrency budget.
package chunksource

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/arifainchtein/librespot-go/internal/metadata"
)

// Sink receives fetched ciphertext for a chunk, ready for decryption. The
// concrete implementation is chunkbuffer.Buffer.WriteChunk.
type Sink interface {
	WriteChunk(index int, ciphertext []byte, cached bool) error
}

// ChannelProvider issues an asynchronous request over the control channel.
// The real session/Shannon-cipher channel is an out-of-scope collaborator;
// internal/channel supplies an in-process simulation suitable for tests
// and local demos.
type ChannelProvider interface {
	RequestChunk(ctx context.Context, fileID metadata.FileID, index int, sink Sink) error
}

// CacheProvider is the optional local-cache fast path.
type CacheProvider interface {
	HasCached(fileID metadata.FileID, index int) bool
	ReadCached(ctx context.Context, fileID metadata.FileID, index int, sink Sink) error
	// WriteBack stores a chunk fetched from the channel, best-effort.
	WriteBack(ctx context.Context, fileID metadata.FileID, index int, ciphertext []byte) error
}

// CDNProvider is the HTTP(S) path used for episodes with an external URL.
type CDNProvider interface {
	RequestChunk(ctx context.Context, url string, index int, sink Sink) error
}

// Source binds a channel provider with an optional cache and/or CDN
// provider and applies the cache-first, channel/CDN-fallback policy.
type Source struct {
	Channel ChannelProvider
	Cache   CacheProvider
	CDN     CDNProvider

	FileID metadata.FileID

	// URL, if non-empty, routes requests through CDN instead of Channel
	// (the stream feeder decides this at load time).
	URL string

	log *logrus.Entry
}

// New builds a Source. log may be nil, in which case a discarded entry is
// used (tests construct Sources without a logger).
func New(channel ChannelProvider, cache CacheProvider, cdn CDNProvider, fileID metadata.FileID, url string, log *logrus.Entry) *Source {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Source{Channel: channel, Cache: cache, CDN: cdn, FileID: fileID, URL: url, log: log}
}

// RequestChunk implements the C2 policy: cache first if configured and
// has_cached is true, otherwise channel (or CDN, if URL is set), with
// best-effort write-back to cache on a channel delivery.
func (s *Source) RequestChunk(ctx context.Context, index int, sink Sink) error {
	if s.Cache != nil && s.Cache.HasCached(s.FileID, index) {
		if err := s.Cache.ReadCached(ctx, s.FileID, index, sink); err == nil {
			return nil
		} else {
			// Cache errors are logged and swallowed; fall through to the
			// channel/CDN path.
			s.log.WithError(err).WithField("chunk_index", index).Warn("chunksource: cache read failed, falling back")
		}
	}

	writeBackSink := sink
	if s.Cache != nil {
		writeBackSink = &cacheWriteBackSink{inner: sink, cache: s.Cache, fileID: s.FileID, log: s.log}
	}

	if s.URL != "" && s.CDN != nil {
		return s.CDN.RequestChunk(ctx, s.URL, index, writeBackSink)
	}
	return s.Channel.RequestChunk(ctx, s.FileID, index, writeBackSink)
}

// cacheWriteBackSink wraps a Sink so that a channel/CDN delivery is also
// stored in cache, on a best-effort basis, before forwarding to the real
// sink. Errors from the cache write are logged and swallowed, never
// propagated to the caller.
type cacheWriteBackSink struct {
	inner  Sink
	cache  CacheProvider
	fileID metadata.FileID
	log    *logrus.Entry
}

func (c *cacheWriteBackSink) WriteChunk(index int, ciphertext []byte, cached bool) error {
	if !cached {
		if err := c.cache.WriteBack(context.Background(), c.fileID, index, ciphertext); err != nil {
			c.log.WithError(err).WithField("chunk_index", index).Warn("chunksource: cache write-back failed")
		}
	}
	return c.inner.WriteChunk(index, ciphertext, cached)
}
