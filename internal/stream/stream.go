// Package stream implements the Chunked Stream: a seekable,
// forward-biased byte reader over a chunkbuffer.Buffer that triggers
// prefetch via a chunksource-style requester and blocks when data is not
// yet present. It is a single concrete struct parameterized by a Chunk
// Source capability, not a class hierarchy.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arifainchtein/librespot-go/internal/chunkbuffer"
	"github.com/arifainchtein/librespot-go/internal/chunksource"
	"github.com/arifainchtein/librespot-go/internal/streamerr"
)

// DefaultPrefetchAhead is the minimum prefetch window for smooth
// playback given typical decoder read granularity. Implementations may
// increase it.
const DefaultPrefetchAhead = 1

// DefaultChunkTimeout is the bounded per-chunk wait before a single
// re-request and eventual ErrChunkTimeout.
const DefaultChunkTimeout = 10 * time.Second

// Requester dispatches a chunk request to the Chunk Source. It is
// satisfied by *chunksource.Source.
type Requester interface {
	RequestChunk(ctx context.Context, index int, sink chunksource.Sink) error
}

// Stream is the Chunked Stream (C4). One Stream is opened per Loaded
// Stream and owned by the stream feeder / track handler for that stream's
// lifetime.
type Stream struct {
	buf       *chunkbuffer.Buffer
	requester Requester
	chunkSize int

	prefetchAhead int
	chunkTimeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	position int64

	log *logrus.Entry
}

// Option configures a Stream.
type Option func(*Stream)

// WithPrefetchAhead overrides DefaultPrefetchAhead.
func WithPrefetchAhead(n int) Option {
	return func(s *Stream) {
		if n >= 0 {
			s.prefetchAhead = n
		}
	}
}

// WithChunkTimeout overrides DefaultChunkTimeout.
func WithChunkTimeout(d time.Duration) Option {
	return func(s *Stream) {
		if d > 0 {
			s.chunkTimeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Stream) { s.log = log }
}

// New opens a Chunked Stream over buf, dispatching prefetch requests
// through requester. The returned Stream's internal context is cancelled
// on Close, so in-flight chunk requests for this stream can be cancelled
// promptly.
func New(buf *chunkbuffer.Buffer, requester Requester, chunkSize int, opts ...Option) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		buf:           buf,
		requester:     requester,
		chunkSize:     chunkSize,
		prefetchAhead: DefaultPrefetchAhead,
		chunkTimeout:  DefaultChunkTimeout,
		ctx:           ctx,
		cancel:        cancel,
		log:           logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Length returns the file's total decrypted size.
func (s *Stream) Length() int64 { return s.buf.TotalSize() }

// Position returns the next byte offset Read will return.
func (s *Stream) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *Stream) chunkIndexFor(pos int64) int {
	return int(pos / int64(s.chunkSize))
}

// ensureRequested dispatches a chunk request if it hasn't been made yet,
// via the shared chunk-request pool (the requester's own Dispatch/worker
// semaphore governs actual concurrency).
func (s *Stream) ensureRequested(i int) {
	if i < 0 || i >= s.buf.ChunksTotal() {
		return
	}
	if s.buf.IsRequested(i) {
		return
	}
	s.buf.MarkRequested(i)
	go func() {
		if err := s.requester.RequestChunk(s.ctx, i, s.buf); err != nil {
			s.log.WithError(err).WithField("chunk_index", i).Warn("stream: chunk request failed")
		}
	}()
}

// prefetch requests the chunk at pos and the configured prefetch window
// ahead of it.
func (s *Stream) prefetch(pos int64) {
	i := s.chunkIndexFor(pos)
	s.ensureRequested(i)
	for w := 1; w <= s.prefetchAhead; w++ {
		s.ensureRequested(i + w)
	}
}

// Seek sets position to clamp(newPos, 0, total_size), never blocks, and
// ensures the target chunk plus the prefetch window are requested.
func (s *Stream) Seek(newPos int64) int64 {
	total := s.buf.TotalSize()
	if newPos < 0 {
		newPos = 0
	}
	if newPos > total {
		newPos = total
	}

	s.mu.Lock()
	s.position = newPos
	s.mu.Unlock()

	s.prefetch(newPos)
	return newPos
}

// Skip advances position by n bytes, equivalent to a forward seek. Used
// by the feeder to discard the OGG preamble.
func (s *Stream) Skip(n int64) int64 {
	return s.Seek(s.Position() + n)
}

// Close idempotently closes the underlying buffer (waking all blocked
// readers with ErrStreamClosed) and cancels in-flight prefetch requests
// for this stream.
func (s *Stream) Close() {
	s.buf.Close()
	s.cancel()
}

// Read copies bytes from the current position into dst, blocking if the
// chunk covering position is not yet available. End-of-stream (position
// equal to the total size) is modeled as a zero-length, nil-error read,
// distinct from any failure, rather than io.EOF.
func (s *Stream) Read(dst []byte) (int, error) {
	s.mu.Lock()
	pos := s.position
	s.mu.Unlock()

	total := s.buf.TotalSize()
	if pos >= total {
		return 0, nil
	}

	index := s.chunkIndexFor(pos)
	s.ensureRequested(index)
	s.prefetch(pos)

	chunk, err := s.waitForChunk(index)
	if err != nil {
		return 0, err
	}

	offsetInChunk := int(pos % int64(s.chunkSize))
	n := copy(dst, chunk[offsetInChunk:])

	s.mu.Lock()
	s.position += int64(n)
	s.mu.Unlock()

	return n, nil
}

// waitForChunk blocks on chunk i with a bounded-wait-then-single-retry
// discipline: on timeout, re-issue the request once before failing with
// ErrChunkTimeout.
func (s *Stream) waitForChunk(i int) ([]byte, error) {
	data, err := s.waitWithTimeout(i)
	if err == nil {
		return data, nil
	}
	if !isTimeout(err) {
		return nil, err
	}

	s.log.WithField("chunk_index", i).Warn("stream: chunk wait timed out, re-requesting once")
	go func() {
		if reqErr := s.requester.RequestChunk(s.ctx, i, s.buf); reqErr != nil {
			s.log.WithError(reqErr).WithField("chunk_index", i).Warn("stream: chunk re-request failed")
		}
	}()

	data, err = s.waitWithTimeout(i)
	if err != nil {
		return nil, s.waitForChunkFinalError(i, err)
	}
	return data, nil
}

// timeoutError marks waitWithTimeout's internal bounded-wait expiry,
// distinct from a genuine ErrChunkTimeout (which is only returned after
// the single retry has also failed).
type timeoutError struct{}

func (timeoutError) Error() string { return "stream: chunk wait timed out" }

func isTimeout(err error) bool {
	_, ok := err.(timeoutError)
	return ok
}

// waitWithTimeout blocks on buf.Wait(i) but gives up after s.chunkTimeout,
// returning a timeoutError so waitForChunk can distinguish a bounded-wait
// expiry from a genuine close/stream-error signal.
func (s *Stream) waitWithTimeout(i int) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := s.buf.Wait(i)
		done <- result{data, err}
	}()

	select {
	case r := <-done:
		return r.data, r.err
	case <-time.After(s.chunkTimeout):
		return nil, timeoutError{}
	}
}

// waitForChunkFinalError wraps the second waitWithTimeout call's timeout
// into the public ErrChunkTimeout sentinel, since the retry gets no
// further chances.
func (s *Stream) waitForChunkFinalError(i int, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("stream: chunk %d: %w", i, streamerr.ErrChunkTimeout)
	}
	return err
}
