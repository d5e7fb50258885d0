// Package chunkbuffer implements the Chunk Buffer: a fixed-size,
// partially-populated array of decrypted chunks shared between a producer
// pool (chunksource workers writing chunks as they arrive) and a blocking
// reader (the Chunked Stream). It owns no request logic of its own — it
// only records that a chunk was requested and makes availability visible
// to waiters once the decrypted payload lands.
package chunkbuffer

import (
	"fmt"
	"sync"

	"github.com/arifainchtein/librespot-go/internal/crypto"
)

// Buffer holds three parallel arrays: decrypted payload, available[i],
// requested[i]. It is allocated once chunks_total is known (after the
// stream feeder parses the file header from chunk 0) and lives for the
// lifetime of the owning Chunked Stream.
type Buffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool

	decryptor *crypto.Decryptor

	totalSize   int64
	chunkSize   int
	chunksTotal int

	payload   [][]byte
	available []bool
	requested []bool

	// streamErr, when non-nil, is delivered to waiters instead of a plain
	// "closed" wakeup.
	streamErr error
}

// New allocates a Buffer for a file of totalSize bytes, decrypted in
// chunkSize-byte chunks via decryptor. chunksTotal is
// ceil(totalSize / chunkSize).
func New(decryptor *crypto.Decryptor, totalSize int64, chunkSize int) *Buffer {
	if chunkSize <= 0 {
		chunkSize = crypto.ChunkSize
	}
	chunksTotal := int((totalSize + int64(chunkSize) - 1) / int64(chunkSize))

	b := &Buffer{
		decryptor:   decryptor,
		totalSize:   totalSize,
		chunkSize:   chunkSize,
		chunksTotal: chunksTotal,
		payload:     make([][]byte, chunksTotal),
		available:   make([]bool, chunksTotal),
		requested:   make([]bool, chunksTotal),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// ChunksTotal returns the number of chunks in the file.
func (b *Buffer) ChunksTotal() int { return b.chunksTotal }

// TotalSize returns the file's decrypted size in bytes.
func (b *Buffer) TotalSize() int64 { return b.totalSize }

// ChunkLen returns the expected decrypted length of chunk i: chunkSize for
// every chunk but the last, which is totalSize mod chunkSize, treating an
// exact multiple of chunkSize as a full chunkSize-length final chunk.
func (b *Buffer) ChunkLen(i int) int {
	if i < 0 || i >= b.chunksTotal {
		return 0
	}
	if i < b.chunksTotal-1 {
		return b.chunkSize
	}
	rem := int(b.totalSize % int64(b.chunkSize))
	if rem == 0 {
		return b.chunkSize
	}
	return rem
}

// MarkRequested records that chunk i has been dispatched to a Chunk
// Source. It is idempotent and safe to call from multiple prefetch
// goroutines concurrently.
func (b *Buffer) MarkRequested(i int) {
	b.mu.Lock()
	if i >= 0 && i < b.chunksTotal {
		b.requested[i] = true
	}
	b.mu.Unlock()
}

// IsRequested reports whether chunk i has already been dispatched.
func (b *Buffer) IsRequested(i int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return i >= 0 && i < b.chunksTotal && b.requested[i]
}

// IsAvailable reports whether chunk i's decrypted payload is ready.
func (b *Buffer) IsAvailable(i int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return i >= 0 && i < b.chunksTotal && b.available[i]
}

// WriteChunk decrypts ciphertext for chunk i and publishes it. It verifies
// len(ciphertext) against the chunk's expected length, decrypts via the
// Chunk Decryptor, sets available[i] and requested[i] (available implies
// requested), and wakes every reader blocked on the buffer. Calls after
// Close, and calls for a chunk that is already available, are no-ops.
func (b *Buffer) WriteChunk(i int, ciphertext []byte, cached bool) error {
	if i < 0 || i >= b.chunksTotal {
		return nil
	}

	expected := b.ChunkLen(i)
	plaintext, err := b.decryptor.Decrypt(i, ciphertext, expected)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		// Tolerate post-close delivery: outstanding requests for a closed
		// stream may still arrive, and their writes are dropped.
		return nil
	}
	if err != nil {
		return err
	}
	if b.available[i] {
		// I3: a published payload is never replaced.
		return nil
	}

	b.payload[i] = plaintext
	b.requested[i] = true
	b.available[i] = true
	b.cond.Broadcast()
	return nil
}

// SeedPlaintext publishes chunk i's already-decrypted payload directly,
// without a second decrypt pass. The stream feeder uses this for chunk 0:
// it must decrypt chunk 0's ciphertext once, while the buffer's true
// chunks_total is still unknown, to read the file-size header before the
// buffer can even be allocated at its final size.
func (b *Buffer) SeedPlaintext(i int, plaintext []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i < 0 || i >= b.chunksTotal {
		return errChunkIndexOutOfRange
	}
	if b.closed {
		return nil
	}
	if expected := b.ChunkLen(i); len(plaintext) != expected {
		return fmt.Errorf("chunkbuffer: seed chunk %d: got %d bytes, want %d", i, len(plaintext), expected)
	}

	b.payload[i] = plaintext
	b.requested[i] = true
	b.available[i] = true
	b.cond.Broadcast()
	return nil
}

// Read returns a copy-free view of chunk i's decrypted payload if
// available. The returned slice must be treated as immutable by the
// caller.
func (b *Buffer) Read(i int) (data []byte, available bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= b.chunksTotal || !b.available[i] {
		return nil, false
	}
	return b.payload[i], true
}

// Wait blocks until chunk i is available, the buffer is closed, or a
// stream error has been delivered, whichever happens first. It returns
// the decrypted payload on availability, or an error otherwise
// (ErrStreamClosed / the delivered stream error).
//
// Wait must be called with no lock held; it is the blocking primitive
// that Chunked Stream.Read uses at the chunk boundary.
func (b *Buffer) Wait(i int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if i < 0 || i >= b.chunksTotal {
			return nil, errChunkIndexOutOfRange
		}
		if b.available[i] {
			return b.payload[i], nil
		}
		if b.closed {
			return nil, errClosedOrStreamErr(b.streamErr)
		}
		b.cond.Wait()
	}
}

// Close idempotently marks the buffer closed and wakes every waiter with
// ErrStreamClosed (or the last delivered stream error, if any).
func (b *Buffer) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		b.cond.Broadcast()
	}
	b.mu.Unlock()
}

// Closed reports whether Close has been called.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// DeliverStreamError records a stream_error signal from the channel and
// wakes all waiters. It also marks the buffer closed, so every pending
// and later Wait on a missing chunk fails with that error.
func (b *Buffer) DeliverStreamError(err error) {
	b.mu.Lock()
	if !b.closed {
		b.streamErr = err
		b.closed = true
		b.cond.Broadcast()
	}
	b.mu.Unlock()
}
