// Package channel provides an in-process simulation of the service's
// control-channel chunk-request protocol. The real channel — session
// handshake, Diffie-Hellman, the Shannon cipher framing — is an external
// collaborator outside this module's scope; this package is the fake
// suitable for tests and local demos, satisfying
// chunksource.ChannelProvider. A request is handed to a worker pool,
// which "delivers" a reply asynchronously.
package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/arifainchtein/librespot-go/internal/chunksource"
	"github.com/arifainchtein/librespot-go/internal/metadata"
	"github.com/arifainchtein/librespot-go/internal/streamerr"
)

// ChunkStore supplies the ciphertext a simulated channel "delivers" for a
// given (file, chunk index). Tests and demos populate it directly; a real
// deployment would instead have the channel speak the wire protocol to the
// service's edge.
type ChunkStore interface {
	Ciphertext(fileID metadata.FileID, index int) ([]byte, bool)
}

// MapStore is a ChunkStore backed by an in-memory map, keyed by file id.
type MapStore struct {
	mu     sync.RWMutex
	chunks map[metadata.FileID][][]byte
}

// NewMapStore builds an empty MapStore.
func NewMapStore() *MapStore {
	return &MapStore{chunks: map[metadata.FileID][][]byte{}}
}

// Put registers the full chunk list for a file.
func (m *MapStore) Put(fileID metadata.FileID, chunks [][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[fileID] = chunks
}

// Ciphertext implements ChunkStore.
func (m *MapStore) Ciphertext(fileID metadata.FileID, index int) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks, ok := m.chunks[fileID]
	if !ok || index < 0 || index >= len(chunks) {
		return nil, false
	}
	return chunks[index], true
}

// Client is the simulated ChannelClient. Requests are dispatched through a
// bounded worker pool (internal/chunksource.Dispatcher) so that many
// concurrent chunk requests across streams share the same "control
// channel" concurrency budget.
type Client struct {
	store      ChunkStore
	dispatcher *chunksource.Dispatcher
}

// NewClient builds a channel Client over store, dispatching work through
// dispatcher. A nil dispatcher gets a DefaultWorkers()-sized one.
func NewClient(store ChunkStore, dispatcher *chunksource.Dispatcher) *Client {
	if dispatcher == nil {
		dispatcher = chunksource.NewDispatcher(0)
	}
	return &Client{store: store, dispatcher: dispatcher}
}

// RequestChunk implements chunksource.ChannelProvider. The fetch runs on
// the dispatcher, which invokes sink.WriteChunk with the chunk's
// ciphertext and cached set to false; RequestChunk waits for that
// delivery (or ctx cancellation) and returns its error.
func (c *Client) RequestChunk(ctx context.Context, fileID metadata.FileID, index int, sink chunksource.Sink) error {
	errCh := make(chan error, 1)
	c.dispatcher.Dispatch(ctx, func() {
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		default:
		}

		ciphertext, ok := c.store.Ciphertext(fileID, index)
		if !ok {
			errCh <- fmt.Errorf("channel: no chunk %d for file %s: %w", index, fileID, streamerr.ErrChannelError)
			return
		}
		errCh <- sink.WriteChunk(index, ciphertext, false)
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
