package chunkbuffer

import (
	"errors"

	"github.com/arifainchtein/librespot-go/internal/streamerr"
)

var errChunkIndexOutOfRange = errors.New("chunkbuffer: chunk index out of range")

// errClosedOrStreamErr picks the error to hand a waiter once the buffer is
// closed: a delivered stream error takes precedence over the generic
// closed signal.
func errClosedOrStreamErr(streamErr error) error {
	if streamErr != nil {
		return streamErr
	}
	return streamerr.ErrStreamClosed
}
