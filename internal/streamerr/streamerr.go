// Package streamerr defines the sentinel error kinds shared by every
// component of the streaming core, so callers can classify a failure with
// errors.Is instead of string matching.
package streamerr

import "errors"

var (
	// ErrMetadataNotFound is returned by the feeder when the metadata RPC
	// has no record for the requested track or episode gid.
	ErrMetadataNotFound = errors.New("streamerr: metadata not found")

	// ErrNoAudioKey is returned when the audio-key RPC fails to produce a
	// file key for the selected audio file.
	ErrNoAudioKey = errors.New("streamerr: no audio key")

	// ErrUnsupportedFormat is returned when none of a track's audio files
	// satisfy the configured format/quality policy.
	ErrUnsupportedFormat = errors.New("streamerr: unsupported format")

	// ErrChannelError wraps a failure reported by the channel RPC client.
	ErrChannelError = errors.New("streamerr: channel error")

	// ErrStreamError wraps a stream_error signal delivered mid-playback.
	ErrStreamError = errors.New("streamerr: stream error")

	// ErrChunkTimeout is returned when a chunk does not become available
	// within the configured timeout, even after one re-request.
	ErrChunkTimeout = errors.New("streamerr: chunk timeout")

	// ErrCacheIOError marks a cache read/write failure. Callers must treat
	// this as best-effort: log and fall through to the channel path.
	ErrCacheIOError = errors.New("streamerr: cache io error")

	// ErrStreamClosed is returned to any reader blocked on a chunk when the
	// owning stream is closed.
	ErrStreamClosed = errors.New("streamerr: stream closed")

	// ErrInvalidChunkSize marks a ciphertext/plaintext length mismatch. This
	// is always a caller bug; it aborts the current stream.
	ErrInvalidChunkSize = errors.New("streamerr: invalid chunk size")

	// ErrHandlerStopped is returned by a TrackHandler's Send* methods once
	// the handler has observed Stop/Terminate.
	ErrHandlerStopped = errors.New("streamerr: handler stopped")

	// ErrCdnHTTPError wraps a non-2xx response from the CDN HTTP path.
	ErrCdnHTTPError = errors.New("streamerr: cdn http error")
)

// CdnHTTPError carries the HTTP status code for the CDN path so callers can
// branch on it while still matching errors.Is(err, ErrCdnHTTPError).
type CdnHTTPError struct {
	Status int
}

func (e *CdnHTTPError) Error() string {
	return ErrCdnHTTPError.Error()
}

func (e *CdnHTTPError) Unwrap() error {
	return ErrCdnHTTPError
}

// StreamError carries the stream_error code delivered by the channel.
type StreamError struct {
	Code int
}

func (e *StreamError) Error() string {
	return ErrStreamError.Error()
}

func (e *StreamError) Unwrap() error {
	return ErrStreamError
}
