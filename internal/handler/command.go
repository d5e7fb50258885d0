package handler

import (
	"github.com/arifainchtein/librespot-go/internal/feeder"
	"github.com/arifainchtein/librespot-go/internal/metadata"
)

type commandKind int

const (
	kindLoad commandKind = iota
	kindPlay
	kindPause
	kindSeek
	kindStop
	kindTerminate
	kindTrackEnded
)

// command is the Track Handler's single command type (Load, Play, Pause,
// Seek, Stop, Terminate), plus the internal kindTrackEnded event the
// end-of-track watcher posts back to the worker.
type command struct {
	kind commandKind

	// kindLoad
	trackID  metadata.TrackID
	play     bool
	startPos int64 // milliseconds

	// kindSeek
	seekPosMS int64

	// kindTrackEnded: identifies which Loaded Stream ended, so a stale
	// event from an already-replaced stream is ignored.
	endedStream *feeder.LoadedStream
}
