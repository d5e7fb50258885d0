package handler

import "github.com/arifainchtein/librespot-go/internal/metadata"

// Listener receives the Track Handler's lifecycle events. Implementations
// must not block for long: the command worker calls these synchronously
// between commands.
type Listener interface {
	StartedLoading(trackID metadata.TrackID)
	FinishedLoading(trackID metadata.TrackID, posMS int64, play bool)
	LoadingError(trackID metadata.TrackID, err error)
	EndOfTrack(trackID metadata.TrackID)
	PreloadNextTrack(trackID metadata.TrackID)
}

// NopListener implements Listener with no-ops, for callers that only
// want the audit/metrics side effects.
type NopListener struct{}

func (NopListener) StartedLoading(metadata.TrackID)              {}
func (NopListener) FinishedLoading(metadata.TrackID, int64, bool) {}
func (NopListener) LoadingError(metadata.TrackID, error)          {}
func (NopListener) EndOfTrack(metadata.TrackID)                   {}
func (NopListener) PreloadNextTrack(metadata.TrackID)             {}
