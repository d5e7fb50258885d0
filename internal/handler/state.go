// Package handler implements the Track Handler: a single-writer command
// queue per track that drives the Idle/Loading/Ready/Playing/Paused/
// Stopped lifecycle over a Stream Feeder-resolved Loaded Stream.
package handler

// State is one of the Track Handler's lifecycle states.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateStopped
)

// String returns the lowercase name used in logs, audit events, and the
// debug HTTP surface.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
