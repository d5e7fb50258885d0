package handler

import "github.com/arifainchtein/librespot-go/internal/metadata"

// AuditRecorder mirrors handler commands and lifecycle events to an audit
// trail. internal/audit.Logger satisfies this directly.
type AuditRecorder interface {
	RecordCommand(trackID metadata.TrackID, command string, resultState State)
	RecordEvent(trackID metadata.TrackID, event string, err error)
}

// MetricsRecorder mirrors handler activity to Prometheus
// (handler_commands_total, handler_state, handler_state_transitions_total).
// internal/metrics.Metrics satisfies this directly.
type MetricsRecorder interface {
	IncCommand(command string)
	SetState(handlerID string, state State)
	IncStateTransition(from, to State)
}

// nopAuditRecorder and nopMetricsRecorder let a Handler be built without
// wiring either collaborator, e.g. in unit tests exercising only the
// state machine.
type nopAuditRecorder struct{}

func (nopAuditRecorder) RecordCommand(metadata.TrackID, string, State) {}
func (nopAuditRecorder) RecordEvent(metadata.TrackID, string, error)   {}

type nopMetricsRecorder struct{}

func (nopMetricsRecorder) IncCommand(string)             {}
func (nopMetricsRecorder) SetState(string, State)        {}
func (nopMetricsRecorder) IncStateTransition(State, State) {}
