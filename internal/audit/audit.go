// Package audit mirrors Track Handler commands and lifecycle events to a
// durable trail: every command a handler processes and every lifecycle
// transition it makes can be logged, batched, and shipped to a sink for
// later inspection, with sensitive key material redacted before it is
// ever written out.
package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/arifainchtein/librespot-go/internal/config"
	"github.com/arifainchtein/librespot-go/internal/handler"
	"github.com/arifainchtein/librespot-go/internal/metadata"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeCommand represents a Track Handler command (Load, Play,
	// Pause, Seek, Stop).
	EventTypeCommand EventType = "command"
	// EventTypeLifecycle represents a listener lifecycle event
	// (startedLoading, finishedLoading, loadingError, endOfTrack,
	// preloadNextTrack).
	EventTypeLifecycle EventType = "lifecycle"
)

// AuditEvent represents a single audit log event.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	TrackID   string                 `json:"track_id"`
	Name      string                 `json:"name"` // command kind or lifecycle event name
	State     string                 `json:"state,omitempty"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Logger is the interface for audit logging. It satisfies
// handler.AuditRecorder directly, so a *auditLogger can be passed as
// handler.Deps.Audit with no adapter.
type Logger interface {
	// Log logs a raw audit event.
	Log(event *AuditEvent) error

	// RecordCommand logs a Track Handler command and the state it
	// resulted in.
	RecordCommand(trackID metadata.TrackID, command string, resultState handler.State)

	// RecordEvent logs a listener lifecycle event, redacting nothing by
	// default since no file keys ever flow through the event name/error.
	RecordEvent(trackID metadata.TrackID, event string, err error)

	// GetEvents returns all buffered audit events (for testing/querying).
	GetEvents() []*AuditEvent

	// Close closes the logger and its underlying writer.
	Close() error
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	mu         sync.Mutex
	events     []*AuditEvent
	maxEvents  int
	writer     EventWriter
	redactKeys []string
}

// EventWriter is an interface for writing audit events.
type EventWriter interface {
	WriteEvent(event *AuditEvent) error
}

// NewLogger creates a new audit logger.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	return NewLoggerWithRedaction(maxEvents, writer, nil)
}

// NewLoggerWithRedaction creates a new audit logger with redaction keys.
// Callers should always include "file_key" and "audio_key" so a caller
// that accidentally stuffs a key into Metadata doesn't leak it.
func NewLoggerWithRedaction(maxEvents int, writer EventWriter, redactKeys []string) Logger {
	if writer == nil {
		writer = &defaultWriter{}
	}

	return &auditLogger{
		events:     make([]*AuditEvent, 0, maxEvents),
		maxEvents:  maxEvents,
		writer:     writer,
		redactKeys: redactKeys,
	}
}

// NewLoggerFromConfig creates a new audit logger from configuration.
func NewLoggerFromConfig(cfg config.AuditConfig) (Logger, error) {
	var writer EventWriter

	switch cfg.Sink.Type {
	case "http":
		writer = NewHTTPSink(cfg.Sink.Endpoint, cfg.Sink.Headers)
	case "file":
		writer = NewFileSink(cfg.Sink.FilePath)
	case "stdout", "":
		writer = &defaultWriter{}
	default:
		return nil, fmt.Errorf("unknown sink type: %s", cfg.Sink.Type)
	}

	if cfg.Sink.BatchSize > 0 || cfg.Sink.FlushInterval > 0 {
		writer = NewBatchSink(writer, cfg.Sink.BatchSize, cfg.Sink.FlushInterval, cfg.Sink.RetryCount, cfg.Sink.RetryBackoff)
	}

	redact := append([]string{"file_key", "audio_key"}, cfg.RedactMetadataKeys...)
	return NewLoggerWithRedaction(cfg.MaxEvents, writer, redact), nil
}

// Log logs an audit event.
func (l *auditLogger) Log(event *AuditEvent) error {
	event.Metadata = l.redactMetadata(event.Metadata)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		l.writer.WriteEvent(event)
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}

	return nil
}

// Close closes the logger and its underlying writer.
func (l *auditLogger) Close() error {
	if closer, ok := l.writer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// redactMetadata removes sensitive keys from metadata.
func (l *auditLogger) redactMetadata(metadata map[string]interface{}) map[string]interface{} {
	if len(l.redactKeys) == 0 || len(metadata) == 0 {
		return metadata
	}

	needsRedaction := false
	for _, k := range l.redactKeys {
		if _, ok := metadata[k]; ok {
			needsRedaction = true
			break
		}
	}
	if !needsRedaction {
		return metadata
	}

	clone := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		clone[k] = v
	}
	for _, key := range l.redactKeys {
		if _, ok := clone[key]; ok {
			clone[key] = "[REDACTED]"
		}
	}
	return clone
}

// RecordCommand logs a Track Handler command and the state it resulted
// in.
func (l *auditLogger) RecordCommand(trackID metadata.TrackID, command string, resultState handler.State) {
	l.Log(&AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeCommand,
		TrackID:   trackID.String(),
		Name:      command,
		State:     resultState.String(),
		Success:   true,
	})
}

// RecordEvent logs a listener lifecycle event.
func (l *auditLogger) RecordEvent(trackID metadata.TrackID, event string, err error) {
	e := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeLifecycle,
		TrackID:   trackID.String(),
		Name:      event,
		Success:   err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	l.Log(e)
}

// GetEvents returns all audit events (for testing/querying).
func (l *auditLogger) GetEvents() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*AuditEvent, len(l.events))
	copy(events, l.events)
	return events
}

// defaultWriter is a default implementation that writes to stdout as JSON.
type defaultWriter struct{}

func (w *defaultWriter) WriteEvent(event *AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	fmt.Printf("%s\n", string(data))
	return nil
}
