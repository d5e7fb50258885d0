// Package handler implements the Track Handler (C6): a single-writer
// command queue per track that drives the Idle/Loading/Ready/Playing/
// Paused/Stopped lifecycle over a Stream Feeder-resolved Loaded Stream,
// reporting lifecycle events to a Listener and mirroring every command
// and event to audit/metrics collaborators.
package handler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arifainchtein/librespot-go/internal/feeder"
	"github.com/arifainchtein/librespot-go/internal/metadata"
	"github.com/arifainchtein/librespot-go/internal/streamerr"
)

// endOfTrackPollInterval governs how often the end-of-track watcher
// checks Stream.Position() against Stream.Length() while Playing.
const endOfTrackPollInterval = 50 * time.Millisecond

// Deps bundles a Handler's collaborators.
type Deps struct {
	ID       string // used in metrics labels and the debug snapshot
	Feeder   *feeder.Feeder
	Listener Listener
	Audit    AuditRecorder
	Metrics  MetricsRecorder
	Log      *logrus.Entry

	PreferredQuality metadata.QualityPreference
	UseCDN           bool
}

// Handler is the Track Handler (C6).
type Handler struct {
	deps Deps

	queue *commandQueue

	mu         sync.Mutex
	state      State
	trackID    metadata.TrackID
	loaded     *feeder.LoadedStream
	file       metadata.AudioFile
	audioStart int64
	volume     float64

	opMu          sync.Mutex
	cancel        context.CancelFunc
	stopRequested bool

	done chan struct{}
}

// New builds a Handler and starts its command worker goroutine.
func New(deps Deps) *Handler {
	if deps.Listener == nil {
		deps.Listener = NopListener{}
	}
	if deps.Audit == nil {
		deps.Audit = nopAuditRecorder{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetricsRecorder{}
	}
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.PreferredQuality == 0 {
		deps.PreferredQuality = metadata.Quality160
	}

	h := &Handler{
		deps:  deps,
		queue: newCommandQueue(),
		state: StateIdle,
		done:  make(chan struct{}),
	}
	go h.run()
	return h
}

// ID returns the handler's configured identifier (Deps.ID), used in
// metrics labels and the /debug/handlers snapshot.
func (h *Handler) ID() string {
	return h.deps.ID
}

// State returns the handler's current lifecycle state.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Track returns the currently loaded item, or nil if nothing is loaded.
func (h *Handler) Track() *feeder.PlayableItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loaded == nil {
		return nil
	}
	item := h.loaded.Item
	return &item
}

// Controller returns the handler's read-only time/volume surface.
func (h *Handler) Controller() Controller {
	return &controller{h: h}
}

// Stream returns the byte reader the external decoder pulls from, or nil
// if nothing is currently loaded.
func (h *Handler) Stream() io.Reader {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loaded == nil {
		return nil
	}
	return h.loaded.Stream
}

// SetVolume records the volume level the outer player context last set;
// this module does no mixing of its own.
func (h *Handler) SetVolume(v float64) {
	h.mu.Lock()
	h.volume = v
	h.mu.Unlock()
}

// Done is closed once the handler has processed Terminate and its worker
// has exited.
func (h *Handler) Done() <-chan struct{} { return h.done }

func (h *Handler) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == StateStopped
}

// SendLoad enqueues a Load command.
func (h *Handler) SendLoad(trackID metadata.TrackID, play bool, startPosMS int64) error {
	if h.isStopped() {
		return fmt.Errorf("handler: load: %w", streamerr.ErrHandlerStopped)
	}
	h.queue.push(command{kind: kindLoad, trackID: trackID, play: play, startPos: startPosMS})
	return nil
}

// SendPlay enqueues a Play command.
func (h *Handler) SendPlay() error {
	if h.isStopped() {
		return fmt.Errorf("handler: play: %w", streamerr.ErrHandlerStopped)
	}
	h.queue.push(command{kind: kindPlay})
	return nil
}

// SendPause enqueues a Pause command.
func (h *Handler) SendPause() error {
	if h.isStopped() {
		return fmt.Errorf("handler: pause: %w", streamerr.ErrHandlerStopped)
	}
	h.queue.push(command{kind: kindPause})
	return nil
}

// SendSeek enqueues a Seek command.
func (h *Handler) SendSeek(posMS int64) error {
	if h.isStopped() {
		return fmt.Errorf("handler: seek: %w", streamerr.ErrHandlerStopped)
	}
	h.queue.push(command{kind: kindSeek, seekPosMS: posMS})
	return nil
}

// SendStop enqueues a Stop command and immediately cancels any in-flight
// Load RPC/stream-open, so a Load blocked in the metadata or audio-key
// RPC is interrupted promptly instead of waiting for it to time out on
// its own.
func (h *Handler) SendStop() error {
	if h.isStopped() {
		return fmt.Errorf("handler: stop: %w", streamerr.ErrHandlerStopped)
	}
	h.cancelCurrentOp()
	h.queue.push(command{kind: kindStop})
	return nil
}

func (h *Handler) cancelCurrentOp() {
	h.opMu.Lock()
	h.stopRequested = true
	if h.cancel != nil {
		h.cancel()
	}
	h.opMu.Unlock()
}

func (h *Handler) setOpCancel(cancel context.CancelFunc) {
	h.opMu.Lock()
	h.cancel = cancel
	h.opMu.Unlock()
}

// consumeStopRequested reports whether SendStop was called since the
// last Load started, clearing the flag so the next Load starts clean.
func (h *Handler) consumeStopRequested() bool {
	h.opMu.Lock()
	defer h.opMu.Unlock()
	requested := h.stopRequested
	h.stopRequested = false
	return requested
}

// run is the single command-worker loop; it is the only goroutine that
// calls the feeder or replaces, seeks or closes the loaded stream.
func (h *Handler) run() {
	for {
		cmd, ok := h.queue.pop()
		if !ok {
			close(h.done)
			return
		}
		switch cmd.kind {
		case kindLoad:
			h.handleLoad(cmd)
		case kindPlay:
			h.handlePlay()
		case kindPause:
			h.handlePause()
		case kindSeek:
			h.handleSeek(cmd)
		case kindStop:
			h.handleStop()
		case kindTrackEnded:
			h.handleTrackEnded(cmd)
		case kindTerminate:
			close(h.done)
			return
		}
	}
}

func (h *Handler) transition(to State) {
	h.mu.Lock()
	from := h.state
	h.state = to
	h.mu.Unlock()
	if from != to {
		h.deps.Metrics.IncStateTransition(from, to)
	}
	h.deps.Metrics.SetState(h.deps.ID, to)
}

// handleLoad implements the Load transition: any existing stream is
// closed first (Load while Loading/Ready/Playing/Paused cancels and
// restarts), then the feeder resolves the new track. A Stop observed
// while blocked in the feeder call is honored without emitting
// finishedLoading.
func (h *Handler) handleLoad(cmd command) {
	h.deps.Audit.RecordCommand(cmd.trackID, "load", StateLoading)
	h.deps.Metrics.IncCommand("load")

	h.closeCurrentStream()

	h.mu.Lock()
	h.trackID = cmd.trackID
	h.mu.Unlock()

	h.transition(StateLoading)
	h.deps.Listener.StartedLoading(cmd.trackID)
	h.deps.Audit.RecordEvent(cmd.trackID, "startedLoading", nil)

	ctx, cancel := context.WithCancel(context.Background())
	h.setOpCancel(cancel)
	loaded, err := h.deps.Feeder.Load(ctx, cmd.trackID, h.deps.PreferredQuality, h.deps.UseCDN)
	h.setOpCancel(nil)
	cancel()

	if h.consumeStopRequested() {
		if loaded != nil {
			loaded.Stream.Close()
		}
		// Mid-load cancellation: no finishedLoading: the queued kindStop
		// command still owns the Stopped transition and Terminate enqueue.
		return
	}

	if err != nil {
		h.transition(StateIdle)
		h.deps.Listener.LoadingError(cmd.trackID, err)
		h.deps.Audit.RecordEvent(cmd.trackID, "loadingError", err)
		h.deps.Log.WithError(err).WithField("track_id", cmd.trackID.String()).Warn("handler: load failed")
		return
	}

	// The feeder leaves position right after the preamble/normalization
	// header, which is byte 0 of the actual audio content; start_pos (and
	// later Seek commands) are relative to that, not to the whole
	// Chunked Stream.
	audioStart := loaded.Stream.Position()

	h.mu.Lock()
	h.loaded = loaded
	h.file = loaded.File
	h.audioStart = audioStart
	h.mu.Unlock()

	loaded.Stream.Seek(audioStart + msToBytes(cmd.startPos, loaded.File))
	h.transition(StateReady)
	h.deps.Listener.FinishedLoading(cmd.trackID, cmd.startPos, cmd.play)
	h.deps.Audit.RecordEvent(cmd.trackID, "finishedLoading", nil)

	go h.watchEndOfTrack(loaded)

	if cmd.play {
		h.transition(StatePlaying)
	}
}

func (h *Handler) handlePlay() {
	h.deps.Metrics.IncCommand("play")
	h.mu.Lock()
	state := h.state
	h.mu.Unlock()
	if state != StateReady && state != StatePaused {
		return
	}
	h.transition(StatePlaying)
	h.mu.Lock()
	trackID := h.trackID
	h.mu.Unlock()
	h.deps.Audit.RecordCommand(trackID, "play", StatePlaying)
}

func (h *Handler) handlePause() {
	h.deps.Metrics.IncCommand("pause")
	h.mu.Lock()
	state := h.state
	trackID := h.trackID
	h.mu.Unlock()
	if state != StatePlaying {
		return
	}
	h.transition(StatePaused)
	h.deps.Audit.RecordCommand(trackID, "pause", StatePaused)
}

func (h *Handler) handleSeek(cmd command) {
	h.deps.Metrics.IncCommand("seek")
	h.mu.Lock()
	loaded := h.loaded
	file := h.file
	audioStart := h.audioStart
	trackID := h.trackID
	h.mu.Unlock()
	if loaded == nil {
		return
	}
	loaded.Stream.Seek(audioStart + msToBytes(cmd.seekPosMS, file))
	h.deps.Audit.RecordCommand(trackID, "seek", h.State())
}

// handleStop implements Stop's close()+Terminate sequence. It is also
// reused by handleTrackEnded, since both endOfTrack and Stop route to
// the same terminal Stopped state.
func (h *Handler) handleStop() {
	h.deps.Metrics.IncCommand("stop")
	h.mu.Lock()
	trackID := h.trackID
	h.mu.Unlock()

	h.closeCurrentStream()
	h.transition(StateStopped)
	h.deps.Audit.RecordCommand(trackID, "stop", StateStopped)
	h.queue.push(command{kind: kindTerminate})
}

func (h *Handler) handleTrackEnded(cmd command) {
	h.mu.Lock()
	staleEvent := h.loaded != cmd.endedStream || h.state == StateStopped
	trackID := h.trackID
	h.mu.Unlock()
	if staleEvent {
		return
	}

	h.deps.Listener.EndOfTrack(trackID)
	h.deps.Audit.RecordEvent(trackID, "endOfTrack", nil)
	h.deps.Listener.PreloadNextTrack(trackID)
	h.deps.Audit.RecordEvent(trackID, "preloadNextTrack", nil)

	h.handleStop()
}

func (h *Handler) closeCurrentStream() {
	h.mu.Lock()
	loaded := h.loaded
	h.loaded = nil
	h.mu.Unlock()
	if loaded != nil {
		loaded.Stream.Close()
	}
}

// watchEndOfTrack polls ls's position against its length while the
// handler is Playing, posting kindTrackEnded once playback has consumed
// the whole decrypted stream. The decoder itself is external to this
// module; polling is the simplest stand-in for the decoder's own EOF
// signal, since nothing else in this core observes Stream.Read calls.
func (h *Handler) watchEndOfTrack(ls *feeder.LoadedStream) {
	ticker := time.NewTicker(endOfTrackPollInterval)
	defer ticker.Stop()
	for range ticker.C {
		h.mu.Lock()
		current := h.loaded
		playing := h.state == StatePlaying
		stopped := h.state == StateStopped
		h.mu.Unlock()

		if stopped || current != ls {
			return
		}
		if !playing {
			continue
		}
		if ls.Stream.Position() >= ls.Stream.Length() {
			h.queue.push(command{kind: kindTrackEnded, endedStream: ls})
			return
		}
	}
}
