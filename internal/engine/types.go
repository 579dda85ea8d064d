// Package engine owns the recognition-backend lifecycle and runs the
// capture→endpointing→transcription pipeline. At most one listening session
// is active at a time; [Engine.StartListening] spawns the pipeline on its
// own goroutine and returns a [SessionHandle] for cooperative cancellation.
package engine

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/MrWong99/murmur/internal/config"
)

var (
	// ErrAlreadyRecording is returned when a session is already active.
	ErrAlreadyRecording = errors.New("engine: already recording")

	// ErrNoModel is returned when the configured model is unknown or its
	// files are not downloaded. The engine never downloads on its own.
	ErrNoModel = errors.New("engine: model not available, download it first")
)

// StateKind enumerates the user-facing session states.
type StateKind int

const (
	// StateListening means audio capture is running and speech is awaited.
	StateListening StateKind = iota

	// StateProcessing means captured audio is being transcribed.
	StateProcessing

	// StateDone is the successful terminal state; State.Text holds the
	// transcript (possibly empty when no valid speech was captured).
	StateDone

	// StateError is the failing terminal state; State.Message describes it.
	StateError
)

// String returns the state kind name for logs.
func (k StateKind) String() string {
	switch k {
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// State is one user-facing session state notification. Exactly one of Text
// or Message is meaningful, depending on Kind.
type State struct {
	Kind StateKind

	// Text is the final transcript. Set only for StateDone.
	Text string

	// Message describes the failure. Set only for StateError.
	Message string
}

// Callback receives session notifications. Implementations must be safe to
// call from the pipeline goroutine; delivery order matches the pipeline's
// program order, and exactly one terminal state (Done or Error) is delivered
// per session.
type Callback interface {
	// OnPartial delivers throttled progress text while recording.
	OnPartial(text string)

	// OnFinalSegment delivers one committed transcript segment.
	OnFinalSegment(text string)

	// OnSilence fires when the endpointer closes a speech episode.
	OnSilence()

	// OnError delivers a non-fatal error notice.
	OnError(message string)

	// OnStateChange delivers session state transitions.
	OnStateChange(state State)
}

// SessionHandle cancels a running listening session. The zero value is an
// active handle.
type SessionHandle struct {
	stop atomic.Bool
}

// Stop requests cooperative cancellation. Idempotent.
func (h *SessionHandle) Stop() {
	h.stop.Store(true)
}

// IsActive reports whether the session has not been stopped.
func (h *SessionHandle) IsActive() bool {
	return !h.stop.Load()
}

// ListenConfig holds the per-session parameters.
type ListenConfig struct {
	// Language is the transcription language code.
	Language string

	// MaxDuration caps the session length; expiry uses the same exit path
	// as an explicit Stop.
	MaxDuration time.Duration

	// SilenceDurationMS is how long silence must persist to end speech.
	SilenceDurationMS int

	// MinSpeechDurationMS discards shorter speech episodes as noise.
	MinSpeechDurationMS int

	// SpeechThreshold is the VAD probability cutoff.
	SpeechThreshold float64

	// Mode selects batch or sliding-window transcription.
	Mode config.Mode

	// Stream tunes the sliding window when Mode is stream.
	Stream config.StreamConfig

	// SaveWAVPath, when set, writes the session's captured audio to a WAV
	// file after the session ends. Debugging aid.
	SaveWAVPath string
}

// ListenConfigFromConfig derives per-session parameters from the engine
// configuration.
func ListenConfigFromConfig(cfg *config.Config) ListenConfig {
	return ListenConfig{
		Language:            cfg.Language,
		MaxDuration:         time.Duration(cfg.MaxDurationSecs) * time.Second,
		SilenceDurationMS:   cfg.SilenceDurationMS,
		MinSpeechDurationMS: cfg.MinSpeechDurationMS,
		SpeechThreshold:     cfg.SpeechThreshold,
		Mode:                cfg.Mode,
		Stream:              cfg.Stream,
	}
}
