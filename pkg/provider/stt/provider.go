// Package stt defines the Backend interface for speech-to-text engines.
//
// A backend wraps a local recognition model (e.g. whisper.cpp) behind a
// narrow transcribe contract: float32 mono 16 kHz samples in, text out.
// Loading a backend is expensive (seconds) and must happen off any
// latency-sensitive thread; inference is synchronous and CPU/accelerator
// bound.
//
// Backends are NOT safe for concurrent use. The engine serialises every
// access through a single mutual-exclusion gate, so an implementation may
// assume one call at a time.
package stt

import "errors"

// ErrNotLoaded is returned when inference is requested but no backend is
// resident in memory.
var ErrNotLoaded = errors.New("stt: no backend loaded")

// Segment is one unit of transcribed text. Created by a capture session,
// consumed once by the engine to notify the caller; never mutated after
// creation.
type Segment struct {
	// Text is the transcribed speech content, whitespace-trimmed.
	Text string

	// IsFinal indicates whether this segment is committed. Interim segments
	// from sliding-window inference may be superseded by later windows.
	IsFinal bool
}

// Token is one recognition token with its backend-specific ID. Sliding-window
// sessions carry the final segment's tokens into the next inference call as
// context, improving continuity across overlapping windows.
type Token struct {
	ID   int
	Text string
}

// Backend is the abstraction over a loaded recognition model.
type Backend interface {
	// Transcribe runs batch inference over the accumulated samples (mono
	// float32 at 16 kHz) and returns the recognised text. language is a
	// two-letter hint ("en") or "auto".
	Transcribe(samples []float32, language string) (string, error)

	// TranscribeWindow runs inference over one sliding window. prior carries
	// context tokens from the previous window; the returned tokens are the
	// context to carry into the next call.
	TranscribeWindow(samples []float32, prior []Token, language string) (string, []Token, error)

	// Close releases the model's memory. The backend is unusable afterwards.
	// Calling Close more than once is safe.
	Close() error
}

// Loader constructs a Backend from a model directory. Implementations are
// expected to be slow; callers must not invoke a Loader from a thread that
// needs to stay responsive.
type Loader func(modelDir string) (Backend, error)

// LoadedBackend pairs a resident backend with the model name it was loaded
// from, so lazy loading can detect a configured-model change.
type LoadedBackend struct {
	ModelName string
	Backend   Backend
}
