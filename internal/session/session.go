// Package session implements the capture sessions that accumulate audio
// between speech boundaries and turn it into transcript segments. A batch
// session buffers the whole utterance and transcribes once on flush; a
// stream session runs sliding-window inference while audio is still
// arriving.
package session

import (
	"time"

	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// SampleRate is the fixed sample rate every session operates at.
const SampleRate = 16000

// samplesPerMS at 16 kHz.
const samplesPerMS = SampleRate / 1000

// Transcriber runs inference for a session. The engine's loaded backend
// satisfies it behind a lock so sessions never touch the backend
// concurrently.
type Transcriber interface {
	Transcribe(samples []float32, language string) (string, error)
	TranscribeWindow(samples []float32, prior []stt.Token, language string) (string, []stt.Token, error)
}

// Session accumulates 16 kHz mono audio and produces transcript segments.
type Session interface {
	// Feed appends samples to the session buffer. Stream sessions may run
	// inference and return interim segments; batch sessions always return
	// nil until Flush.
	Feed(samples []float32) ([]stt.Segment, error)

	// Flush transcribes any buffered audio, commits the result and clears
	// the buffer. Returned segments are final.
	Flush() ([]stt.Segment, error)

	// Transcript returns all committed final segments joined with spaces.
	Transcript() string

	// BufferDuration reports how much audio is currently buffered.
	BufferDuration() time.Duration
}

func bufferDuration(samples int) time.Duration {
	return time.Duration(samples) * time.Second / SampleRate
}
