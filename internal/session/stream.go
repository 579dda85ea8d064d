package session

import (
	"strings"
	"time"

	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// StreamConfig tunes the sliding-window inference of a Stream session.
type StreamConfig struct {
	// StepMS is how much new audio must accumulate before inference runs.
	StepMS int
	// LengthMS is the window size handed to the backend.
	LengthMS int
	// KeepMS is the trailing overlap kept in the buffer after each step.
	KeepMS int
}

// DefaultStreamConfig returns the sliding window defaults: a 5 s window
// advanced every 3 s with 200 ms of overlap.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{StepMS: 3000, LengthMS: 5000, KeepMS: 200}
}

func (c StreamConfig) withDefaults() StreamConfig {
	def := DefaultStreamConfig()
	if c.StepMS <= 0 {
		c.StepMS = def.StepMS
	}
	if c.LengthMS <= 0 {
		c.LengthMS = def.LengthMS
	}
	if c.KeepMS <= 0 {
		c.KeepMS = def.KeepMS
	}
	return c
}

// Compile-time assertion that Stream implements Session.
var _ Session = (*Stream)(nil)

// Stream runs sliding-window inference while audio arrives, emitting interim
// segments on each step and final segments on Flush. The last inferred
// segment's tokens prime the next window so the decoder keeps context across
// window boundaries.
type Stream struct {
	tr       Transcriber
	language string
	cfg      StreamConfig

	buf       []float32
	committed []string
	prior     []stt.Token
	sinceStep int
}

// NewStream creates a sliding-window session. Zero config fields fall back
// to the defaults.
func NewStream(tr Transcriber, language string, cfg StreamConfig) *Stream {
	return &Stream{tr: tr, language: language, cfg: cfg.withDefaults()}
}

// Feed appends samples and runs inference once a full step has accumulated.
// Returned segments are interim (not final).
func (s *Stream) Feed(samples []float32) ([]stt.Segment, error) {
	s.buf = append(s.buf, samples...)
	s.sinceStep += len(samples)

	if s.sinceStep < s.cfg.StepMS*samplesPerMS {
		return nil, nil
	}
	s.sinceStep = 0
	return s.runInference()
}

func (s *Stream) runInference() ([]stt.Segment, error) {
	// Window over the most recent length_ms of audio.
	window := s.buf
	if length := s.cfg.LengthMS * samplesPerMS; len(window) > length {
		window = window[len(window)-length:]
	}

	text, tokens, err := s.tr.TranscribeWindow(window, s.prior, s.language)
	if err != nil {
		return nil, err
	}
	s.prior = tokens

	// Trim the buffer down to the keep_ms overlap.
	if keep := s.cfg.KeepMS * samplesPerMS; len(s.buf) > keep {
		s.buf = append(s.buf[:0], s.buf[len(s.buf)-keep:]...)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return []stt.Segment{{Text: text, IsFinal: false}}, nil
}

// Flush transcribes any remaining audio, commits it as final and clears the
// buffer.
func (s *Stream) Flush() ([]stt.Segment, error) {
	if len(s.buf) == 0 {
		return nil, nil
	}

	segments, err := s.runInference()
	if err != nil {
		return nil, err
	}

	final := segments[:0]
	for _, seg := range segments {
		if IsHallucination(seg.Text) {
			continue
		}
		seg.IsFinal = true
		s.committed = append(s.committed, seg.Text)
		final = append(final, seg)
	}

	s.buf = s.buf[:0]
	s.sinceStep = 0
	return final, nil
}

// Transcript returns all committed final segments joined with spaces.
func (s *Stream) Transcript() string {
	return strings.Join(s.committed, " ")
}

// BufferDuration reports how much audio is buffered.
func (s *Stream) BufferDuration() time.Duration {
	return bufferDuration(len(s.buf))
}
