package session

import (
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// MaxBatchSamples caps a batch buffer at 4 minutes of 16 kHz audio. When the
// cap is hit the earliest audio wins and later samples are discarded, so a
// runaway session still transcribes what the speaker started with.
const MaxBatchSamples = 4 * 60 * SampleRate

// Compile-time assertion that Batch implements Session.
var _ Session = (*Batch)(nil)

// Batch buffers an entire utterance and transcribes it in one inference
// call on Flush.
type Batch struct {
	tr        Transcriber
	language  string
	buf       []float32
	committed []string
}

// NewBatch creates a batch session transcribing with tr in the given
// language ("" lets the backend pick).
func NewBatch(tr Transcriber, language string) *Batch {
	return &Batch{tr: tr, language: language}
}

// Feed appends samples. Batch sessions never emit interim segments.
func (b *Batch) Feed(samples []float32) ([]stt.Segment, error) {
	b.buf = append(b.buf, samples...)
	return nil, nil
}

// Flush transcribes the buffered audio and clears the buffer. Empty results
// and known hallucination tokens produce no segment.
func (b *Batch) Flush() ([]stt.Segment, error) {
	if len(b.buf) == 0 {
		slog.Warn("flush: buffer empty, skipping")
		return nil, nil
	}

	if len(b.buf) > MaxBatchSamples {
		slog.Info("truncating audio buffer",
			"from_secs", float64(len(b.buf))/SampleRate, "to_secs", 240)
		b.buf = b.buf[:MaxBatchSamples]
	}

	slog.Debug("flush: running batch inference",
		"samples", len(b.buf), "secs", float64(len(b.buf))/SampleRate)

	start := time.Now()
	text, err := b.tr.Transcribe(b.buf, b.language)
	b.buf = b.buf[:0]
	if err != nil {
		return nil, err
	}
	slog.Debug("flush: inference done", "took", time.Since(start))

	text = strings.TrimSpace(text)
	if text == "" || IsHallucination(text) {
		return nil, nil
	}

	b.committed = append(b.committed, text)
	return []stt.Segment{{Text: text, IsFinal: true}}, nil
}

// Transcript returns all committed segments joined with spaces.
func (b *Batch) Transcript() string {
	return strings.Join(b.committed, " ")
}

// BufferDuration reports how much audio is buffered.
func (b *Batch) BufferDuration() time.Duration {
	return bufferDuration(len(b.buf))
}
