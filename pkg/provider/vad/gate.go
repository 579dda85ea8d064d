// Package vad provides the speech endpointing gate and the Predictor
// interface for frame-level speech probability backends.
//
// The gate is a hysteresis state machine: it requires sustained silence (not
// a single low-probability chunk) before it ends a speech episode, and it
// discards episodes shorter than a minimum duration as noise. It keeps no
// audio and performs no I/O — probability scoring is delegated to a
// [Predictor] — so its transitions are fully unit-testable without a device.
//
// A Gate is owned by a single pipeline goroutine; it is not safe for
// concurrent use.
package vad

import (
	"errors"
	"fmt"
)

// ChunkSize is the number of samples per processed chunk: 512 samples at
// 16 kHz, i.e. 32 ms. Predictors must be fed exactly this many samples.
const ChunkSize = 512

// Predictor scores a fixed-size audio chunk with a speech probability in
// [0, 1]. Implementations may be stateful across calls (internal smoothing);
// a single Predictor instance must only be used from one gate at a time.
type Predictor interface {
	// Predict returns the speech probability for one chunk of ChunkSize
	// mono float32 samples at the configured sample rate.
	Predict(chunk []float32) (float64, error)
}

// Config holds the endpointing parameters for a [Gate].
type Config struct {
	// SpeechThreshold is the probability above which a chunk counts as
	// speech. Range (0, 1). Default: 0.5.
	SpeechThreshold float64

	// SilenceDurationMS is how long silence must persist after speech before
	// the episode ends. Default: 1500.
	SilenceDurationMS int

	// MinSpeechDurationMS is the minimum episode length; shorter episodes
	// are discarded as noise instead of reported as speech end. Default: 250.
	MinSpeechDurationMS int

	// SampleRate is the input sample rate in Hz. Default: 16000.
	SampleRate int
}

// DefaultConfig returns the standard endpointing parameters.
func DefaultConfig() Config {
	return Config{
		SpeechThreshold:     0.5,
		SilenceDurationMS:   1500,
		MinSpeechDurationMS: 250,
		SampleRate:          16000,
	}
}

// withDefaults returns cfg with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = d.SpeechThreshold
	}
	if c.SilenceDurationMS <= 0 {
		c.SilenceDurationMS = d.SilenceDurationMS
	}
	if c.MinSpeechDurationMS <= 0 {
		c.MinSpeechDurationMS = d.MinSpeechDurationMS
	}
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	return c
}

type gateState int

const (
	stateIdle gateState = iota
	stateSpeaking
)

// Gate converts a stream of fixed-size audio chunks into endpointing events.
type Gate struct {
	cfg       Config
	predictor Predictor

	state         gateState
	speechFrames  int // chunks since the episode started
	silenceFrames int // consecutive sub-threshold chunks while speaking
	frameMS       int
}

// NewGate creates a gate that scores chunks with the given predictor.
// Zero-value config fields are replaced with defaults.
func NewGate(cfg Config, predictor Predictor) (*Gate, error) {
	if predictor == nil {
		return nil, errors.New("vad: predictor must not be nil")
	}
	cfg = cfg.withDefaults()
	if cfg.SpeechThreshold >= 1 {
		return nil, fmt.Errorf("vad: speech threshold %.2f is out of range (0, 1)", cfg.SpeechThreshold)
	}
	return &Gate{
		cfg:       cfg,
		predictor: predictor,
		frameMS:   ChunkSize * 1000 / cfg.SampleRate,
	}, nil
}

// ProcessChunk scores one chunk and advances the state machine, returning
// exactly one event. The chunk must contain exactly ChunkSize samples.
func (g *Gate) ProcessChunk(chunk []float32) (Event, error) {
	if len(chunk) != ChunkSize {
		return Event{}, fmt.Errorf("vad: chunk size %d, want %d", len(chunk), ChunkSize)
	}
	p, err := g.predictor.Predict(chunk)
	if err != nil {
		return Event{}, fmt.Errorf("vad: predict: %w", err)
	}
	return Event{Type: g.advance(p > g.cfg.SpeechThreshold), Probability: p}, nil
}

// advance applies one transition of the endpointing table.
func (g *Gate) advance(isSpeech bool) EventType {
	switch {
	case g.state == stateIdle && isSpeech:
		g.state = stateSpeaking
		g.speechFrames = 1
		g.silenceFrames = 0
		return EventSpeechStart

	case g.state == stateIdle:
		return EventSilence

	case isSpeech: // speaking
		g.speechFrames++
		g.silenceFrames = 0
		return EventSpeechContinue

	default: // speaking, sub-threshold chunk
		g.silenceFrames++
		if g.silenceFrames*g.frameMS < g.cfg.SilenceDurationMS {
			// Grace period: a short dip must not end the episode.
			return EventSpeechContinue
		}
		speechMS := g.speechFrames * g.frameMS
		g.state = stateIdle
		g.speechFrames = 0
		g.silenceFrames = 0
		if speechMS >= g.cfg.MinSpeechDurationMS {
			return EventSpeechEnd
		}
		// Too short to be speech; treat the whole episode as a false positive.
		return EventSilence
	}
}

// Reset forces the gate back to idle with all counters zeroed, for reuse
// between sessions.
func (g *Gate) Reset() {
	g.state = stateIdle
	g.speechFrames = 0
	g.silenceFrames = 0
}
