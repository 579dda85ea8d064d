// Package energy provides an RMS-energy implementation of [vad.Predictor].
//
// It maps the root-mean-square level of each chunk onto a pseudo-probability
// with a saturating curve, tracks a slowly-adapting noise floor so steady
// background hum does not register as speech, and smooths the output across
// chunks. It needs no model files, which makes it the default predictor; a
// neural VAD can be swapped in behind the same interface.
package energy

import (
	"errors"
	"math"

	"github.com/MrWong99/murmur/pkg/provider/vad"
)

// Compile-time assertion that Predictor implements vad.Predictor.
var _ vad.Predictor = (*Predictor)(nil)

const (
	// defaultReference is the RMS level (full scale = 1.0) at which the raw
	// score reaches 0.5. Normal speech close to a microphone sits well above.
	defaultReference = 0.02

	// floorAlpha is the EMA weight for noise-floor adaptation.
	floorAlpha = 0.02

	// smoothAlpha is the EMA weight of the newest chunk in the reported
	// probability.
	smoothAlpha = 0.6
)

// Option is a functional option for configuring a Predictor.
type Option func(*Predictor)

// WithReference overrides the RMS level mapped to a raw score of 0.5.
func WithReference(rms float64) Option {
	return func(p *Predictor) { p.reference = rms }
}

// Predictor is a stateful energy-based speech probability source. It must be
// fed fixed-size chunks from a single goroutine.
type Predictor struct {
	reference  float64
	noiseFloor float64
	smoothed   float64
	primed     bool
}

// New creates a Predictor with default tuning.
func New(opts ...Option) *Predictor {
	p := &Predictor{reference: defaultReference}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Predict returns a speech probability in [0, 1] for one chunk.
func (p *Predictor) Predict(chunk []float32) (float64, error) {
	if len(chunk) == 0 {
		return 0, errors.New("energy: empty chunk")
	}

	var sum float64
	for _, s := range chunk {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(chunk)))

	// Track the noise floor only while the chunk looks quiet, so speech does
	// not drag the floor up.
	if rms < p.noiseFloor*2 || rms < p.reference/2 {
		p.noiseFloor += floorAlpha * (rms - p.noiseFloor)
	}

	level := rms - p.noiseFloor
	if level < 0 {
		level = 0
	}

	// Saturating curve: 0 at silence, 0.5 at the reference level, →1 as the
	// level grows.
	raw := (level * level) / (level*level + p.reference*p.reference)

	if !p.primed {
		p.smoothed = raw
		p.primed = true
	} else {
		p.smoothed += smoothAlpha * (raw - p.smoothed)
	}
	return p.smoothed, nil
}

// Reset clears the smoothing and noise-floor state. Only callers that retain
// one Predictor across sessions need it; the engine constructs a fresh
// Predictor per session and never calls Reset.
func (p *Predictor) Reset() {
	p.noiseFloor = 0
	p.smoothed = 0
	p.primed = false
}
