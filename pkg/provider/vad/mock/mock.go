// Package mock provides test doubles for the vad package interfaces.
//
// Use Predictor to script per-chunk speech probabilities and inspect how many
// chunks were submitted.
//
// Example:
//
//	p := &mock.Predictor{Probabilities: []float64{0.9, 0.9, 0.1}}
//	gate, _ := vad.NewGate(vad.DefaultConfig(), p)
package mock

import (
	"sync"

	"github.com/MrWong99/murmur/pkg/provider/vad"
)

// Predictor is a mock implementation of vad.Predictor.
type Predictor struct {
	mu sync.Mutex

	// Probabilities is returned one value per Predict call, in order. When
	// exhausted, Predict keeps returning the last value (or 0 if empty).
	Probabilities []float64

	// Err, if non-nil, is returned by every Predict call.
	Err error

	// Calls counts Predict invocations.
	Calls int
}

// Predict returns the next scripted probability.
func (p *Predictor) Predict(_ []float32) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	if p.Err != nil {
		return 0, p.Err
	}
	if len(p.Probabilities) == 0 {
		return 0, nil
	}
	i := p.Calls - 1
	if i >= len(p.Probabilities) {
		i = len(p.Probabilities) - 1
	}
	return p.Probabilities[i], nil
}

// Reset rewinds the script so one Predictor can serve several assertions
// within a test. Thread-safe.
func (p *Predictor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = 0
}

// Compile-time assertion that Predictor implements vad.Predictor.
var _ vad.Predictor = (*Predictor)(nil)
