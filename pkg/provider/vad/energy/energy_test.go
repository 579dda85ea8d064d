package energy

import (
	"math"
	"testing"

	"github.com/MrWong99/murmur/pkg/provider/vad"
)

func sine(amplitude float64) []float32 {
	out := make([]float32, vad.ChunkSize)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*float64(i)/64))
	}
	return out
}

func TestPredictor_SilenceScoresZero(t *testing.T) {
	p := New()
	got, err := p.Predict(make([]float32, vad.ChunkSize))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got != 0 {
		t.Fatalf("probability = %v, want 0 for digital silence", got)
	}
}

func TestPredictor_LoudSpeechScoresHigh(t *testing.T) {
	p := New()
	var got float64
	for range 5 {
		var err error
		got, err = p.Predict(sine(0.3))
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
	}
	if got < 0.9 {
		t.Fatalf("probability = %v, want ≥0.9 for loud input", got)
	}
}

func TestPredictor_QuietHumScoresLow(t *testing.T) {
	p := New()
	var got float64
	for range 50 {
		var err error
		got, err = p.Predict(sine(0.002))
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
	}
	if got > 0.3 {
		t.Fatalf("probability = %v, want ≤0.3 for near-silence", got)
	}
}

func TestPredictor_SmoothingIsStateful(t *testing.T) {
	p := New()
	loud := sine(0.3)
	for range 5 {
		if _, err := p.Predict(loud); err != nil {
			t.Fatalf("Predict: %v", err)
		}
	}
	// The first silent chunk after loud input must not drop straight to 0:
	// the predictor smooths across calls.
	got, err := p.Predict(make([]float32, vad.ChunkSize))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got <= 0 {
		t.Fatalf("probability = %v, want >0 immediately after loud input", got)
	}
}

func TestPredictor_ResetClearsState(t *testing.T) {
	p := New()
	for range 5 {
		p.Predict(sine(0.3))
	}
	p.Reset()
	got, err := p.Predict(make([]float32, vad.ChunkSize))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got != 0 {
		t.Fatalf("probability after Reset = %v, want 0", got)
	}
}

func TestPredictor_EmptyChunkRejected(t *testing.T) {
	if _, err := New().Predict(nil); err == nil {
		t.Fatal("expected error for empty chunk")
	}
}
