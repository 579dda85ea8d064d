package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func TestWriteWAV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.wav")
	samples := []float32{0, 0.5, -0.5, 1, -1, 2, -2} // last two clamp

	if err := WriteWAV(path, samples, TargetSampleRate); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Format.SampleRate != TargetSampleRate {
		t.Errorf("sample rate = %d, want %d", buf.Format.SampleRate, TargetSampleRate)
	}
	if buf.Format.NumChannels != 1 {
		t.Errorf("channels = %d, want 1", buf.Format.NumChannels)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}
	if buf.Data[1] != 16383 { // 0.5 * 32767, truncated
		t.Errorf("sample 1 = %d, want 16383", buf.Data[1])
	}
	if buf.Data[5] != 32767 || buf.Data[6] != -32767 {
		t.Errorf("clamped samples = %d, %d; want 32767, -32767", buf.Data[5], buf.Data[6])
	}
}
