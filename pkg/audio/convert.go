package audio

// Downmix averages interleaved multi-channel float32 PCM into mono.
// If channels is 1 the input is returned unchanged (zero allocation).
// A trailing partial frame (fewer samples than channels) is discarded.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resampler converts a mono float32 stream from a source rate to a target
// rate using linear interpolation. The fractional read position persists
// across Process calls so the interpolation is continuous at callback
// boundaries and introduces no phase glitches.
//
// A Resampler is owned by a single producer; it is not safe for concurrent
// use.
type Resampler struct {
	ratio float64 // source samples consumed per output sample
	pos   float64 // fractional read position into the current input block
}

// NewResampler creates a resampler from srcRate to dstRate. When the rates
// match, Process passes input through unchanged.
func NewResampler(srcRate, dstRate int) *Resampler {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return &Resampler{ratio: 1}
	}
	return &Resampler{ratio: float64(srcRate) / float64(dstRate)}
}

// Process resamples one block of mono samples. The input block is assumed to
// be contiguous with the previous one.
func (r *Resampler) Process(mono []float32) []float32 {
	if r.ratio == 1 {
		return mono
	}
	if len(mono) < 2 {
		// Too short to interpolate, but the stream position still advances
		// past the consumed samples.
		r.pos -= float64(len(mono))
		if r.pos < 0 {
			r.pos = 0
		}
		return nil
	}

	out := make([]float32, 0, int(float64(len(mono))/r.ratio)+1)
	for int(r.pos) < len(mono)-1 {
		idx := int(r.pos)
		frac := float32(r.pos - float64(idx))
		out = append(out, mono[idx]*(1-frac)+mono[idx+1]*frac)
		r.pos += r.ratio
	}

	// Carry the fractional remainder into the next block.
	r.pos -= float64(len(mono))
	if r.pos < 0 {
		r.pos = 0
	}
	return out
}
