// Package audio captures microphone input and normalises it to the mono
// 16 kHz float32 stream the rest of the pipeline expects.
//
// The central type is [Capture]: it opens the default input device through
// PortAudio, downmixes whatever channel layout the device provides, resamples
// to the target rate with a phase-continuous linear interpolator, and buffers
// the result in a bounded [Ring]. The device callback never blocks — overflow
// drops samples so capture latency stays flat even when the consumer stalls.
package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// TargetSampleRate is the sample rate of the stream delivered by ReadSamples.
// Fixed at 16 kHz: every ASR backend in the registry expects it.
const TargetSampleRate = 16000

// framesPerBuffer is the device callback block size requested from PortAudio.
const framesPerBuffer = 1024

// maxCaptureChannels caps how many device channels are opened. Anything
// beyond stereo is downmixed from the first two channels.
const maxCaptureChannels = 2

var (
	// ErrNoInputDevice indicates no default input device is present.
	ErrNoInputDevice = errors.New("audio: no input device available")

	// ErrNoSupportedConfig indicates the default device reports no usable
	// sample rate or channel count.
	ErrNoSupportedConfig = errors.New("audio: no supported input config")
)

// CaptureConfig holds the parameters for a capture stream. Immutable once
// capture starts.
type CaptureConfig struct {
	// TargetSampleRate is the output rate in Hz. Zero means TargetSampleRate.
	TargetSampleRate int

	// BufferCapacity is the ring buffer size in samples. Zero means 30
	// seconds at the target rate.
	BufferCapacity int
}

// withDefaults returns cfg with zero fields replaced by defaults.
func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.TargetSampleRate <= 0 {
		c.TargetSampleRate = TargetSampleRate
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = c.TargetSampleRate * 30
	}
	return c
}

// Capture is a running microphone capture stream. Create one with [Start];
// call Stop when done. ReadSamples and Stop are safe to call from the
// consumer goroutine while the device callback produces.
type Capture struct {
	stream    *portaudio.Stream
	ring      *Ring
	resampler *Resampler
	channels  int
	running   atomic.Bool
	stopped   atomic.Bool
}

// Start opens the default input device and begins capturing. The device's
// native format is negotiated automatically; samples are downmixed to mono
// and resampled to cfg.TargetSampleRate before they reach the ring buffer.
func Start(cfg CaptureConfig) (*Capture, error) {
	cfg = cfg.withDefaults()

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: initialize portaudio: %w", err)
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil {
		portaudio.Terminate()
		return nil, ErrNoInputDevice
	}

	channels := dev.MaxInputChannels
	if channels > maxCaptureChannels {
		channels = maxCaptureChannels
	}
	deviceRate := int(dev.DefaultSampleRate)
	if channels <= 0 || deviceRate <= 0 {
		portaudio.Terminate()
		return nil, ErrNoSupportedConfig
	}

	c := &Capture{
		ring:      NewRing(cfg.BufferCapacity),
		resampler: NewResampler(deviceRate, cfg.TargetSampleRate),
		channels:  channels,
	}
	c.running.Store(true)

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(deviceRate),
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, c.onInput)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("audio: build input stream: %w", err)
	}
	c.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("audio: start input stream: %w", err)
	}

	slog.Info("audio capture started",
		"device", dev.Name,
		"device_rate", deviceRate,
		"channels", channels,
		"target_rate", cfg.TargetSampleRate,
	)
	return c, nil
}

// onInput is the PortAudio device callback. It must return quickly: downmix,
// resample, push, and never block.
func (c *Capture) onInput(in []float32) {
	if !c.running.Load() {
		return
	}
	mono := Downmix(in, c.channels)
	out := c.resampler.Process(mono)
	c.ring.Push(out)
}

// ReadSamples drains whatever is currently buffered and returns it at the
// target rate. Non-blocking; returns nil when nothing is queued.
func (c *Capture) ReadSamples() []float32 {
	return c.ring.Drain()
}

// Dropped returns how many samples have been discarded due to ring overflow.
func (c *Capture) Dropped() uint64 {
	return c.ring.Dropped()
}

// Stop halts capture and releases the device. Idempotent: repeated calls are
// no-ops.
func (c *Capture) Stop() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}
	c.running.Store(false)
	if c.stream != nil {
		if err := c.stream.Stop(); err != nil {
			slog.Warn("audio: stop stream", "err", err)
		}
		if err := c.stream.Close(); err != nil {
			slog.Warn("audio: close stream", "err", err)
		}
	}
	portaudio.Terminate()
	slog.Info("audio capture stopped", "dropped_samples", c.ring.Dropped())
}
