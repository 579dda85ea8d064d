package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/session"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/vad"
)

const (
	// pollInterval is how long the loop sleeps when no audio is queued.
	pollInterval = 10 * time.Millisecond

	// partialInterval throttles "Recording..." progress notifications.
	partialInterval = 500 * time.Millisecond

	// preSpeechMax bounds the pre-speech ring to 1 second of audio so the
	// first phoneme of an utterance is not lost.
	preSpeechMax = session.SampleRate
)

// runPipeline runs one capture→endpointing→transcription session to
// completion and returns the transcript. Exits on a detected speech end,
// explicit stop, or max-duration expiry; the latter two take the same flush
// path.
func (e *Engine) runPipeline(ctx context.Context, sess session.Session, lc ListenConfig, cb Callback, handle *SessionHandle, bufferSeconds int) (string, error) {
	log := observe.Logger(ctx)
	cb.OnStateChange(State{Kind: StateListening})

	capture, err := e.newCapture(audio.CaptureConfig{
		BufferCapacity: bufferSeconds * session.SampleRate,
	})
	if err != nil {
		return "", err
	}
	defer func() {
		e.metrics.CaptureDrops.Add(ctx, int64(capture.Dropped()))
		capture.Stop()
	}()

	gate, err := vad.NewGate(vad.Config{
		SpeechThreshold:     lc.SpeechThreshold,
		SilenceDurationMS:   lc.SilenceDurationMS,
		MinSpeechDurationMS: lc.MinSpeechDurationMS,
		SampleRate:          session.SampleRate,
	}, e.newPredictor())
	if err != nil {
		return "", err
	}

	start := time.Now()
	lastPartial := time.Now()

	var (
		vadBuf         []float32
		preSpeech      []float32
		recorded       []float32
		speechDetected bool
	)

	finish := func() (string, error) {
		cb.OnStateChange(State{Kind: StateProcessing})
		segments, err := sess.Flush()
		if err != nil {
			return "", err
		}
		for _, seg := range segments {
			cb.OnFinalSegment(seg.Text)
		}
		e.saveWAV(lc.SaveWAVPath, recorded)
		return sess.Transcript(), nil
	}

	for {
		if !handle.IsActive() {
			log.Info("stop requested")
			return finish()
		}
		if time.Since(start) >= lc.MaxDuration {
			log.Info("max duration reached", "max", lc.MaxDuration)
			return finish()
		}

		samples := capture.ReadSamples()
		if len(samples) == 0 {
			time.Sleep(pollInterval)
			continue
		}
		if lc.SaveWAVPath != "" {
			recorded = append(recorded, samples...)
		}

		vadBuf = append(vadBuf, samples...)
		for len(vadBuf) >= vad.ChunkSize {
			chunk := vadBuf[:vad.ChunkSize]
			vadBuf = vadBuf[vad.ChunkSize:]

			event, err := gate.ProcessChunk(chunk)
			if err != nil {
				return "", fmt.Errorf("endpointing: %w", err)
			}

			switch event.Type {
			case vad.EventSpeechStart:
				speechDetected = true
				e.metrics.RecordVADEvent(ctx, event.Type.String())
				log.Debug("speech detected", "pre_speech_samples", len(preSpeech))
				// Pre-speech audio goes in first so the utterance start
				// is transcribed.
				if len(preSpeech) > 0 {
					if err := e.feedSession(sess, preSpeech, cb); err != nil {
						return "", err
					}
					preSpeech = preSpeech[:0]
				}

			case vad.EventSpeechEnd:
				if speechDetected {
					e.metrics.RecordVADEvent(ctx, event.Type.String())
					cb.OnSilence()
					log.Info("speech ended")
					return finish()
				}
			}
		}

		if speechDetected {
			if err := e.feedSession(sess, samples, cb); err != nil {
				return "", err
			}
			if time.Since(lastPartial) >= partialInterval {
				cb.OnPartial(fmt.Sprintf("Recording... (%.1fs)", sess.BufferDuration().Seconds()))
				lastPartial = time.Now()
			}
		} else {
			// Ring-buffer pre-speech audio, oldest samples dropped first.
			preSpeech = append(preSpeech, samples...)
			if len(preSpeech) > preSpeechMax {
				preSpeech = preSpeech[len(preSpeech)-preSpeechMax:]
			}
		}
	}
}

// feedSession routes audio into the session and forwards any interim
// sliding-window segments as partial notifications.
func (e *Engine) feedSession(sess session.Session, samples []float32, cb Callback) error {
	segments, err := sess.Feed(samples)
	if err != nil {
		return err
	}
	for _, seg := range segments {
		cb.OnPartial(seg.Text)
	}
	return nil
}

// saveWAV writes the session's captured audio for debugging. Failures are
// logged, never fatal.
func (e *Engine) saveWAV(path string, recorded []float32) {
	if path == "" || len(recorded) == 0 {
		return
	}
	if !strings.HasSuffix(path, ".wav") {
		path += ".wav"
	}
	if err := audio.WriteWAV(path, recorded, session.SampleRate); err != nil {
		slog.Warn("saving session audio failed", "path", path, "err", err)
		return
	}
	slog.Info("session audio saved", "path", path, "samples", len(recorded))
}
