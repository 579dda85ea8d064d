// Package whisper provides an stt.Backend backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once in [Load]; each inference creates a fresh
// whisper context from the shared model. Contexts are not thread-safe, but
// the engine serialises all Backend calls, so no additional locking is
// needed here.
package whisper

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/murmur/pkg/provider/stt"
)

const (
	// defaultThreads is the whisper.cpp inference thread count.
	defaultThreads = 4

	// minSamples pads very short inputs: whisper.cpp rejects audio shorter
	// than ~100 ms, so 200 ms leaves headroom.
	minSamples = 3200
)

// Compile-time assertion that Backend implements stt.Backend.
var _ stt.Backend = (*Backend)(nil)

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithThreads sets the whisper.cpp inference thread count. Defaults to 4.
func WithThreads(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.threads = n
		}
	}
}

// Backend implements stt.Backend using a resident whisper.cpp model.
type Backend struct {
	model   whisperlib.Model
	threads int
	closed  bool
}

// Load finds the ggml model file inside modelDir and loads it. It satisfies
// stt.Loader via a small adapter:
//
//	loader := func(dir string) (stt.Backend, error) { return whisper.Load(dir) }
func Load(modelDir string) (*Backend, error) {
	matches, err := filepath.Glob(filepath.Join(modelDir, "ggml-*.bin"))
	if err != nil {
		return nil, fmt.Errorf("whisper: scan model dir %q: %w", modelDir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("whisper: no ggml model file in %q", modelDir)
	}
	return New(matches[0])
}

// New loads the whisper.cpp model at modelPath. This is the expensive
// operation that happens once per model switch.
func New(modelPath string, opts ...Option) (*Backend, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	b := &Backend{model: model, threads: defaultThreads}
	for _, o := range opts {
		o(b)
	}
	slog.Info("whisper model loaded", "path", modelPath)
	return b, nil
}

// Transcribe runs batch inference over samples and returns the joined,
// trimmed segment texts.
func (b *Backend) Transcribe(samples []float32, language string) (string, error) {
	text, _, err := b.run(samples, nil, language)
	return text, err
}

// TranscribeWindow runs inference over one sliding window, priming the
// decoder with the prior window's tokens and returning the final segment's
// tokens for the next call.
func (b *Backend) TranscribeWindow(samples []float32, prior []stt.Token, language string) (string, []stt.Token, error) {
	return b.run(samples, prior, language)
}

func (b *Backend) run(samples []float32, prior []stt.Token, language string) (string, []stt.Token, error) {
	if b.closed || b.model == nil {
		return "", nil, stt.ErrNotLoaded
	}
	if len(samples) < minSamples {
		padded := make([]float32, minSamples)
		copy(padded, samples)
		samples = padded
	}

	// Each inference gets a fresh context; the model itself is shared.
	wctx, err := b.model.NewContext()
	if err != nil {
		return "", nil, fmt.Errorf("whisper: create context: %w", err)
	}

	wctx.SetThreads(uint(b.threads))
	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			slog.Warn("whisper: failed to set language, using default", "language", language, "err", err)
		}
	}
	if len(prior) > 0 {
		var sb strings.Builder
		for _, tok := range prior {
			sb.WriteString(tok.Text)
		}
		wctx.SetInitialPrompt(sb.String())
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	var lastTokens []stt.Token
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		lastTokens = lastTokens[:0]
		for _, tok := range segment.Tokens {
			lastTokens = append(lastTokens, stt.Token{ID: tok.Id, Text: tok.Text})
		}
	}

	return strings.Join(parts, " "), lastTokens, nil
}

// Close releases the whisper model. Safe to call more than once.
func (b *Backend) Close() error {
	if b.closed || b.model == nil {
		return nil
	}
	b.closed = true
	return b.model.Close()
}
