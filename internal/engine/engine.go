package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/session"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/stt"
	"github.com/MrWong99/murmur/pkg/provider/stt/whisper"
	"github.com/MrWong99/murmur/pkg/provider/vad"
	"github.com/MrWong99/murmur/pkg/provider/vad/energy"
)

// Registry resolves model names to local files. Implemented by
// [models.Registry]; the engine never downloads models itself.
type Registry interface {
	IsDownloaded(name string) bool
	Path(name string) (string, error)
}

// CaptureSource is the audio input consumed by the pipeline. Implemented by
// [audio.Capture]; tests inject scripted sources.
type CaptureSource interface {
	ReadSamples() []float32
	Dropped() uint64
	Stop()
}

// CaptureFactory opens a capture source for one session.
type CaptureFactory func(cfg audio.CaptureConfig) (CaptureSource, error)

// PredictorFactory creates a fresh speech-probability predictor per session.
type PredictorFactory func() vad.Predictor

// Option configures an [Engine].
type Option func(*Engine)

// WithLoader overrides the backend loader. Defaults to the whisper.cpp
// backend.
func WithLoader(l stt.Loader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithCaptureFactory overrides how the pipeline opens audio capture.
// Defaults to [audio.Start].
func WithCaptureFactory(f CaptureFactory) Option {
	return func(e *Engine) { e.newCapture = f }
}

// WithPredictorFactory overrides the per-session VAD predictor. Defaults to
// the energy-based predictor.
func WithPredictorFactory(f PredictorFactory) Option {
	return func(e *Engine) { e.newPredictor = f }
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithConfigPath makes SwitchModel persist the model choice to the given
// config file. Without it, switches apply in memory only.
func WithConfigPath(path string) Option {
	return func(e *Engine) { e.configPath = path }
}

// Engine owns the loaded recognition backend and the single active session.
// All exported methods are safe for concurrent use.
type Engine struct {
	mu         sync.Mutex // guards cfg
	cfg        *config.Config
	configPath string

	backendMu sync.Mutex // serialises every access to loaded
	loaded    *stt.LoadedBackend

	recording atomic.Bool

	registry     Registry
	loader       stt.Loader
	newCapture   CaptureFactory
	newPredictor PredictorFactory
	metrics      *observe.Metrics
}

// New creates an engine with the given configuration and model registry.
// No model is loaded into memory; that happens lazily on the first session
// or explicitly via [Engine.LoadModel].
func New(cfg *config.Config, registry Registry, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		registry: registry,
		loader: func(modelDir string) (stt.Backend, error) {
			return whisper.Load(modelDir)
		},
		newCapture: func(cc audio.CaptureConfig) (CaptureSource, error) {
			return audio.Start(cc)
		},
		newPredictor: func() vad.Predictor {
			return energy.New()
		},
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Config returns a copy of the current configuration.
func (e *Engine) Config() config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.cfg
}

// IsRecording reports whether a listening session is active.
func (e *Engine) IsRecording() bool {
	return e.recording.Load()
}

// IsModelLoaded reports whether a backend is resident in memory.
func (e *Engine) IsModelLoaded() bool {
	e.backendMu.Lock()
	defer e.backendMu.Unlock()
	return e.loaded != nil
}

// IsModelAvailable reports whether the configured model's files exist on
// disk. This does not mean the model is loaded into memory.
func (e *Engine) IsModelAvailable() bool {
	e.mu.Lock()
	model := e.cfg.Model
	e.mu.Unlock()
	return e.registry.IsDownloaded(model)
}

// LoadModel loads the configured model into memory. Optional:
// StartListening lazy-loads when needed.
func (e *Engine) LoadModel(ctx context.Context) error {
	e.mu.Lock()
	model := e.cfg.Model
	e.mu.Unlock()

	if !e.registry.IsDownloaded(model) {
		return ErrNoModel
	}
	dir, err := e.registry.Path(model)
	if err != nil {
		return ErrNoModel
	}

	e.backendMu.Lock()
	defer e.backendMu.Unlock()
	return e.loadLocked(ctx, model, dir)
}

// loadLocked loads the named model, replacing any resident backend.
// Caller must hold backendMu.
func (e *Engine) loadLocked(ctx context.Context, model, dir string) error {
	if e.loaded != nil {
		if err := e.loaded.Backend.Close(); err != nil {
			slog.Warn("closing previous backend", "model", e.loaded.ModelName, "err", err)
		}
		e.loaded = nil
	}

	start := time.Now()
	backend, err := e.loader(dir)
	if err != nil {
		return fmt.Errorf("engine: load model %q: %w", model, err)
	}
	e.metrics.ModelLoadDuration.Record(ctx, time.Since(start).Seconds())

	e.loaded = &stt.LoadedBackend{ModelName: model, Backend: backend}
	slog.Info("model loaded", "model", model, "took", time.Since(start))
	return nil
}

// UnloadModel drops the resident backend, freeing memory. No-op when
// nothing is loaded.
func (e *Engine) UnloadModel() {
	e.backendMu.Lock()
	defer e.backendMu.Unlock()
	if e.loaded == nil {
		return
	}
	if err := e.loaded.Backend.Close(); err != nil {
		slog.Warn("closing backend", "model", e.loaded.ModelName, "err", err)
	}
	e.loaded = nil
	slog.Info("model unloaded")
}

// SwitchModel changes the configured model and drops the resident backend.
// The new model loads lazily on the next session. Refuses while recording.
func (e *Engine) SwitchModel(name string) error {
	if e.recording.Load() {
		return ErrAlreadyRecording
	}
	if !e.registry.IsDownloaded(name) {
		return ErrNoModel
	}

	e.UnloadModel()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Model = name
	if e.configPath != "" {
		if err := config.Save(e.cfg, e.configPath); err != nil {
			return err
		}
	}
	slog.Info("switched model", "model", name)
	return nil
}

// StartListening begins a listening session and returns a cancellation
// handle. The transcript is delivered through cb; every session ends with
// exactly one Done or Error state. Returns ErrAlreadyRecording when a
// session is active and ErrNoModel when the configured model's files are
// missing.
func (e *Engine) StartListening(lc ListenConfig, cb Callback) (*SessionHandle, error) {
	if !e.recording.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRecording
	}

	e.mu.Lock()
	model := e.cfg.Model
	bufferSeconds := e.cfg.Capture.BufferSeconds
	e.mu.Unlock()

	if !e.registry.IsDownloaded(model) {
		e.recording.Store(false)
		return nil, ErrNoModel
	}
	dir, err := e.registry.Path(model)
	if err != nil {
		e.recording.Store(false)
		return nil, ErrNoModel
	}

	if lc.MaxDuration <= 0 {
		lc.MaxDuration = 30 * time.Second
	}

	handle := &SessionHandle{}
	go e.runSession(lc, cb, handle, model, dir, bufferSeconds)
	return handle, nil
}

// runSession is the supervised wrapper around one session: it guarantees
// the recording flag is cleared and exactly one terminal state reaches the
// callback, even if the pipeline panics.
func (e *Engine) runSession(lc ListenConfig, cb Callback, handle *SessionHandle, model, modelDir string, bufferSeconds int) {
	ctx, span := observe.StartSpan(context.Background(), "engine.session")
	defer span.End()

	e.metrics.ActiveSessions.Add(ctx, 1)
	terminal := false
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session panicked", "panic", r)
			if !terminal {
				e.metrics.RecordSession(ctx, "error")
				cb.OnStateChange(State{Kind: StateError, Message: fmt.Sprintf("internal error: %v", r)})
			}
		}
		e.metrics.ActiveSessions.Add(ctx, -1)
		e.recording.Store(false)
	}()

	if err := e.ensureLoaded(ctx, model, modelDir, cb); err != nil {
		slog.Warn("lazy model load failed", "model", model, "err", err)
		e.metrics.RecordSession(ctx, "error")
		terminal = true
		cb.OnStateChange(State{Kind: StateError, Message: err.Error()})
		return
	}

	sess := e.newSession(lc)
	text, err := e.runPipeline(ctx, sess, lc, cb, handle, bufferSeconds)
	if err != nil {
		slog.Warn("session failed", "err", err)
		e.metrics.RecordSession(ctx, "error")
		terminal = true
		cb.OnStateChange(State{Kind: StateError, Message: err.Error()})
		return
	}

	slog.Debug("session done", "text_len", len(text))
	e.metrics.RecordSession(ctx, "done")
	terminal = true
	cb.OnStateChange(State{Kind: StateDone, Text: text})
}

// ensureLoaded lazily loads the configured model, reporting progress via
// OnPartial. No-op when the resident backend already matches.
func (e *Engine) ensureLoaded(ctx context.Context, model, dir string, cb Callback) error {
	e.backendMu.Lock()
	defer e.backendMu.Unlock()

	if e.loaded != nil && e.loaded.ModelName == model {
		return nil
	}
	cb.OnPartial("Loading model...")
	slog.Debug("lazy-loading model", "model", model)
	return e.loadLocked(ctx, model, dir)
}

// newSession builds the capture session for the configured mode.
func (e *Engine) newSession(lc ListenConfig) session.Session {
	tr := &lockedTranscriber{e: e}
	if lc.Mode == config.ModeStream {
		return session.NewStream(tr, lc.Language, session.StreamConfig{
			StepMS:   lc.Stream.StepMS,
			LengthMS: lc.Stream.LengthMS,
			KeepMS:   lc.Stream.KeepMS,
		})
	}
	return session.NewBatch(tr, lc.Language)
}

// lockedTranscriber routes session inference through backendMu so the
// backend, which is not thread-safe, is never touched concurrently.
type lockedTranscriber struct {
	e *Engine
}

var _ session.Transcriber = (*lockedTranscriber)(nil)

func (t *lockedTranscriber) Transcribe(samples []float32, language string) (string, error) {
	t.e.backendMu.Lock()
	defer t.e.backendMu.Unlock()
	if t.e.loaded == nil {
		return "", stt.ErrNotLoaded
	}
	start := time.Now()
	text, err := t.e.loaded.Backend.Transcribe(samples, language)
	t.e.metrics.TranscriptionDuration.Record(context.Background(), time.Since(start).Seconds())
	return text, err
}

func (t *lockedTranscriber) TranscribeWindow(samples []float32, prior []stt.Token, language string) (string, []stt.Token, error) {
	t.e.backendMu.Lock()
	defer t.e.backendMu.Unlock()
	if t.e.loaded == nil {
		return "", nil, stt.ErrNotLoaded
	}
	start := time.Now()
	text, tokens, err := t.e.loaded.Backend.TranscribeWindow(samples, prior, language)
	t.e.metrics.TranscriptionDuration.Record(context.Background(), time.Since(start).Seconds())
	return text, tokens, err
}
