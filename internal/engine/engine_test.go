package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/stt"
	sttmock "github.com/MrWong99/murmur/pkg/provider/stt/mock"
	"github.com/MrWong99/murmur/pkg/provider/vad"
	vadmock "github.com/MrWong99/murmur/pkg/provider/vad/mock"
)

// stubRegistry reports every model as downloaded (or none of them).
type stubRegistry struct {
	downloaded bool
}

func (r *stubRegistry) IsDownloaded(string) bool { return r.downloaded }
func (r *stubRegistry) Path(name string) (string, error) {
	return filepath.Join("testdata", name), nil
}

// stubCapture plays back scripted sample batches, then runs dry.
type stubCapture struct {
	mu      sync.Mutex
	batches [][]float32
	stopped bool
}

func (c *stubCapture) ReadSamples() []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.batches) == 0 {
		return nil
	}
	batch := c.batches[0]
	c.batches = c.batches[1:]
	return batch
}

func (c *stubCapture) Dropped() uint64 { return 0 }

func (c *stubCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

// speechPredictor scripts speech for the first speechChunks chunks and
// silence for every chunk after that.
func speechPredictor(speechChunks int) *vadmock.Predictor {
	probs := make([]float64, speechChunks+1)
	for i := range speechChunks {
		probs[i] = 0.9
	}
	probs[speechChunks] = 0.1
	return &vadmock.Predictor{Probabilities: probs}
}

// recordingCallback captures every notification and signals the terminal
// state on a channel.
type recordingCallback struct {
	mu       sync.Mutex
	partials []string
	finals   []string
	errs     []string
	silences int
	states   []State
	terminal chan State
}

func newRecordingCallback() *recordingCallback {
	return &recordingCallback{terminal: make(chan State, 2)}
}

func (c *recordingCallback) OnPartial(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partials = append(c.partials, text)
}

func (c *recordingCallback) OnFinalSegment(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finals = append(c.finals, text)
}

func (c *recordingCallback) OnSilence() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.silences++
}

func (c *recordingCallback) OnError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, message)
}

func (c *recordingCallback) OnStateChange(state State) {
	c.mu.Lock()
	c.states = append(c.states, state)
	c.mu.Unlock()
	if state.Kind == StateDone || state.Kind == StateError {
		c.terminal <- state
	}
}

func (c *recordingCallback) waitTerminal(t *testing.T) State {
	t.Helper()
	select {
	case s := <-c.terminal:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("session never reached a terminal state")
		return State{}
	}
}

func (c *recordingCallback) stateKinds() []StateKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]StateKind, len(c.states))
	for i, s := range c.states {
		kinds[i] = s.Kind
	}
	return kinds
}

func newTestEngine(t *testing.T, backend stt.Backend, capture *stubCapture, predictor vad.Predictor, opts ...Option) *Engine {
	t.Helper()
	cfg := config.Default()
	base := []Option{
		WithLoader(func(string) (stt.Backend, error) { return backend, nil }),
		WithCaptureFactory(func(audio.CaptureConfig) (CaptureSource, error) { return capture, nil }),
		WithPredictorFactory(func() vad.Predictor { return predictor }),
	}
	return New(cfg, &stubRegistry{downloaded: true}, append(base, opts...)...)
}

func speechSamples(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.3
	}
	return s
}

func TestStartListening_SpeechEpisodeProducesTranscript(t *testing.T) {
	backend := &sttmock.Backend{Texts: []string{"hello world"}}
	// 1.2 s of speech then 2 s of silence: the predictor flips after 38
	// chunks, and 47 silence chunks (1504 ms) close the episode.
	capture := &stubCapture{batches: [][]float32{
		speechSamples(19200),
		make([]float32, 32000),
	}}
	e := newTestEngine(t, backend, capture, speechPredictor(38))

	cb := newRecordingCallback()
	_, err := e.StartListening(ListenConfigFromConfig(config.Default()), cb)
	if err != nil {
		t.Fatalf("StartListening returned error: %v", err)
	}

	state := cb.waitTerminal(t)
	if state.Kind != StateDone {
		t.Fatalf("terminal state = %v, want done (message: %q)", state.Kind, state.Message)
	}
	if state.Text != "hello world" {
		t.Errorf("transcript = %q, want %q", state.Text, "hello world")
	}

	kinds := cb.stateKinds()
	want := []StateKind{StateListening, StateProcessing, StateDone}
	if len(kinds) != len(want) {
		t.Fatalf("state sequence = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("state sequence = %v, want %v", kinds, want)
		}
	}
	if len(cb.finals) != 1 || cb.finals[0] != "hello world" {
		t.Errorf("final segments = %v, want exactly one %q", cb.finals, "hello world")
	}
	if len(cb.errs) != 0 {
		t.Errorf("unexpected errors: %v", cb.errs)
	}
	if cb.silences != 1 {
		t.Errorf("silence notifications = %d, want 1", cb.silences)
	}
	if !capture.stopped {
		t.Error("capture was not stopped")
	}
	if e.IsRecording() {
		t.Error("recording flag still set after session end")
	}
}

func TestStartListening_PreSpeechRingKeepsLastSecond(t *testing.T) {
	backend := &sttmock.Backend{Texts: []string{"after the pause"}}

	// 2.5 s of sub-threshold audio before any speech: the pre-speech ring
	// must retain exactly the trailing 16000 samples, oldest dropped first,
	// and feed them into the session ahead of the speech audio.
	early := make([]float32, 20000)
	late := make([]float32, 20000)
	late[3999] = 0.5  // newest sample the ring must drop
	late[4000] = 0.25 // oldest sample the ring must keep
	late[19999] = 0.4
	speech := speechSamples(19200)
	speech[0] = 0.75

	capture := &stubCapture{batches: [][]float32{
		early,
		late,
		speech,
		make([]float32, 32000),
	}}

	// The two silence batches yield 78 chunks (512 samples each, remainders
	// carried over), the speech batch 37, then silence repeats until 47
	// chunks (1504 ms) close the episode.
	var probs []float64
	for range 78 {
		probs = append(probs, 0.1)
	}
	for range 37 {
		probs = append(probs, 0.9)
	}
	probs = append(probs, 0.1)
	e := newTestEngine(t, backend, capture, &vadmock.Predictor{Probabilities: probs})

	cb := newRecordingCallback()
	if _, err := e.StartListening(ListenConfigFromConfig(config.Default()), cb); err != nil {
		t.Fatalf("StartListening returned error: %v", err)
	}
	if state := cb.waitTerminal(t); state.Kind != StateDone {
		t.Fatalf("terminal state = %v, want done (message: %q)", state.Kind, state.Message)
	}

	if len(backend.Calls) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(backend.Calls))
	}
	got := backend.Calls[0].Samples
	if want := 16000 + len(speech); len(got) != want {
		t.Fatalf("backend received %d samples, want %d (1 s pre-speech + speech)", len(got), want)
	}
	if got[0] != 0.25 {
		t.Errorf("first pre-speech sample = %v, want 0.25 (oldest retained)", got[0])
	}
	if got[15999] != 0.4 {
		t.Errorf("last pre-speech sample = %v, want 0.4", got[15999])
	}
	if got[16000] != 0.75 {
		t.Errorf("sample after pre-speech = %v, want 0.75 (first speech sample)", got[16000])
	}
}

func TestStartListening_ImmediateStopReturnsEmptyTranscript(t *testing.T) {
	backend := &sttmock.Backend{Texts: []string{"should not be used"}}
	capture := &stubCapture{}
	e := newTestEngine(t, backend, capture, speechPredictor(0))

	cb := newRecordingCallback()
	handle, err := e.StartListening(ListenConfigFromConfig(config.Default()), cb)
	if err != nil {
		t.Fatalf("StartListening returned error: %v", err)
	}
	handle.Stop()

	state := cb.waitTerminal(t)
	if state.Kind != StateDone {
		t.Fatalf("terminal state = %v, want done", state.Kind)
	}
	if state.Text != "" {
		t.Errorf("transcript = %q, want empty", state.Text)
	}
	if len(cb.finals) != 0 {
		t.Errorf("final segments = %v, want none", cb.finals)
	}
	if len(backend.Calls) != 0 {
		t.Errorf("backend saw %d inference calls, want 0", len(backend.Calls))
	}
}

func TestStartListening_MaxDurationExpires(t *testing.T) {
	backend := &sttmock.Backend{}
	e := newTestEngine(t, backend, &stubCapture{}, speechPredictor(0))

	lc := ListenConfigFromConfig(config.Default())
	lc.MaxDuration = 50 * time.Millisecond

	cb := newRecordingCallback()
	if _, err := e.StartListening(lc, cb); err != nil {
		t.Fatalf("StartListening returned error: %v", err)
	}
	state := cb.waitTerminal(t)
	if state.Kind != StateDone || state.Text != "" {
		t.Errorf("terminal = %+v, want empty done", state)
	}
}

func TestStartListening_RejectsConcurrentSessions(t *testing.T) {
	backend := &sttmock.Backend{}
	e := newTestEngine(t, backend, &stubCapture{}, speechPredictor(0))

	cb := newRecordingCallback()
	lc := ListenConfigFromConfig(config.Default())
	handle, err := e.StartListening(lc, cb)
	if err != nil {
		t.Fatalf("first StartListening returned error: %v", err)
	}

	if _, err := e.StartListening(lc, newRecordingCallback()); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second StartListening error = %v, want ErrAlreadyRecording", err)
	}

	handle.Stop()
	cb.waitTerminal(t)
}

func TestStartListening_NoModel(t *testing.T) {
	cfg := config.Default()
	e := New(cfg, &stubRegistry{downloaded: false},
		WithLoader(func(string) (stt.Backend, error) { return &sttmock.Backend{}, nil }),
	)

	_, err := e.StartListening(ListenConfigFromConfig(cfg), newRecordingCallback())
	if !errors.Is(err, ErrNoModel) {
		t.Fatalf("StartListening error = %v, want ErrNoModel", err)
	}
	if e.IsRecording() {
		t.Error("recording flag set after rejected start")
	}
}

func TestStartListening_LoadFailureReportsError(t *testing.T) {
	wantErr := errors.New("corrupt weights")
	cfg := config.Default()
	e := New(cfg, &stubRegistry{downloaded: true},
		WithLoader(func(string) (stt.Backend, error) { return nil, wantErr }),
		WithCaptureFactory(func(audio.CaptureConfig) (CaptureSource, error) { return &stubCapture{}, nil }),
	)

	cb := newRecordingCallback()
	if _, err := e.StartListening(ListenConfigFromConfig(cfg), cb); err != nil {
		t.Fatalf("StartListening returned error: %v", err)
	}
	state := cb.waitTerminal(t)
	if state.Kind != StateError {
		t.Fatalf("terminal state = %v, want error", state.Kind)
	}
	if e.IsRecording() {
		t.Error("recording flag stuck after load failure")
	}
	// The engine can retry on the next session.
	if !e.IsModelAvailable() {
		t.Error("model should still be available on disk")
	}
}

func TestStartListening_PanicStillReportsTerminalState(t *testing.T) {
	cfg := config.Default()
	e := New(cfg, &stubRegistry{downloaded: true},
		WithLoader(func(string) (stt.Backend, error) { return &sttmock.Backend{}, nil }),
		WithCaptureFactory(func(audio.CaptureConfig) (CaptureSource, error) {
			panic("device exploded")
		}),
	)

	cb := newRecordingCallback()
	if _, err := e.StartListening(ListenConfigFromConfig(cfg), cb); err != nil {
		t.Fatalf("StartListening returned error: %v", err)
	}
	state := cb.waitTerminal(t)
	if state.Kind != StateError {
		t.Fatalf("terminal state = %v, want error", state.Kind)
	}
	if e.IsRecording() {
		t.Error("recording flag stuck after panic")
	}
}

func TestLazyLoadHappensOncePerModel(t *testing.T) {
	var loads int
	backend := &sttmock.Backend{}
	cfg := config.Default()
	e := New(cfg, &stubRegistry{downloaded: true},
		WithLoader(func(string) (stt.Backend, error) {
			loads++
			return backend, nil
		}),
		WithCaptureFactory(func(audio.CaptureConfig) (CaptureSource, error) { return &stubCapture{}, nil }),
		WithPredictorFactory(func() vad.Predictor { return speechPredictor(0) }),
	)

	for i := 0; i < 2; i++ {
		cb := newRecordingCallback()
		handle, err := e.StartListening(ListenConfigFromConfig(cfg), cb)
		if err != nil {
			t.Fatalf("session %d: StartListening returned error: %v", i, err)
		}
		handle.Stop()
		cb.waitTerminal(t)
	}

	if loads != 1 {
		t.Errorf("model loaded %d times across two sessions, want 1", loads)
	}
}

func TestSessionHandle_StopIsIdempotent(t *testing.T) {
	h := &SessionHandle{}
	if !h.IsActive() {
		t.Error("fresh handle should be active")
	}
	h.Stop()
	h.Stop()
	if h.IsActive() {
		t.Error("handle still active after Stop")
	}
}

func TestSwitchModel(t *testing.T) {
	backend := &sttmock.Backend{}
	cfg := config.Default()
	path := filepath.Join(t.TempDir(), "config.yaml")
	e := New(cfg, &stubRegistry{downloaded: true},
		WithLoader(func(string) (stt.Backend, error) { return backend, nil }),
		WithConfigPath(path),
	)

	if err := e.LoadModel(t.Context()); err != nil {
		t.Fatalf("LoadModel returned error: %v", err)
	}
	if !e.IsModelLoaded() {
		t.Fatal("model not loaded after LoadModel")
	}

	if err := e.SwitchModel("small.en"); err != nil {
		t.Fatalf("SwitchModel returned error: %v", err)
	}
	if e.IsModelLoaded() {
		t.Error("backend still resident after switch; should load lazily")
	}
	if !backend.Closed {
		t.Error("previous backend was not closed on switch")
	}
	if got := e.Config().Model; got != "small.en" {
		t.Errorf("configured model = %q, want %q", got, "small.en")
	}

	persisted, err := config.Load(path)
	if err != nil {
		t.Fatalf("loading persisted config: %v", err)
	}
	if persisted.Model != "small.en" {
		t.Errorf("persisted model = %q, want %q", persisted.Model, "small.en")
	}
}

func TestSwitchModel_RejectedWhileRecording(t *testing.T) {
	backend := &sttmock.Backend{}
	e := newTestEngine(t, backend, &stubCapture{}, speechPredictor(0))

	cb := newRecordingCallback()
	handle, err := e.StartListening(ListenConfigFromConfig(config.Default()), cb)
	if err != nil {
		t.Fatalf("StartListening returned error: %v", err)
	}
	if err := e.SwitchModel("small.en"); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("SwitchModel error = %v, want ErrAlreadyRecording", err)
	}
	handle.Stop()
	cb.waitTerminal(t)
}

func TestSwitchModel_UnknownModel(t *testing.T) {
	e := New(config.Default(), &stubRegistry{downloaded: false})
	if err := e.SwitchModel("imaginary"); !errors.Is(err, ErrNoModel) {
		t.Errorf("SwitchModel error = %v, want ErrNoModel", err)
	}
}

func TestUnloadModel(t *testing.T) {
	backend := &sttmock.Backend{}
	e := New(config.Default(), &stubRegistry{downloaded: true},
		WithLoader(func(string) (stt.Backend, error) { return backend, nil }),
	)

	if err := e.LoadModel(t.Context()); err != nil {
		t.Fatalf("LoadModel returned error: %v", err)
	}
	e.UnloadModel()
	if e.IsModelLoaded() {
		t.Error("model still loaded after UnloadModel")
	}
	if !backend.Closed {
		t.Error("backend not closed on unload")
	}
	// Unloading twice is a no-op.
	e.UnloadModel()
}

func TestStateKindString(t *testing.T) {
	tests := []struct {
		kind StateKind
		want string
	}{
		{StateListening, "listening"},
		{StateProcessing, "processing"},
		{StateDone, "done"},
		{StateError, "error"},
		{StateKind(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("StateKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestListenConfigFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Language = "de"
	cfg.MaxDurationSecs = 60
	cfg.Mode = config.ModeStream

	lc := ListenConfigFromConfig(cfg)
	if lc.Language != "de" {
		t.Errorf("Language = %q, want de", lc.Language)
	}
	if lc.MaxDuration != 60*time.Second {
		t.Errorf("MaxDuration = %v, want 60s", lc.MaxDuration)
	}
	if lc.Mode != config.ModeStream {
		t.Errorf("Mode = %q, want stream", lc.Mode)
	}
	if lc.Stream.StepMS != cfg.Stream.StepMS {
		t.Errorf("Stream.StepMS = %d, want %d", lc.Stream.StepMS, cfg.Stream.StepMS)
	}
}

var _ fmt.Stringer = StateListening
