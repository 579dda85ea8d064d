// Command murmur is a push-to-talk dictation tool: it listens on the
// default microphone, detects when you stop speaking, and prints the
// transcript to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/internal/engine"
	"github.com/MrWong99/murmur/internal/health"
	"github.com/MrWong99/murmur/internal/models"
	"github.com/MrWong99/murmur/internal/observe"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	args := os.Args[1:]
	cmd := "listen"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "listen":
		return runListen(args)
	case "models":
		return runModels(args)
	case "download":
		return runDownload(args)
	case "delete":
		return runDelete(args)
	case "version":
		fmt.Println("murmur " + version)
		return 0
	case "-h", "--help", "help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "murmur: unknown command %q\n\n", cmd)
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: murmur <command> [flags]

Commands:
  listen     record one utterance and print the transcript (default)
  models     list available ASR models and their download state
  download   download a model by name
  delete     delete a downloaded model
  version    print the version

Run 'murmur <command> -h' for command flags.
`)
}

// setup loads the config (creating defaults when no file exists) and wires
// the logger. Returns the config path actually used.
func setup(configFlag string) (*config.Config, string, error) {
	path := configFlag
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("resolving config path: %w", err)
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", err
	}
	slog.SetDefault(newLogger(cfg.LogLevel))
	return cfg, path, nil
}

func newRegistry(cfg *config.Config) (*models.Registry, error) {
	dir, err := cfg.ResolveModelsDir()
	if err != nil {
		return nil, fmt.Errorf("resolving models dir: %w", err)
	}
	return models.NewRegistry(dir), nil
}

// ── listen ──────────────────────────────────────────────────────────────────

func runListen(args []string) int {
	fs := flag.NewFlagSet("listen", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	language := fs.String("language", "", "override the transcription language")
	maxDuration := fs.Duration("max-duration", 0, "override the session duration cap")
	mode := fs.String("mode", "", "transcription mode: batch or stream")
	saveWAV := fs.String("save-wav", "", "write the captured audio to this WAV file")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	fs.Parse(args)

	cfg, cfgPath, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		return 1
	}
	registry, err := newRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			slog.Error("telemetry init failed", "err", err)
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		health.New(health.ModelProbe(cfg.Model, registry)).Register(mux)
		go func() {
			slog.Info("metrics endpoint ready", "addr", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				slog.Warn("metrics server stopped", "err", err)
			}
		}()
	}

	lc := engine.ListenConfigFromConfig(cfg)
	if *language != "" {
		lc.Language = *language
	}
	if *maxDuration > 0 {
		lc.MaxDuration = *maxDuration
	}
	if *mode != "" {
		m := config.Mode(*mode)
		if !m.IsValid() {
			fmt.Fprintf(os.Stderr, "murmur: invalid mode %q, valid values: batch, stream\n", *mode)
			return 2
		}
		lc.Mode = m
	}
	lc.SaveWAVPath = *saveWAV

	eng := engine.New(cfg, registry, engine.WithConfigPath(cfgPath))
	if !eng.IsModelAvailable() {
		fmt.Fprintf(os.Stderr, "murmur: model %q is not downloaded — run: murmur download %s\n", cfg.Model, cfg.Model)
		return 1
	}

	cb := &consoleCallback{terminal: make(chan engine.State, 1)}
	handle, err := eng.StartListening(lc, cb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		return 1
	}

	// Ctrl+C ends the session and transcribes what was captured so far.
	go func() {
		<-ctx.Done()
		handle.Stop()
	}()

	state := <-cb.terminal
	if state.Kind == engine.StateError {
		fmt.Fprintf(os.Stderr, "murmur: %s\n", state.Message)
		return 1
	}
	if state.Text != "" {
		fmt.Println(state.Text)
	}
	return 0
}

// consoleCallback prints session progress to stderr and hands the terminal
// state back to the main goroutine. The transcript itself goes to stdout so
// the output can be piped.
type consoleCallback struct {
	terminal chan engine.State
}

var _ engine.Callback = (*consoleCallback)(nil)

func (c *consoleCallback) OnPartial(text string) {
	fmt.Fprintf(os.Stderr, "\r\033[K%s", text)
}

func (c *consoleCallback) OnFinalSegment(text string) {
	slog.Debug("final segment", "text", text)
}

func (c *consoleCallback) OnSilence() {
	fmt.Fprintf(os.Stderr, "\r\033[K")
}

func (c *consoleCallback) OnError(message string) {
	fmt.Fprintf(os.Stderr, "\r\033[Kerror: %s\n", message)
}

func (c *consoleCallback) OnStateChange(state engine.State) {
	switch state.Kind {
	case engine.StateListening:
		fmt.Fprintln(os.Stderr, "Listening... (Ctrl+C to stop)")
	case engine.StateProcessing:
		fmt.Fprintf(os.Stderr, "\r\033[KProcessing...\n")
	case engine.StateDone, engine.StateError:
		c.terminal <- state
	}
}

// ── models ──────────────────────────────────────────────────────────────────

func runModels(args []string) int {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	fs.Parse(args)

	cfg, _, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		return 1
	}
	registry, err := newRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		return 1
	}

	fmt.Printf("Models directory: %s\n\n", registry.Dir())
	for _, s := range registry.List() {
		marker := " "
		if s.Downloaded {
			marker = "✓"
		}
		current := ""
		if s.Name == cfg.Model {
			current = "  (configured)"
		}
		fmt.Printf("[%s] %-22s %5d MB  %s%s\n", marker, s.Name, s.SizeMB, s.Description, current)
	}
	return 0
}

// ── download ────────────────────────────────────────────────────────────────

func runDownload(args []string) int {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: murmur download <model>")
		return 2
	}
	name := fs.Arg(0)

	cfg, _, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		return 1
	}
	registry, err := newRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir, err := registry.Download(ctx, name, func(downloaded, total int64) {
		if total > 0 {
			fmt.Fprintf(os.Stderr, "\r%s: %3d%% (%d / %d MB)", name,
				downloaded*100/total, downloaded>>20, total>>20)
		} else {
			fmt.Fprintf(os.Stderr, "\r%s: %d MB", name, downloaded>>20)
		}
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		return 1
	}
	fmt.Printf("Downloaded %s to %s\n", name, dir)
	return 0
}

// ── delete ──────────────────────────────────────────────────────────────────

func runDelete(args []string) int {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: murmur delete <model>")
		return 2
	}
	name := fs.Arg(0)

	cfg, _, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		return 1
	}
	registry, err := newRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		return 1
	}

	if err := registry.Delete(name); err != nil {
		fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		return 1
	}
	fmt.Printf("Deleted %s\n", name)
	return 0
}

// ── Logger ──────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
