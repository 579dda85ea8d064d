package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads the config at path, falling back to [Default] when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadFromReader decodes a YAML config from r, fills unset fields from the
// defaults and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir for %q: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %q: %w", path, err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Mode != "" && !cfg.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("mode %q is invalid; valid values: batch, stream", cfg.Mode))
	}
	if cfg.SpeechThreshold <= 0 || cfg.SpeechThreshold >= 1 {
		errs = append(errs, fmt.Errorf("speech_threshold %.2f is out of range (0, 1)", cfg.SpeechThreshold))
	}
	if cfg.MaxDurationSecs <= 0 {
		errs = append(errs, fmt.Errorf("max_duration_secs %d must be positive", cfg.MaxDurationSecs))
	}
	if cfg.SilenceDurationMS <= 0 {
		errs = append(errs, fmt.Errorf("silence_duration_ms %d must be positive", cfg.SilenceDurationMS))
	}
	if cfg.MinSpeechDurationMS < 0 {
		errs = append(errs, fmt.Errorf("min_speech_duration_ms %d must not be negative", cfg.MinSpeechDurationMS))
	}
	if cfg.Mode == ModeStream {
		if cfg.Stream.StepMS <= 0 {
			errs = append(errs, fmt.Errorf("stream.step_ms %d must be positive", cfg.Stream.StepMS))
		}
		if cfg.Stream.LengthMS < cfg.Stream.StepMS {
			errs = append(errs, fmt.Errorf("stream.length_ms %d must be at least stream.step_ms %d", cfg.Stream.LengthMS, cfg.Stream.StepMS))
		}
		if cfg.Stream.KeepMS < 0 {
			errs = append(errs, fmt.Errorf("stream.keep_ms %d must not be negative", cfg.Stream.KeepMS))
		}
	}
	if cfg.Capture.BufferSeconds <= 0 {
		errs = append(errs, fmt.Errorf("capture.buffer_seconds %d must be positive", cfg.Capture.BufferSeconds))
	}

	return errors.Join(errs...)
}
