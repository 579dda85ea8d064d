// Package config provides the configuration schema, loader, and persistence
// for the murmur dictation engine.
package config

import (
	"os"
	"path/filepath"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Mode selects the transcription strategy for a listening session.
type Mode string

const (
	// ModeBatch buffers the whole utterance and transcribes once when
	// speech ends.
	ModeBatch Mode = "batch"

	// ModeStream runs sliding-window inference while audio arrives.
	ModeStream Mode = "stream"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeBatch || m == ModeStream
}

// Config is the root configuration structure for murmur.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// Model is the name of the ASR model transcription uses. The model is
	// loaded lazily on the first listening session.
	Model string `yaml:"model"`

	// Language is the transcription language code (e.g., "en").
	// "auto" lets the backend detect the language.
	Language string `yaml:"language"`

	// MaxDurationSecs caps how long a single listening session may run.
	MaxDurationSecs int `yaml:"max_duration_secs"`

	// SpeechThreshold is the VAD probability cutoff in (0, 1).
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// SilenceDurationMS is how long silence must persist after speech
	// before the utterance is considered finished.
	SilenceDurationMS int `yaml:"silence_duration_ms"`

	// MinSpeechDurationMS discards speech episodes shorter than this as noise.
	MinSpeechDurationMS int `yaml:"min_speech_duration_ms"`

	// Mode selects the transcription strategy.
	Mode Mode `yaml:"mode"`

	// Stream tunes the sliding window when Mode is "stream".
	Stream StreamConfig `yaml:"stream"`

	// Capture holds audio capture settings.
	Capture CaptureConfig `yaml:"capture"`

	// ModelsDir overrides where downloaded models are stored.
	// Empty means the platform cache directory.
	ModelsDir string `yaml:"models_dir"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// StreamConfig tunes sliding-window transcription.
type StreamConfig struct {
	// StepMS is how much new audio must accumulate before inference runs.
	StepMS int `yaml:"step_ms"`

	// LengthMS is the audio window size handed to the backend.
	LengthMS int `yaml:"length_ms"`

	// KeepMS is the overlap kept from the previous window.
	KeepMS int `yaml:"keep_ms"`
}

// CaptureConfig holds audio capture settings.
type CaptureConfig struct {
	// BufferSeconds sizes the capture ring buffer. Samples beyond it are
	// dropped rather than blocking the audio callback.
	BufferSeconds int `yaml:"buffer_seconds"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Model:               "base.en-q5_1",
		Language:            "en",
		MaxDurationSecs:     30,
		SpeechThreshold:     0.35,
		SilenceDurationMS:   1500,
		MinSpeechDurationMS: 250,
		Mode:                ModeBatch,
		Stream: StreamConfig{
			StepMS:   3000,
			LengthMS: 5000,
			KeepMS:   200,
		},
		Capture: CaptureConfig{
			BufferSeconds: 30,
		},
		LogLevel: LogInfo,
	}
}

// DefaultPath returns the default config file location
// (e.g., ~/.config/murmur/config.yaml).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "murmur", "config.yaml"), nil
}

// ResolveModelsDir returns cfg.ModelsDir or the platform default
// (e.g., ~/.cache/murmur/models).
func (c *Config) ResolveModelsDir() (string, error) {
	if c.ModelsDir != "" {
		return c.ModelsDir, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "murmur", "models"), nil
}
