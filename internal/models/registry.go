// Package models holds the ASR model registry and the downloader that
// fetches model files into the local models directory. Each model lives in
// its own subdirectory so a backend can be pointed at the directory without
// knowing file names up front.
package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File is one downloadable artifact of a model.
type File struct {
	// Name is the file name inside the model directory.
	Name string
	// URL is where the file is fetched from.
	URL string
	// SHA256 is the expected hex digest. Empty skips verification.
	SHA256 string
}

// Info describes one model in the registry.
type Info struct {
	// Name identifies the model (e.g., "base.en-q5_1").
	Name string
	// SizeMB is the approximate total download size.
	SizeMB uint32
	// Description is a short human-readable summary.
	Description string
	// Files lists the artifacts that make up the model.
	Files []File
}

const hfBase = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

func whisperModel(name string, sizeMB uint32, description string) Info {
	file := "ggml-" + name + ".bin"
	return Info{
		Name:        name,
		SizeMB:      sizeMB,
		Description: description,
		Files:       []File{{Name: file, URL: hfBase + file}},
	}
}

// registry is the fixed set of known models.
var registry = []Info{
	whisperModel("tiny.en", 75, "Fastest, least accurate (English only)"),
	whisperModel("tiny.en-q5_1", 31, "Fastest, quantized (English only)"),
	whisperModel("base.en", 142, "Good balance of speed and accuracy (English only)"),
	whisperModel("base.en-q5_1", 57, "Good balance, quantized (English only)"),
	whisperModel("small.en", 466, "Higher accuracy, slower (English only)"),
	whisperModel("small.en-q5_1", 181, "Higher accuracy, quantized (English only)"),
	whisperModel("medium.en", 1500, "Highest accuracy, slowest (English only)"),
	whisperModel("large-v3-turbo-q5_0", 547, "Multilingual, fast large model (quantized)"),
}

// Registry resolves model names against a local models directory.
type Registry struct {
	dir string
}

// NewRegistry creates a registry rooted at dir. The directory is created
// lazily on first download.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir}
}

// Dir returns the models directory the registry is rooted at.
func (r *Registry) Dir() string {
	return r.dir
}

// Find looks up model info by name.
func (r *Registry) Find(name string) (Info, bool) {
	for _, m := range registry {
		if m.Name == name {
			return m, true
		}
	}
	return Info{}, false
}

// Names returns all registered model names, for error messages.
func (r *Registry) Names() []string {
	names := make([]string, len(registry))
	for i, m := range registry {
		names[i] = m.Name
	}
	return names
}

// Path returns the directory that holds (or will hold) the named model's
// files.
func (r *Registry) Path(name string) (string, error) {
	if _, ok := r.Find(name); !ok {
		return "", fmt.Errorf("models: unknown model %q, available: %s", name, strings.Join(r.Names(), ", "))
	}
	return filepath.Join(r.dir, name), nil
}

// IsDownloaded reports whether every file of the named model exists locally.
// A partially downloaded model counts as not downloaded.
func (r *Registry) IsDownloaded(name string) bool {
	m, ok := r.Find(name)
	if !ok {
		return false
	}
	dir := filepath.Join(r.dir, name)
	for _, f := range m.Files {
		if _, err := os.Stat(filepath.Join(dir, f.Name)); err != nil {
			return false
		}
	}
	return true
}

// Status pairs model info with its local download state.
type Status struct {
	Info
	Downloaded bool
}

// List returns every registered model with its download status.
func (r *Registry) List() []Status {
	out := make([]Status, len(registry))
	for i, m := range registry {
		out[i] = Status{Info: m, Downloaded: r.IsDownloaded(m.Name)}
	}
	return out
}

// Delete removes the named model's directory from disk.
func (r *Registry) Delete(name string) error {
	dir, err := r.Path(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("models: delete %q: %w", name, err)
	}
	return nil
}
