package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProgressFunc receives aggregate download progress across all files of a
// model. total is 0 when the server did not report a content length.
type ProgressFunc func(downloaded, total int64)

// downloadClient is shared across downloads. No overall timeout: model files
// are large and progress is monitored through the callback instead.
var downloadClient = &http.Client{
	Transport: &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
	},
}

// Download fetches every missing file of the named model into its model
// directory and returns that directory. Files already present are kept.
// Each file is written to a temp path and renamed into place only after it
// downloaded completely and, when a digest is registered, verified.
func (r *Registry) Download(ctx context.Context, name string, progress ProgressFunc) (string, error) {
	m, ok := r.Find(name)
	if !ok {
		return "", fmt.Errorf("models: unknown model %q", name)
	}
	dir := filepath.Join(r.dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("models: create %q: %w", dir, err)
	}

	var done, total atomic.Int64
	report := func() {
		if progress != nil {
			progress(done.Load(), total.Load())
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, f := range m.Files {
		dest := filepath.Join(dir, f.Name)
		if _, err := os.Stat(dest); err == nil {
			slog.Info("model file already downloaded", "model", name, "file", f.Name)
			continue
		}
		g.Go(func() error {
			return fetchFile(ctx, f, dest, &done, &total, report)
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	slog.Info("model downloaded", "model", name, "dir", dir)
	return dir, nil
}

func fetchFile(ctx context.Context, f File, dest string, done, total *atomic.Int64, report func()) error {
	slog.Info("downloading model file", "file", f.Name, "url", f.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return fmt.Errorf("models: build request for %q: %w", f.URL, err)
	}
	resp, err := downloadClient.Do(req)
	if err != nil {
		return fmt.Errorf("models: fetch %q: %w", f.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("models: fetch %q: HTTP %s", f.URL, resp.Status)
	}
	if resp.ContentLength > 0 {
		total.Add(resp.ContentLength)
		report()
	}

	tmp := dest + ".downloading"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("models: create %q: %w", tmp, err)
	}
	defer func() {
		out.Close()
		os.Remove(tmp)
	}()

	hash := sha256.New()
	buf := make([]byte, 1<<20)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return fmt.Errorf("models: write %q: %w", tmp, err)
			}
			hash.Write(buf[:n])
			done.Add(int64(n))
			report()
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("models: read %q: %w", f.URL, readErr)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("models: close %q: %w", tmp, err)
	}

	if f.SHA256 != "" {
		if got := hex.EncodeToString(hash.Sum(nil)); got != f.SHA256 {
			return fmt.Errorf("models: checksum mismatch for %q: got %s, want %s", f.Name, got, f.SHA256)
		}
	}

	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("models: rename %q: %w", tmp, err)
	}
	return nil
}
