// Package mock provides a scripted stt.Backend for tests.
package mock

import (
	"sync"

	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// Compile-time assertion that Backend implements stt.Backend.
var _ stt.Backend = (*Backend)(nil)

// Call records one inference invocation.
type Call struct {
	Samples  []float32
	Prior    []stt.Token
	Language string
	Windowed bool
}

// Backend is a scripted stt.Backend. Texts are returned in order; when the
// script runs out, the last entry repeats. Every invocation is appended to
// Calls so tests can assert what audio reached the backend.
type Backend struct {
	mu sync.Mutex

	// Texts is the scripted sequence of transcripts.
	Texts []string
	// Tokens, if set, is returned from TranscribeWindow alongside the text.
	Tokens []stt.Token
	// Err, if set, is returned from every inference call.
	Err error
	// CloseErr, if set, is returned from Close.
	CloseErr error

	// Calls records every inference invocation in order.
	Calls  []Call
	Closed bool

	next int
}

// Transcribe returns the next scripted text.
func (b *Backend) Transcribe(samples []float32, language string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, Call{Samples: samples, Language: language})
	if b.Err != nil {
		return "", b.Err
	}
	return b.nextText(), nil
}

// TranscribeWindow returns the next scripted text plus the configured tokens.
func (b *Backend) TranscribeWindow(samples []float32, prior []stt.Token, language string) (string, []stt.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, Call{Samples: samples, Prior: prior, Language: language, Windowed: true})
	if b.Err != nil {
		return "", nil, b.Err
	}
	return b.nextText(), b.Tokens, nil
}

// Close marks the backend closed.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return b.CloseErr
}

func (b *Backend) nextText() string {
	if len(b.Texts) == 0 {
		return ""
	}
	text := b.Texts[b.next]
	if b.next < len(b.Texts)-1 {
		b.next++
	}
	return text
}
