package session

import "strings"

// hallucinationTokens are texts Whisper is known to emit over silence or
// background noise. Matching is exact after trimming and lowercasing, so
// real speech that merely contains brackets passes through.
var hallucinationTokens = map[string]struct{}{
	"[blank_audio]": {},
	"[music]":       {},
	"[inaudible]":   {},
	"[silence]":     {},
	"[no speech]":   {},
	"[applause]":    {},
	"[laughter]":    {},
	"(music)":       {},
	"(silence)":     {},
	"(laughter)":    {},
	"(applause)":    {},
	"(no speech)":   {},
	"(blank audio)": {},
}

// IsHallucination reports whether text is a known ASR hallucination token.
func IsHallucination(text string) bool {
	_, ok := hallucinationTokens[strings.ToLower(strings.TrimSpace(text))]
	return ok
}
