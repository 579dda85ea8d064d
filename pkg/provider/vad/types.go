package vad

// Event is the voice activity detection result for a single audio chunk.
type Event struct {
	// Type is the detection result.
	Type EventType

	// Probability is the speech probability score (0.0–1.0) reported by the
	// predictor for this chunk.
	Probability float64
}

// EventType enumerates VAD detection states. Exactly one event is produced
// per processed chunk.
type EventType int

const (
	// EventSpeechStart indicates speech has just begun.
	EventSpeechStart EventType = iota

	// EventSpeechContinue indicates ongoing speech, including short pauses
	// inside the silence grace period.
	EventSpeechContinue

	// EventSpeechEnd indicates a speech episode has just ended. Emitted at
	// most once per episode, and only if the episode met the configured
	// minimum duration.
	EventSpeechEnd

	// EventSilence indicates no speech detected.
	EventSilence
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case EventSpeechStart:
		return "speech_start"
	case EventSpeechContinue:
		return "speech_continue"
	case EventSpeechEnd:
		return "speech_end"
	case EventSilence:
		return "silence"
	default:
		return "unknown"
	}
}
