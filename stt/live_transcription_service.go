package stt

import (
	"context"
)

// EventKind tags the variants of a live transcription event stream.
type EventKind int

const (
	KindTranscript EventKind = iota
	KindSpeechStarted
	KindUtteranceEnd
	KindError
	KindClosed
)

func (k EventKind) String() string {
	switch k {
	case KindTranscript:
		return "transcript"
	case KindSpeechStarted:
		return "speech_started"
	case KindUtteranceEnd:
		return "utterance_end"
	case KindError:
		return "error"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Word is one recognized word with timing and, when diarization is
// enabled, the speaker id the provider attributed it to.
type Word struct {
	Text    string
	Start   float64
	End     float64
	Speaker int
}

// Event is one item in the ordered stream a session emits. Transcript
// events carry text and timing; error events carry a description; the
// other kinds are markers.
type Event struct {
	Kind        EventKind
	Text        string
	Start       float64
	Duration    float64
	IsFinal     bool
	SpeechFinal bool
	Words       []Word

	// Timestamp is set for speech-started events, LastWordEnd for
	// utterance-end events.
	Timestamp   float64
	LastWordEnd float64

	// Err is the provider's description for error events.
	Err string
}

// SessionConfig selects the recognition model and features for one session.
type SessionConfig struct {
	Model          string
	Language       string
	Punctuate      bool
	InterimResults bool
	Diarize        bool
}

// LiveTranscriptionSession is one open streaming connection to the
// recognition provider. Events are delivered on a single channel in
// provider emission order; the channel closes when the provider side
// closes or after Stop.
type LiveTranscriptionSession interface {
	SendAudio(data []byte) error
	Events() <-chan Event
	Stop() error
}

// SpeechRecognition opens live transcription sessions.
type SpeechRecognition interface {
	Start(ctx context.Context, cfg SessionConfig) (LiveTranscriptionSession, error)
}
