// Package wire defines the JSON messages sent to clients over the
// transcription websocket, and the close codes used on that channel.
package wire

// Message types.
const (
	TypeStatus            = "status"
	TypeTranscriptSegment = "transcript_segment"
	TypeEvent             = "event"
	TypeError             = "error"
)

// Close codes on the client channel. 4xxx codes are application-defined;
// 1000 is the normal websocket closure.
const (
	CloseNormal          = 1000
	CloseInvalidSession  = 4001
	CloseProviderConnect = 4002
	CloseProviderError   = 4003
)

// Message is the envelope for every outbound client frame.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// SegmentPayload carries one transcript segment, interim or final.
type SegmentPayload struct {
	Text        string  `json:"text"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Speaker     string  `json:"speaker,omitempty"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
}

// NoticePayload carries lightweight notifications such as speech_started,
// utterance_end, or persistence_warning.
type NoticePayload struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

func Status(text string) Message {
	return Message{Type: TypeStatus, Payload: text}
}

func Error(text string) Message {
	return Message{Type: TypeError, Payload: text}
}

func Segment(p SegmentPayload) Message {
	return Message{Type: TypeTranscriptSegment, Payload: p}
}

func Notice(p NoticePayload) Message {
	return Message{Type: TypeEvent, Payload: p}
}
