package wire

import (
	"encoding/json"
	"testing"
)

func TestSegmentMessageJSON(t *testing.T) {
	msg := Segment(SegmentPayload{
		Text:        "hello world",
		IsFinal:     true,
		SpeechFinal: false,
		Speaker:     "speaker_0",
		Start:       0.0,
		End:         1.2,
	})

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded["type"] != "transcript_segment" {
		t.Errorf("type = %v, want transcript_segment", decoded["type"])
	}

	payload := decoded["payload"].(map[string]any)
	if payload["text"] != "hello world" {
		t.Errorf("text = %v", payload["text"])
	}
	if payload["is_final"] != true {
		t.Errorf("is_final = %v", payload["is_final"])
	}
	if payload["speech_final"] != false {
		t.Errorf("speech_final = %v", payload["speech_final"])
	}
	if payload["end"] != 1.2 {
		t.Errorf("end = %v", payload["end"])
	}
	if payload["speaker"] != "speaker_0" {
		t.Errorf("speaker = %v", payload["speaker"])
	}
}

func TestSpeakerOmittedWhenUnattributed(t *testing.T) {
	data, err := json.Marshal(Segment(SegmentPayload{Text: "x", Start: 0, End: 1}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := decoded.Payload["speaker"]; present {
		t.Error("empty speaker label serialized")
	}
}

func TestStatusAndErrorPayloadsAreStrings(t *testing.T) {
	for _, tc := range []struct {
		msg      Message
		wantType string
	}{
		{Status("ready"), TypeStatus},
		{Error("boom"), TypeError},
	} {
		data, err := json.Marshal(tc.msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var decoded struct {
			Type    string `json:"type"`
			Payload string `json:"payload"`
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.wantType, err)
		}
		if decoded.Type != tc.wantType {
			t.Errorf("type = %q, want %q", decoded.Type, tc.wantType)
		}
		if decoded.Payload == "" {
			t.Errorf("%s payload empty", tc.wantType)
		}
	}
}
