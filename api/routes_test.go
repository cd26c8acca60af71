package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"verba.town/db"
	"verba.town/wire"
)

type fakeStore struct {
	transcriptions []db.Transcription
	segments       map[string][]db.TranscriptSegment
}

func (s *fakeStore) CreateTranscription(_ context.Context, title string) (db.Transcription, error) {
	t := db.Transcription{ID: fmt.Sprintf("t%d", len(s.transcriptions)+1), Title: title}
	s.transcriptions = append(s.transcriptions, t)
	return t, nil
}

func (s *fakeStore) GetTranscription(_ context.Context, id string) (db.Transcription, error) {
	for _, t := range s.transcriptions {
		if t.ID == id {
			return t, nil
		}
	}
	return db.Transcription{}, fmt.Errorf("transcription %s: %w", id, db.ErrNotFound)
}

func (s *fakeStore) ListTranscriptions(_ context.Context) ([]db.Transcription, error) {
	return s.transcriptions, nil
}

func (s *fakeStore) ListSegments(_ context.Context, transcriptionID string) ([]db.TranscriptSegment, error) {
	return s.segments[transcriptionID], nil
}

type fakeBroadcaster struct {
	live     map[string]bool
	sentTo   []string
	messages []wire.Message
}

func (b *fakeBroadcaster) Broadcast(id string, msg wire.Message) bool {
	b.sentTo = append(b.sentTo, id)
	b.messages = append(b.messages, msg)
	return b.live[id]
}

func newTestRouter(store Store, sessions Broadcaster) *chi.Mux {
	r := chi.NewRouter()
	NewHandler(store, sessions, log.New(io.Discard)).Routes(r)
	return r
}

func TestCreateTranscription(t *testing.T) {
	store := &fakeStore{}
	r := newTestRouter(store, &fakeBroadcaster{})

	req := httptest.NewRequest(
		http.MethodPost, "/api/transcriptions/",
		strings.NewReader(`{"title": "standup"}`),
	)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body)
	}

	var resp struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Title != "standup" || resp.ID == "" {
		t.Errorf("response = %+v", resp)
	}
}

func TestCreateTranscriptionRequiresTitle(t *testing.T) {
	r := newTestRouter(&fakeStore{}, &fakeBroadcaster{})

	for _, body := range []string{`{}`, `{"title": "  "}`, `not json`} {
		req := httptest.NewRequest(
			http.MethodPost, "/api/transcriptions/", strings.NewReader(body),
		)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, w.Code, http.StatusBadRequest)
		}
	}
}

func TestGetTranscriptionNotFound(t *testing.T) {
	r := newTestRouter(&fakeStore{}, &fakeBroadcaster{})

	req := httptest.NewRequest(http.MethodGet, "/api/transcriptions/nope", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListSegmentsKeepsStoreOrder(t *testing.T) {
	store := &fakeStore{
		transcriptions: []db.Transcription{{ID: "t1", Title: "standup"}},
		segments: map[string][]db.TranscriptSegment{
			"t1": {
				{ID: "s1", Text: "good morning", Speaker: "speaker_0", StartTime: 0.0, EndTime: 1.1, IsFinal: true},
				{ID: "s2", Text: "hello", Speaker: "speaker_1", StartTime: 1.4, EndTime: 2.0, IsFinal: true},
			},
		},
	}
	r := newTestRouter(store, &fakeBroadcaster{})

	req := httptest.NewRequest(http.MethodGet, "/api/transcriptions/t1/segments", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp []struct {
		Text    string  `json:"text"`
		Speaker string  `json:"speaker"`
		Start   float64 `json:"start_time"`
		End     float64 `json:"end_time"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("got %d segments, want 2", len(resp))
	}
	if resp[0].Text != "good morning" || resp[1].Text != "hello" {
		t.Errorf("segment order = %+v", resp)
	}
	if resp[0].Speaker != "speaker_0" || resp[0].End != 1.1 {
		t.Errorf("first segment = %+v", resp[0])
	}
}

func TestSendMessageReachesLiveSession(t *testing.T) {
	store := &fakeStore{transcriptions: []db.Transcription{{ID: "t1", Title: "standup"}}}
	sessions := &fakeBroadcaster{live: map[string]bool{"t1": true}}
	r := newTestRouter(store, sessions)

	req := httptest.NewRequest(
		http.MethodPost, "/api/transcriptions/t1/message",
		strings.NewReader(`{"message": "wrapping up in five"}`),
	)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}

	var resp struct {
		Delivered bool `json:"delivered"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Delivered {
		t.Error("delivered = false, want true")
	}

	if len(sessions.sentTo) != 1 || sessions.sentTo[0] != "t1" {
		t.Fatalf("broadcast targets = %v", sessions.sentTo)
	}
	msg := sessions.messages[0]
	if msg.Type != wire.TypeStatus {
		t.Errorf("message type = %q, want %q", msg.Type, wire.TypeStatus)
	}
	if msg.Payload != "wrapping up in five" {
		t.Errorf("payload = %v", msg.Payload)
	}
}

func TestSendMessageWithoutLiveSession(t *testing.T) {
	store := &fakeStore{transcriptions: []db.Transcription{{ID: "t1", Title: "standup"}}}
	sessions := &fakeBroadcaster{}
	r := newTestRouter(store, sessions)

	req := httptest.NewRequest(
		http.MethodPost, "/api/transcriptions/t1/message",
		strings.NewReader(`{"message": "anyone there"}`),
	)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Delivered bool `json:"delivered"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Delivered {
		t.Error("delivered = true, want false")
	}
}

func TestSendMessageUnknownTranscription(t *testing.T) {
	sessions := &fakeBroadcaster{}
	r := newTestRouter(&fakeStore{}, sessions)

	req := httptest.NewRequest(
		http.MethodPost, "/api/transcriptions/nope/message",
		strings.NewReader(`{"message": "hello"}`),
	)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if len(sessions.sentTo) != 0 {
		t.Errorf("broadcast called for unknown transcription: %v", sessions.sentTo)
	}
}

func TestSendMessageRequiresBody(t *testing.T) {
	store := &fakeStore{transcriptions: []db.Transcription{{ID: "t1", Title: "standup"}}}
	r := newTestRouter(store, &fakeBroadcaster{})

	for _, body := range []string{`{}`, `{"message": "  "}`, `not json`} {
		req := httptest.NewRequest(
			http.MethodPost, "/api/transcriptions/t1/message", strings.NewReader(body),
		)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, w.Code, http.StatusBadRequest)
		}
	}
}

func TestListSegmentsUnknownTranscription(t *testing.T) {
	r := newTestRouter(&fakeStore{}, &fakeBroadcaster{})

	req := httptest.NewRequest(http.MethodGet, "/api/transcriptions/nope/segments", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
