// Package api is the REST surface for transcriptions and their
// segments, plus a relay for pushing messages into a live session.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"verba.town/db"
	"verba.town/wire"
)

// Store is the subset of the storage collaborator the API uses.
type Store interface {
	CreateTranscription(ctx context.Context, title string) (db.Transcription, error)
	GetTranscription(ctx context.Context, id string) (db.Transcription, error)
	ListTranscriptions(ctx context.Context) ([]db.Transcription, error)
	ListSegments(ctx context.Context, transcriptionID string) ([]db.TranscriptSegment, error)
}

// Broadcaster delivers a message to the live session holding an
// identifier, if one exists.
type Broadcaster interface {
	Broadcast(id string, msg wire.Message) bool
}

type Handler struct {
	store    Store
	sessions Broadcaster
	logger   *log.Logger
}

func NewHandler(store Store, sessions Broadcaster, logger *log.Logger) *Handler {
	return &Handler{store: store, sessions: sessions, logger: logger}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/transcriptions", func(r chi.Router) {
		r.Post("/", h.createTranscription)
		r.Get("/", h.listTranscriptions)
		r.Get("/{transcriptionID}", h.getTranscription)
		r.Get("/{transcriptionID}/segments", h.listSegments)
		r.Post("/{transcriptionID}/message", h.sendMessage)
	})
}

type transcriptionJSON struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type segmentJSON struct {
	ID      string  `json:"id"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
	Start   float64 `json:"start_time"`
	End     float64 `json:"end_time"`
	IsFinal bool    `json:"is_final"`
}

func (h *Handler) createTranscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}

	t, err := h.store.CreateTranscription(r.Context(), req.Title)
	if err != nil {
		h.logger.Error("create transcription failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusCreated, toTranscriptionJSON(t))
}

func (h *Handler) listTranscriptions(w http.ResponseWriter, r *http.Request) {
	transcriptions, err := h.store.ListTranscriptions(r.Context())
	if err != nil {
		h.logger.Error("list transcriptions failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := make([]transcriptionJSON, 0, len(transcriptions))
	for _, t := range transcriptions {
		out = append(out, toTranscriptionJSON(t))
	}
	h.respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getTranscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "transcriptionID")

	t, err := h.store.GetTranscription(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "transcription not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("get transcription failed", "transcription", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, toTranscriptionJSON(t))
}

func (h *Handler) listSegments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "transcriptionID")

	if _, err := h.store.GetTranscription(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "transcription not found", http.StatusNotFound)
			return
		}
		h.logger.Error("get transcription failed", "transcription", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	segments, err := h.store.ListSegments(r.Context(), id)
	if err != nil {
		h.logger.Error("list segments failed", "transcription", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := make([]segmentJSON, 0, len(segments))
	for _, seg := range segments {
		out = append(out, segmentJSON{
			ID:      seg.ID,
			Text:    seg.Text,
			Speaker: seg.Speaker,
			Start:   seg.StartTime,
			End:     seg.EndTime,
			IsFinal: seg.IsFinal,
		})
	}
	h.respondJSON(w, http.StatusOK, out)
}

// sendMessage pushes a status message to the live session for a
// transcription, when one is connected.
func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "transcriptionID")

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetTranscription(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "transcription not found", http.StatusNotFound)
			return
		}
		h.logger.Error("get transcription failed", "transcription", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	delivered := h.sessions.Broadcast(id, wire.Status(req.Message))
	if !delivered {
		h.logger.Debug("no live session for message", "transcription", id)
	}

	h.respondJSON(w, http.StatusOK, map[string]bool{"delivered": delivered})
}

func toTranscriptionJSON(t db.Transcription) transcriptionJSON {
	return transcriptionJSON{ID: t.ID, Title: t.Title, CreatedAt: t.CreatedAt}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
