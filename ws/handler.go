// Package ws is the client-facing streaming transport: binary frames in
// are raw audio, text frames are reserved, and outbound frames are JSON
// message envelopes.
package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"verba.town/db"
	"verba.town/session"
	"verba.town/stt"
	"verba.town/wire"
)

// Store is the subset of the storage collaborator the transport uses.
type Store interface {
	GetTranscription(ctx context.Context, id string) (db.Transcription, error)
	AppendSegment(ctx context.Context, transcriptionID string, params db.AppendSegmentParams) (db.TranscriptSegment, error)
}

type Handler struct {
	registry   *session.Registry
	recognizer stt.SpeechRecognition
	store      Store
	cfg        stt.SessionConfig
	logger     *log.Logger
	upgrader   websocket.Upgrader
}

func NewHandler(
	registry *session.Registry,
	recognizer stt.SpeechRecognition,
	store Store,
	cfg stt.SessionConfig,
	logger *log.Logger,
) *Handler {
	return &Handler{
		registry:   registry,
		recognizer: recognizer,
		store:      store,
		cfg:        cfg,
		logger:     logger,
		upgrader: websocket.Upgrader{
			// Authentication happens upstream of this service.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/ws/transcribe/{transcriptionID}", h.handleTranscribe)
}

func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newClientConn(conn)

	id := chi.URLParam(r, "transcriptionID")
	if id == "" {
		client.Close(wire.CloseInvalidSession, "missing transcription id")
		return
	}

	if _, err := h.store.GetTranscription(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			client.Send(wire.Error("unknown transcription id"))
			client.Close(wire.CloseInvalidSession, "unknown transcription id")
		} else {
			h.logger.Error("transcription lookup failed", "transcription", id, "error", err)
			client.Send(wire.Error("transcription lookup failed"))
			client.Close(wire.CloseInvalidSession, "transcription lookup failed")
		}
		return
	}

	mgr, err := session.New(
		id,
		client,
		h.recognizer,
		&segmentStore{store: h.store},
		h.registry,
		h.cfg,
		h.logger,
	)
	if err != nil {
		h.logger.Warn("session rejected", "transcription", id, "error", err)
		client.Send(wire.Error("an active session already exists for this transcription"))
		client.Close(wire.CloseInvalidSession, "duplicate session")
		return
	}

	h.logger.Info("session connecting", "transcription", id)

	if err := mgr.Start(r.Context()); err != nil {
		// The manager already reported the failure and closed the channel.
		return
	}

	h.readLoop(conn, mgr)
}

// readLoop pumps inbound frames until the client disconnects or the
// session ends. Client disconnect at any point tears the session down.
func (h *Handler) readLoop(conn *websocket.Conn, mgr *session.Manager) {
	defer mgr.Close()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			h.logger.Debug("client read ended", "transcription", mgr.ID(), "error", err)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if err := mgr.SendAudio(payload); err != nil {
				return
			}
		case websocket.TextMessage:
			// Reserved for future control messages.
			h.logger.Debug("ignoring text frame", "transcription", mgr.ID())
		}
	}
}

// segmentStore adapts the storage collaborator to the session's sink.
type segmentStore struct {
	store Store
}

func (s *segmentStore) AppendSegment(
	ctx context.Context,
	transcriptionID string,
	seg session.Segment,
) error {
	_, err := s.store.AppendSegment(ctx, transcriptionID, db.AppendSegmentParams{
		Text:      seg.Text,
		Speaker:   seg.Speaker,
		StartTime: seg.Start,
		EndTime:   seg.End,
		IsFinal:   seg.IsFinal,
	})
	return err
}
