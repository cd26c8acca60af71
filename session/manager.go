// Package session implements the live transcription session: one client
// audio stream in, one recognition event stream in, one client message
// stream out, and a persistence sink for finalized segments.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"verba.town/stt"
	"verba.town/wire"
)

var ErrSessionClosed = errors.New("session is closed")

// State is the session lifecycle. Closed and Failed are terminal; a
// finished session is never restarted, a new one is created instead.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ClientConn is the outbound half of the client connection.
type ClientConn interface {
	Send(msg wire.Message) error
	Close(code int, reason string) error
}

// Segment is one finalized transcript piece handed to the store.
type Segment struct {
	Text    string
	Speaker string
	Start   float64
	End     float64
	IsFinal bool
}

// SegmentStore durably appends finalized segments. Append failures are
// non-fatal to the session.
type SegmentStore interface {
	AppendSegment(ctx context.Context, transcriptionID string, seg Segment) error
}

// Manager owns one session's lifecycle. It is the only component that
// touches more than one of the session's streams.
type Manager struct {
	id         string
	client     ClientConn
	recognizer stt.SpeechRecognition
	store      SegmentStore
	registry   *Registry
	cfg        stt.SessionConfig
	logger     *log.Logger

	createdAt time.Time
	state     atomic.Int32

	session    stt.LiveTranscriptionSession
	finishOnce sync.Once
}

// New registers the session identifier and returns a manager in the
// connecting state. Fails with ErrDuplicateSession if an active session
// already holds the identifier.
func New(
	id string,
	client ClientConn,
	recognizer stt.SpeechRecognition,
	store SegmentStore,
	registry *Registry,
	cfg stt.SessionConfig,
	logger *log.Logger,
) (*Manager, error) {
	m := &Manager{
		id:         id,
		client:     client,
		recognizer: recognizer,
		store:      store,
		registry:   registry,
		cfg:        cfg,
		logger:     logger,
		createdAt:  time.Now(),
	}
	m.state.Store(int32(StateConnecting))

	if err := registry.Add(id, m); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manager) ID() string {
	return m.id
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) CreatedAt() time.Time {
	return m.createdAt
}

// Start opens the recognition session and begins streaming. On connect
// failure the session fails permanently: the client gets one error
// message and the channel closes with the provider-connect code.
func (m *Manager) Start(ctx context.Context) error {
	session, err := m.recognizer.Start(ctx, m.cfg)
	if err != nil {
		m.logger.Error("recognizer connect failed", "session", m.id, "error", err)
		m.fail(
			wire.CloseProviderConnect,
			fmt.Sprintf("could not connect to transcription service: %v", err),
		)
		return fmt.Errorf("start recognition session: %w", err)
	}

	m.session = session
	m.state.Store(int32(StateStreaming))
	m.logger.Info("session streaming", "session", m.id)

	m.send(wire.Status("transcription service connected, ready for audio"))

	go m.eventLoop()

	return nil
}

// SendAudio forwards one raw audio chunk to the recognition provider.
// Chunks are forwarded in call order; a send failure fails the session.
func (m *Manager) SendAudio(data []byte) error {
	if m.State() != StateStreaming {
		return ErrSessionClosed
	}

	if err := m.session.SendAudio(data); err != nil {
		m.logger.Error("audio send failed", "session", m.id, "error", err)
		m.fail(wire.CloseProviderError, "transcription service send failure")
		return fmt.Errorf("forward audio: %w", err)
	}
	return nil
}

// Close ends the session gracefully: recognizer stopped, identifier
// deregistered, client channel closed with the normal code. Idempotent,
// and a no-op after the session has already failed.
func (m *Manager) Close() {
	m.finishOnce.Do(func() {
		m.state.Store(int32(StateClosing))
		m.teardown(wire.CloseNormal, "session closed")
		m.state.Store(int32(StateClosed))
		m.logger.Info("session closed", "session", m.id)
	})
}

// Notify sends a message to the session's client if it is still live.
func (m *Manager) Notify(msg wire.Message) {
	switch m.State() {
	case StateClosed, StateFailed:
		return
	}
	m.send(msg)
}

// eventLoop services the recognition event stream, one event at a time,
// in provider emission order.
func (m *Manager) eventLoop() {
	for ev := range m.session.Events() {
		m.handleEvent(ev)
	}
	// Provider stream ended without an explicit close event.
	m.Close()
}

// handleEvent dispatches one provider event. A fault while processing a
// single event is contained: logged, and the loop moves on.
func (m *Manager) handleEvent(ev stt.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event processing fault", "session", m.id, "panic", r, "kind", ev.Kind)
		}
	}()

	switch m.State() {
	case StateClosed, StateFailed:
		return
	}

	switch ev.Kind {
	case stt.KindTranscript:
		m.handleTranscript(ev)
	case stt.KindSpeechStarted:
		m.send(wire.Notice(wire.NoticePayload{Type: "speech_started"}))
	case stt.KindUtteranceEnd:
		m.send(wire.Notice(wire.NoticePayload{Type: "utterance_end"}))
	case stt.KindError:
		m.logger.Error("provider error", "session", m.id, "description", ev.Err)
		m.fail(wire.CloseProviderError, "transcription service error: "+ev.Err)
	case stt.KindClosed:
		m.Close()
	}
}

func (m *Manager) handleTranscript(ev stt.Event) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}

	start := ev.Start
	end := ev.Start + ev.Duration

	var speaker string
	if len(ev.Words) > 0 {
		// First word's speaker stands in for the whole segment.
		speaker = fmt.Sprintf("speaker_%d", ev.Words[0].Speaker)
	}

	m.send(wire.Segment(wire.SegmentPayload{
		Text:        text,
		IsFinal:     ev.IsFinal,
		SpeechFinal: ev.SpeechFinal,
		Speaker:     speaker,
		Start:       start,
		End:         end,
	}))

	// Final or speech-final, persisted exactly once either way.
	if !ev.IsFinal && !ev.SpeechFinal {
		return
	}

	err := m.store.AppendSegment(context.Background(), m.id, Segment{
		Text:    text,
		Speaker: speaker,
		Start:   start,
		End:     end,
		IsFinal: true,
	})
	if err != nil {
		m.logger.Error("segment append failed", "session", m.id, "error", err)
		m.send(wire.Notice(wire.NoticePayload{
			Type:    "persistence_warning",
			Message: "failed to save transcript segment",
		}))
	}
}

// fail terminates the session after a fatal condition: exactly one
// error message to the client, then the channel closes with the given
// code. A no-op if the session already finished.
func (m *Manager) fail(code int, msg string) {
	m.finishOnce.Do(func() {
		m.state.Store(int32(StateFailed))
		if err := m.client.Send(wire.Error(msg)); err != nil {
			m.logger.Debug("error message not delivered", "session", m.id, "error", err)
		}
		m.teardown(code, msg)
		m.logger.Info("session failed", "session", m.id, "code", code)
	})
}

func (m *Manager) teardown(code int, reason string) {
	if m.session != nil {
		if err := m.session.Stop(); err != nil {
			m.logger.Debug("recognizer stop", "session", m.id, "error", err)
		}
	}
	m.registry.Remove(m.id, m)
	if err := m.client.Close(code, reason); err != nil {
		m.logger.Debug("client close", "session", m.id, "error", err)
	}
}

func (m *Manager) send(msg wire.Message) {
	if err := m.client.Send(msg); err != nil {
		m.logger.Debug("client send failed", "session", m.id, "type", msg.Type, "error", err)
	}
}
