package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
)

// DeepgramClient opens live transcription sessions against Deepgram's
// streaming websocket API.
type DeepgramClient struct {
	token  string
	logger *log.Logger
}

func NewDeepgramClient(token string, logger *log.Logger) (*DeepgramClient, error) {
	if token == "" {
		return nil, fmt.Errorf("deepgram api key is empty")
	}
	return &DeepgramClient{token: token, logger: logger}, nil
}

func (c *DeepgramClient) Start(
	ctx context.Context,
	cfg SessionConfig,
) (LiveTranscriptionSession, error) {
	cOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          cfg.Model,
		Language:       cfg.Language,
		Punctuate:      cfg.Punctuate,
		InterimResults: cfg.InterimResults,
		Diarize:        cfg.Diarize,
		SmartFormat:    true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
	}

	session := &DeepgramSession{
		events: make(chan Event, 64),
		logger: c.logger,
	}

	client, err := listen.NewWebSocket(ctx, c.token, cOptions, tOptions, session)
	if err != nil {
		return nil, fmt.Errorf("error creating LiveTranscription connection: %w", err)
	}

	session.client = client

	if !session.client.Connect() {
		return nil, fmt.Errorf("failed to connect to Deepgram")
	}

	return session, nil
}

// DeepgramSession adapts the SDK's per-event callbacks into a single
// ordered event channel. All callbacks run on the SDK's read goroutine,
// so emission order matches provider order.
type DeepgramSession struct {
	client *listen.LiveClient
	events chan Event
	logger *log.Logger

	closed   atomic.Bool
	stopOnce sync.Once
	doneOnce sync.Once
}

func (s *DeepgramSession) SendAudio(data []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("send on closed transcription session")
	}
	return s.client.WriteBinary(data)
}

func (s *DeepgramSession) Events() <-chan Event {
	return s.events
}

func (s *DeepgramSession) Stop() error {
	s.stopOnce.Do(func() {
		s.closed.Store(true)
		s.client.Stop()
	})
	return nil
}

func (s *DeepgramSession) emit(ev Event) {
	s.events <- ev
}

// finish closes the event channel. Called only from the SDK's Close
// callback, which is the last callback the SDK delivers.
func (s *DeepgramSession) finish() {
	s.doneOnce.Do(func() {
		s.closed.Store(true)
		close(s.events)
	})
}

func (s *DeepgramSession) Open(ocr *api.OpenResponse) error {
	s.logger.Info("open", "kind", "deepgram")
	return nil
}

func (s *DeepgramSession) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}

	alt := mr.Channel.Alternatives[0]

	words := make([]Word, 0, len(alt.Words))
	for _, w := range alt.Words {
		word := Word{
			Text:  w.Word,
			Start: w.Start,
			End:   w.End,
		}
		// Speaker is nil when diarization is off.
		if w.Speaker != nil {
			word.Speaker = *w.Speaker
		}
		words = append(words, word)
	}

	s.emit(Event{
		Kind:        KindTranscript,
		Text:        strings.TrimSpace(alt.Transcript),
		Start:       mr.Start,
		Duration:    mr.Duration,
		IsFinal:     mr.IsFinal,
		SpeechFinal: mr.SpeechFinal,
		Words:       words,
	})
	return nil
}

func (s *DeepgramSession) Metadata(md *api.MetadataResponse) error {
	s.logger.Debug("metadata", "request_id", md.RequestID)
	return nil
}

func (s *DeepgramSession) SpeechStarted(ssr *api.SpeechStartedResponse) error {
	s.logger.Debug("speech start", "timestamp", ssr.Timestamp)
	s.emit(Event{Kind: KindSpeechStarted, Timestamp: ssr.Timestamp})
	return nil
}

func (s *DeepgramSession) UtteranceEnd(ur *api.UtteranceEndResponse) error {
	s.logger.Debug("utterance end", "timestamp", ur.LastWordEnd)
	s.emit(Event{Kind: KindUtteranceEnd, LastWordEnd: ur.LastWordEnd})
	return nil
}

func (s *DeepgramSession) Error(er *api.ErrorResponse) error {
	s.logger.Error("error", "type", er.Type, "description", er.Description)
	s.emit(Event{Kind: KindError, Err: er.Description})
	return nil
}

func (s *DeepgramSession) Close(ocr *api.CloseResponse) error {
	s.logger.Info("closed", "reason", ocr.Type)
	s.emit(Event{Kind: KindClosed})
	s.finish()
	return nil
}

func (s *DeepgramSession) UnhandledEvent(byData []byte) error {
	s.logger.Warn("unhandled event", "data", string(byData))
	return nil
}
