package httpapi

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mbeckmann/voicebot/internal/protocol"
	"github.com/mbeckmann/voicebot/internal/session"
	"github.com/mbeckmann/voicebot/internal/synth"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// textSession serves one text-channel connection: typed prompts in, audio
// chunks out. At most one request is active; a new prompt supersedes it.
type textSession struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	sess   *session.Session
	logger *log.Logger

	mu    sync.Mutex
	voice string // sticky voice_selection, overridable per prompt

	ctx    context.Context
	cancel context.CancelFunc
}

func (r *Router) handleTextWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("text_ws: upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	ts := &textSession{
		conn:   conn,
		logger: r.logger,
		voice:  r.cfg.DefaultVoice,
		ctx:    ctx,
		cancel: cancel,
	}
	ts.sess = session.New(session.Config{
		Retriever: r.cfg.Retriever,
		LLM:       r.cfg.LLM,
		Relay:     synth.New(r.cfg.TTS, synth.Config{MaxRetries: r.cfg.SynthMaxRetries}, r.logger),
		Sender:    ts,
		Events:    r.eventLog,
		Logger:    r.logger,
		Segmenter: r.cfg.Segmenter,
	})

	r.logger.Printf("text_ws: connection established")
	ts.run()
}

func (s *textSession) run() {
	defer s.cleanup()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("text_ws: connection closed")
			} else {
				s.logger.Printf("text_ws: read error: %v", err)
			}
			return
		}

		msg, err := protocol.Parse(raw)
		if err != nil {
			s.logger.Printf("text_ws: %v", err)
			continue
		}

		switch msg.Type {
		case protocol.TypeTextPrompt:
			var p protocol.TextPrompt
			if err := msg.Decode(&p); err != nil {
				s.logger.Printf("text_ws: %v", err)
				continue
			}
			if p.Text == "" {
				continue
			}
			voice := p.Voice
			if voice == "" {
				s.mu.Lock()
				voice = s.voice
				s.mu.Unlock()
			}
			req := s.sess.Submit(s.ctx, session.Prompt{
				Text:     p.Text,
				Voice:    voice,
				Language: p.Language,
			})
			s.logger.Printf("text_ws: prompt accepted, request %s", req.ID)

		case protocol.TypeVoiceSelection:
			var v protocol.VoiceSelection
			if err := msg.Decode(&v); err != nil {
				s.logger.Printf("text_ws: %v", err)
				continue
			}
			s.mu.Lock()
			s.voice = v.Voice
			s.mu.Unlock()

		default:
			// Unknown or out-of-place types are ignored, not fatal.
		}
	}
}

func (s *textSession) writeMessage(msg protocol.Message) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// SendChunk implements session.Sender. The generated text fragment rides
// along in the audio payload as llm_response.
func (s *textSession) SendChunk(chunk protocol.AudioChunk) error {
	msg, err := protocol.NewMessage(protocol.TypeAudio, protocol.AudioPayload{
		Data:        chunk.Samples,
		ChunkNumber: chunk.ChunkNumber,
		SampleRate:  chunk.SampleRate,
		Status:      "streaming",
		ID:          chunk.RequestID,
		LLMResponse: chunk.Text,
	}, chunk.RequestID)
	if err != nil {
		return err
	}
	return s.writeMessage(msg)
}

// SendEnd implements session.Sender.
func (s *textSession) SendEnd(requestID string, totalChunks int) error {
	msg, err := protocol.NewMessage(protocol.TypeAudioEnd, protocol.AudioEnd{
		TotalChunks: totalChunks,
		Status:      "completed",
	}, requestID)
	if err != nil {
		return err
	}
	return s.writeMessage(msg)
}

// SendError implements session.Sender.
func (s *textSession) SendError(requestID, message string) error {
	msg, err := protocol.NewMessage(protocol.TypeAudioError, protocol.AudioError{
		Error: message,
	}, requestID)
	if err != nil {
		return err
	}
	return s.writeMessage(msg)
}

func (s *textSession) cleanup() {
	s.cancel()
	s.sess.CancelActive()

	s.connMu.Lock()
	_ = s.conn.Close()
	s.connMu.Unlock()

	s.logger.Printf("text_ws: session cleaned up")
}

var _ session.Sender = (*textSession)(nil)
