package httpapi

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbeckmann/voicebot/internal/costs"
	"github.com/mbeckmann/voicebot/internal/eventlog"
	"github.com/mbeckmann/voicebot/internal/protocol"
	"github.com/mbeckmann/voicebot/internal/stt"

	"github.com/google/uuid"
)

// speechSession serves one speech-channel connection: microphone frames in,
// transcription results out.
type speechSession struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	recognizer stt.Recognizer
	logger     *log.Logger
	eventLog   *eventlog.Logger

	language   string
	maxSamples int

	mu             sync.Mutex
	buf            []int16
	sampleRate     int
	overflowLogged bool

	ctx    context.Context
	cancel context.CancelFunc
}

func (r *Router) handleSpeechWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("speech_ws: upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	ss := &speechSession{
		conn:       conn,
		recognizer: r.cfg.Recognizer,
		logger:     r.logger,
		eventLog:   r.eventLog,
		language:   r.cfg.DefaultLanguage,
		maxSamples: r.cfg.MaxPCMBufferSamples,
		sampleRate: 48000,
		ctx:        ctx,
		cancel:     cancel,
	}

	r.logger.Printf("speech_ws: connection established")
	ss.run()
}

func (s *speechSession) run() {
	defer s.cleanup()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("speech_ws: connection closed")
			} else {
				s.logger.Printf("speech_ws: read error: %v", err)
			}
			return
		}

		msg, err := protocol.Parse(raw)
		if err != nil {
			s.logger.Printf("speech_ws: %v", err)
			continue
		}

		switch msg.Type {
		case protocol.TypePCM:
			var frame protocol.PCMFrame
			if err := msg.Decode(&frame); err != nil {
				s.logger.Printf("speech_ws: %v", err)
				continue
			}
			s.appendFrame(frame)

		case protocol.TypeStopRecording, protocol.TypeStopTranscription:
			var stop protocol.Stop
			_ = msg.Decode(&stop) // reason is optional
			s.finishUtterance(stop.Reason)

		case protocol.TypeVoiceSelection:
			// Voice only matters on the text channel; accepted and ignored
			// here so older clients that broadcast it are not disturbed.

		default:
			// Unknown types are ignored, not fatal.
		}
	}
}

// appendFrame adds microphone samples to the utterance buffer. The buffer is
// hard-capped; on overflow the oldest samples are dropped so memory stays
// bounded even when a client never stops recording.
func (s *speechSession) appendFrame(frame protocol.PCMFrame) {
	if len(frame.Samples) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if frame.SampleRate > 0 {
		s.sampleRate = frame.SampleRate
	}
	s.buf = append(s.buf, frame.Samples...)
	if len(s.buf) > s.maxSamples {
		if !s.overflowLogged {
			s.logger.Printf("speech_ws: pcm buffer cap reached, dropping oldest samples")
			s.overflowLogged = true
		}
		s.buf = s.buf[len(s.buf)-s.maxSamples:]
	}
}

// finishUtterance transcribes the buffered audio and sends the result. The
// recognition call runs off the read loop so the client can keep talking.
func (s *speechSession) finishUtterance(reason string) {
	s.mu.Lock()
	samples := s.buf
	rate := s.sampleRate
	s.buf = nil
	s.overflowLogged = false
	s.mu.Unlock()

	if len(samples) == 0 {
		s.sendTranscriptionError("no audio recorded")
		return
	}
	if reason != "" {
		s.logger.Printf("speech_ws: utterance finished (%s), %d samples", reason, len(samples))
	}

	go func() {
		ctx, cancelRec := context.WithTimeout(s.ctx, 30*time.Second)
		defer cancelRec()

		transcriptionID := uuid.NewString()
		result, err := s.recognizer.Recognize(ctx, samples, rate, s.language)
		if err != nil {
			s.logger.Printf("speech_ws: recognition failed: %v", err)
			s.eventLog.LogAsync(transcriptionID, eventlog.EventTranscriptionError, map[string]any{
				"error": err.Error(),
			})
			s.sendTranscriptionError("transcription failed")
			return
		}
		if strings.TrimSpace(result.Text) == "" {
			s.sendTranscriptionError("empty transcription")
			return
		}

		sttSeconds := 0
		if rate > 0 {
			sttSeconds = len(samples) / rate
		}
		cost := costs.CalculateRequestCosts(costs.RequestMetrics{STTDurationSeconds: sttSeconds})
		s.eventLog.LogAsync(transcriptionID, eventlog.EventTranscriptionCompleted, map[string]any{
			"confidence":     result.Confidence,
			"text_length":    len(result.Text),
			"audio_seconds":  sttSeconds,
			"stt_cost_cents": cost.STTCostCents,
		})

		msg, err := protocol.NewMessage(protocol.TypeTranscription, protocol.Transcription{
			Transcription: result.Text,
			Confidence:    result.Confidence,
			LanguageCode:  result.LanguageCode,
			Status:        "success",
		}, transcriptionID)
		if err != nil {
			s.logger.Printf("speech_ws: %v", err)
			return
		}
		if err := s.writeMessage(msg); err != nil {
			s.logger.Printf("speech_ws: failed to send transcription: %v", err)
		}
	}()
}

func (s *speechSession) sendTranscriptionError(message string) {
	msg, err := protocol.NewMessage(protocol.TypeTranscriptionError, protocol.TranscriptionError{
		Error: message,
	}, "")
	if err != nil {
		s.logger.Printf("speech_ws: %v", err)
		return
	}
	if err := s.writeMessage(msg); err != nil {
		s.logger.Printf("speech_ws: failed to send transcription error: %v", err)
	}
}

func (s *speechSession) writeMessage(msg protocol.Message) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *speechSession) cleanup() {
	s.cancel()

	s.connMu.Lock()
	_ = s.conn.Close()
	s.connMu.Unlock()

	s.logger.Printf("speech_ws: session cleaned up")
}
