// Package session owns one logical request at a time and coordinates
// retrieval, generation, segmentation and synthesis so the first audio chunk
// leaves as soon as it exists instead of after the full answer.
package session

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mbeckmann/voicebot/internal/costs"
	"github.com/mbeckmann/voicebot/internal/eventlog"
	"github.com/mbeckmann/voicebot/internal/llm"
	"github.com/mbeckmann/voicebot/internal/protocol"
	"github.com/mbeckmann/voicebot/internal/segment"
	"github.com/mbeckmann/voicebot/internal/synth"
)

// DefaultVoice is used when the prompt carries no valid voice identifier.
const DefaultVoice = "de-DE-Chirp3-HD-Charon"

// contextQueryMinLen gates retrieval context: very short queries do not
// benefit from retrieved documents.
const contextQueryMinLen = 10

// Prompt is one submitted question, typed or transcribed.
type Prompt struct {
	Text     string
	Voice    string
	Language string
}

// Sender delivers the session's outbound messages to the transport. The
// orchestrator never touches the underlying connection.
type Sender interface {
	SendChunk(chunk protocol.AudioChunk) error
	SendEnd(requestID string, totalChunks int) error
	SendError(requestID, message string) error
}

// Retriever finds documents relevant to a query. A nil Retriever disables the
// retrieval stage.
type Retriever interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// Config wires a session's collaborators.
type Config struct {
	Retriever Retriever
	LLM       llm.Client
	Relay     *synth.Relay
	Sender    Sender
	Events    *eventlog.Logger
	Logger    *log.Logger
	Segmenter segment.Config
}

// Session serializes requests for one connection: at most one is active, and
// submitting a new prompt supersedes the previous one.
type Session struct {
	cfg Config

	mu     sync.Mutex
	active *Request
}

// New creates a session.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Events == nil {
		cfg.Events = eventlog.New(nil)
	}
	return &Session{cfg: cfg}
}

// Submit starts answering a prompt. Any request still in flight is cancelled
// first so no chunk bearing the old id is emitted after the new one starts.
func (s *Session) Submit(ctx context.Context, p Prompt) *Request {
	s.mu.Lock()
	if s.active != nil && !s.active.Done() {
		s.cfg.Logger.Printf("session: superseding request %s", s.active.ID)
		s.cfg.Events.LogAsync(s.active.ID, eventlog.EventRequestSuperseded, nil)
		s.active.Cancel()
	}

	reqCtx, cancel := context.WithCancel(ctx)
	req := &Request{
		ID:     uuid.NewString(),
		seq:    synth.NewSequence(),
		cancel: cancel,
	}
	s.active = req
	s.mu.Unlock()

	s.cfg.Events.LogAsync(req.ID, eventlog.EventRequestStarted, map[string]any{
		"prompt_length": len(p.Text),
		"voice":         p.Voice,
	})

	go s.run(reqCtx, req, p)
	return req
}

// Active returns the current request, or nil.
func (s *Session) Active() *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// CancelActive cancels the in-flight request, if any. Used when the
// connection goes away.
func (s *Session) CancelActive() {
	s.mu.Lock()
	req := s.active
	s.mu.Unlock()
	if req != nil {
		req.Cancel()
	}
}

func (s *Session) run(ctx context.Context, req *Request, p Prompt) {
	voice := normalizeVoice(p.Voice)

	// Retrieval (optional)
	req.advance(Retrieving)
	var docs []string
	if s.cfg.Retriever != nil && len(p.Text) > contextQueryMinLen {
		found, err := s.cfg.Retriever.Search(ctx, p.Text)
		if err != nil {
			s.fail(ctx, req, "retrieval failed", err)
			return
		}
		docs = found
		s.cfg.Events.LogAsync(req.ID, eventlog.EventRetrievalCompleted, map[string]any{
			"documents": len(docs),
		})
	}

	// Generation
	if !req.advance(Generating) {
		// Cancelled while retrieval was in flight.
		s.finishCancelled(req)
		return
	}
	s.cfg.Events.LogAsync(req.ID, eventlog.EventGenerationStarted, nil)

	prompt := llm.BuildPrompt(p.Text, docs)
	deltas, err := s.cfg.LLM.GenerateStream(ctx, prompt)
	if err != nil {
		s.fail(ctx, req, "generation failed", err)
		return
	}

	seg := segment.New(s.cfg.Segmenter)
	segmentIndex := 0
	first := true
	outputChars := 0

	for delta := range deltas {
		if ctx.Err() != nil {
			s.finishCancelled(req)
			return
		}
		if first && delta != "" {
			first = false
			s.cfg.Events.LogAsync(req.ID, eventlog.EventGenerationFirstDelta, nil)
		}
		outputChars += len(delta)
		for _, sg := range seg.Push(delta) {
			if !s.synthesizeAndSend(ctx, req, sg, voice, segmentIndex) {
				return
			}
			segmentIndex++
		}
	}
	if ctx.Err() != nil {
		s.finishCancelled(req)
		return
	}
	s.cfg.Events.LogAsync(req.ID, eventlog.EventGenerationCompleted, nil)

	if sg, ok := seg.Flush(); ok {
		if !s.synthesizeAndSend(ctx, req, sg, voice, segmentIndex) {
			return
		}
	}

	if !req.advance(Completed) {
		return
	}
	total := req.ChunksSent()
	if err := s.cfg.Sender.SendEnd(req.ID, total); err != nil {
		s.cfg.Logger.Printf("session: failed to send audio_end for request %s: %v", req.ID, err)
	}
	cost := costs.CalculateRequestCosts(costs.RequestMetrics{
		LLMInputChars:  len(prompt),
		LLMOutputChars: outputChars,
		TTSCharacters:  req.TTSChars(),
	})
	s.cfg.Events.LogAsync(req.ID, eventlog.EventRequestCompleted, map[string]any{
		"total_chunks":     total,
		"total_cost_cents": cost.TotalCostCents,
		"tts_chars":        req.TTSChars(),
		"output_chars":     outputChars,
	})
}

// synthesizeAndSend runs one segment through the relay and ships the chunk.
// Returns false when the pipeline must stop (cancelled or failed).
func (s *Session) synthesizeAndSend(ctx context.Context, req *Request, sg segment.Segment, voice string, index int) bool {
	text := strings.TrimSpace(sg.Text)
	if text == "" {
		// Whitespace-only segments exist for exact text reconstruction;
		// there is nothing to speak.
		return true
	}

	req.advance(Synthesizing)
	s.cfg.Events.LogAsync(req.ID, eventlog.EventSegmentExtracted, map[string]any{
		"segment_index": index,
		"text_length":   len(text),
		"final":         sg.Final,
	})

	chunk, err := s.cfg.Relay.Synthesize(ctx, req.ID, sg.Text, voice, req.seq, index)
	if err != nil {
		if ctx.Err() != nil {
			s.finishCancelled(req)
			return false
		}
		s.cfg.Events.LogAsync(req.ID, eventlog.EventSynthesisError, map[string]any{
			"segment_index": index,
			"error":         err.Error(),
		})
		s.fail(ctx, req, "synthesis failed", err)
		return false
	}

	// A superseding prompt may have cancelled us while synthesis was in
	// flight; its result is discarded, never sent under the old id.
	if ctx.Err() != nil {
		s.finishCancelled(req)
		return false
	}

	if err := s.cfg.Sender.SendChunk(chunk); err != nil {
		s.fail(ctx, req, "failed to send audio chunk", err)
		return false
	}
	n := req.countChunk(len(text))
	s.cfg.Events.LogAsync(req.ID, eventlog.EventChunkSent, map[string]any{
		"chunk_number": chunk.ChunkNumber,
		"chunks_sent":  n,
		"samples":      len(chunk.Samples),
	})
	return true
}

func (s *Session) finishCancelled(req *Request) {
	req.Cancel()
	s.cfg.Logger.Printf("session: request %s cancelled after %d chunks", req.ID, req.ChunksSent())
	s.cfg.Events.LogAsync(req.ID, eventlog.EventRequestCancelled, map[string]any{
		"chunks_sent": req.ChunksSent(),
	})
}

// fail terminates the request with a typed error message scoped to its id.
func (s *Session) fail(ctx context.Context, req *Request, msg string, err error) {
	if ctx.Err() != nil {
		s.finishCancelled(req)
		return
	}
	req.Cancel()
	s.cfg.Logger.Printf("session: request %s: %s: %v", req.ID, msg, err)
	if sendErr := s.cfg.Sender.SendError(req.ID, msg); sendErr != nil {
		s.cfg.Logger.Printf("session: failed to send error for request %s: %v", req.ID, sendErr)
	}
	s.cfg.Events.LogAsync(req.ID, eventlog.EventRequestError, map[string]any{
		"message": msg,
		"error":   err.Error(),
	})
}

// normalizeVoice applies the default voice when the preference is missing or
// malformed. A valid identifier looks like "de-DE-Chirp3-HD-Charon".
func normalizeVoice(voice string) string {
	if voice == "" || !strings.Contains(voice, "-") || len(voice) <= 5 {
		return DefaultVoice
	}
	return voice
}
