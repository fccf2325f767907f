package httpapi

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mbeckmann/voicebot/internal/llm"
	"github.com/mbeckmann/voicebot/internal/segment"
	"github.com/mbeckmann/voicebot/internal/synth"
)

// handleTextResponse answers a prompt without streaming: GET /api/text?prompt=...&voice=...
func (r *Router) handleTextResponse(w http.ResponseWriter, req *http.Request) {
	prompt := req.URL.Query().Get("prompt")
	if prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prompt is required"})
		return
	}
	voice := req.URL.Query().Get("voice")
	if voice == "" {
		voice = r.cfg.DefaultVoice
	}

	var docs []string
	if r.cfg.Retriever != nil && len(prompt) > 10 {
		found, err := r.cfg.Retriever.Search(req.Context(), prompt)
		if err != nil {
			r.logger.Printf("api: retrieval failed: %v", err)
			captureError(req, err, "api: retrieval failed")
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "retrieval failed"})
			return
		}
		docs = found
	}

	text, err := r.cfg.LLM.Generate(req.Context(), llm.BuildPrompt(prompt, docs))
	if err != nil {
		r.logger.Printf("api: generation failed: %v", err)
		captureError(req, err, "api: generation failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "generation failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"text":           text,
		"voice_settings": voice,
		"content_length": len(text),
		"status":         "success",
	})
}

// handleAudioStream streams the synthesized answer as raw PCM bytes:
// GET /api/audio?prompt=...&voice=...
func (r *Router) handleAudioStream(w http.ResponseWriter, req *http.Request) {
	prompt := req.URL.Query().Get("prompt")
	if prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prompt is required"})
		return
	}
	voice := req.URL.Query().Get("voice")
	if voice == "" {
		voice = r.cfg.DefaultVoice
	}

	ctx := req.Context()

	var docs []string
	if r.cfg.Retriever != nil && len(prompt) > 10 {
		found, err := r.cfg.Retriever.Search(ctx, prompt)
		if err != nil {
			r.logger.Printf("api: retrieval failed: %v", err)
			captureError(req, err, "api: retrieval failed")
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "retrieval failed"})
			return
		}
		docs = found
	}

	deltas, err := r.cfg.LLM.GenerateStream(ctx, llm.BuildPrompt(prompt, docs))
	if err != nil {
		r.logger.Printf("api: generation failed: %v", err)
		captureError(req, err, "api: generation failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "generation failed"})
		return
	}

	w.Header().Set("Content-Type", "audio/pcm")
	w.Header().Set("Content-Disposition", "attachment; filename=response.pcm")
	w.Header().Set("Sample-Rate", "24000")
	w.Header().Set("Channels", "1")
	w.Header().Set("Sample-Format", "int16")

	flusher, _ := w.(http.Flusher)
	relay := synth.New(r.cfg.TTS, synth.Config{MaxRetries: r.cfg.SynthMaxRetries}, r.logger)
	seq := synth.NewSequence()
	requestID := uuid.NewString()
	seg := segment.New(r.cfg.Segmenter)
	index := 0

	emit := func(text string) error {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		chunk, err := relay.Synthesize(ctx, requestID, text, voice, seq, index)
		if err != nil {
			return err
		}
		index++
		if _, err := w.Write(samplesToBytes(chunk.Samples)); err != nil {
			return fmt.Errorf("failed to write audio: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	for delta := range deltas {
		if ctx.Err() != nil {
			return
		}
		for _, sg := range seg.Push(delta) {
			if err := emit(sg.Text); err != nil {
				r.logger.Printf("api: audio stream aborted: %v", err)
				return
			}
		}
	}
	if sg, ok := seg.Flush(); ok {
		if err := emit(sg.Text); err != nil {
			r.logger.Printf("api: audio stream aborted: %v", err)
		}
	}
}

func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return buf
}
