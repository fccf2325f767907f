package httpapi

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/mbeckmann/voicebot/internal/protocol"
)

func TestTextWSPromptToAudio(t *testing.T) {
	llmStub := &stubLLM{response: "Hallo! Wie kann ich dir heute helfen?"}
	server := httptest.NewServer(newTestRouter(llmStub, &stubTTS{}, &stubRecognizer{}))
	defer server.Close()

	conn := dialWS(t, server, "/ws/text")
	defer conn.Close()

	sendEnvelope(t, conn, protocol.TypeTextPrompt, protocol.TextPrompt{Text: "Hallo"})

	var chunks []protocol.AudioPayload
	var endID string
	for {
		msg := readEnvelope(t, conn)
		switch msg.Type {
		case protocol.TypeAudio:
			var p protocol.AudioPayload
			if err := msg.Decode(&p); err != nil {
				t.Fatalf("decode audio: %v", err)
			}
			if msg.ID == "" {
				t.Error("audio message must carry the request id")
			}
			chunks = append(chunks, p)
		case protocol.TypeAudioEnd:
			var end protocol.AudioEnd
			if err := msg.Decode(&end); err != nil {
				t.Fatalf("decode audio_end: %v", err)
			}
			if end.TotalChunks != len(chunks) {
				t.Errorf("total_chunks = %d, want %d", end.TotalChunks, len(chunks))
			}
			if end.Status != "completed" {
				t.Errorf("status = %q, want completed", end.Status)
			}
			endID = msg.ID
		case protocol.TypeAudioError:
			t.Fatalf("unexpected audio_error: %s", msg.Data)
		}
		if endID != "" {
			break
		}
	}

	if len(chunks) == 0 {
		t.Fatal("no audio chunks received")
	}
	for i, c := range chunks {
		if c.ChunkNumber != i+1 {
			t.Errorf("chunk %d number = %d, want %d", i, c.ChunkNumber, i+1)
		}
		if len(c.Samples()) == 0 {
			t.Errorf("chunk %d has no samples", i)
		}
		if c.SampleRate != 24000 {
			t.Errorf("chunk %d sample rate = %d, want 24000", i, c.SampleRate)
		}
		if c.Status != "streaming" {
			t.Errorf("chunk %d status = %q, want streaming", i, c.Status)
		}
		if c.ID != endID {
			t.Errorf("chunk %d id = %q, want %q", i, c.ID, endID)
		}
	}
}

func TestTextWSStickyVoiceSelection(t *testing.T) {
	llmStub := &stubLLM{response: "Kurze Antwort fürs Testen der Stimme."}
	ttsStub := &stubTTS{}
	server := httptest.NewServer(newTestRouter(llmStub, ttsStub, &stubRecognizer{}))
	defer server.Close()

	conn := dialWS(t, server, "/ws/text")
	defer conn.Close()

	sendEnvelope(t, conn, protocol.TypeVoiceSelection, protocol.VoiceSelection{Voice: "de-DE-Chirp3-HD-Aoede"})
	sendEnvelope(t, conn, protocol.TypeTextPrompt, protocol.TextPrompt{Text: "Hallo"})

	// Drain until the stream ends.
	for {
		msg := readEnvelope(t, conn)
		if msg.Type == protocol.TypeAudioEnd || msg.Type == protocol.TypeAudioError {
			break
		}
	}

	voices := ttsStub.seenVoices()
	if len(voices) == 0 {
		t.Fatal("synthesis never ran")
	}
	for _, v := range voices {
		if v != "de-DE-Chirp3-HD-Aoede" {
			t.Errorf("synthesis voice = %q, want the sticky selection", v)
		}
	}
}

func TestTextWSGenerationErrorReported(t *testing.T) {
	llmStub := &stubLLM{err: errors.New("model down")}
	server := httptest.NewServer(newTestRouter(llmStub, &stubTTS{}, &stubRecognizer{}))
	defer server.Close()

	conn := dialWS(t, server, "/ws/text")
	defer conn.Close()

	sendEnvelope(t, conn, protocol.TypeTextPrompt, protocol.TextPrompt{Text: "Hallo"})

	msg := readEnvelope(t, conn)
	if msg.Type != protocol.TypeAudioError {
		t.Fatalf("message type = %q, want audio_error", msg.Type)
	}
	var audioErr protocol.AudioError
	if err := msg.Decode(&audioErr); err != nil {
		t.Fatalf("decode audio_error: %v", err)
	}
	if audioErr.Error != "generation failed" {
		t.Errorf("error = %q, want generation failed", audioErr.Error)
	}
	if msg.ID == "" {
		t.Error("audio_error must carry the request id")
	}
}

func TestTextWSIgnoresUnknownAndEmpty(t *testing.T) {
	llmStub := &stubLLM{response: "Antwort auf die zweite Nachricht."}
	server := httptest.NewServer(newTestRouter(llmStub, &stubTTS{}, &stubRecognizer{}))
	defer server.Close()

	conn := dialWS(t, server, "/ws/text")
	defer conn.Close()

	// Neither of these may break the connection or produce a response.
	sendEnvelope(t, conn, "future_thing", map[string]int{"x": 1})
	sendEnvelope(t, conn, protocol.TypeTextPrompt, protocol.TextPrompt{Text: ""})

	// A real prompt afterwards still works.
	sendEnvelope(t, conn, protocol.TypeTextPrompt, protocol.TextPrompt{Text: "Hallo"})
	msg := readEnvelope(t, conn)
	if msg.Type != protocol.TypeAudio {
		t.Errorf("first reply type = %q, want audio", msg.Type)
	}
}
