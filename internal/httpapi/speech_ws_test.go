package httpapi

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/mbeckmann/voicebot/internal/protocol"
	"github.com/mbeckmann/voicebot/internal/stt"
)

func TestSpeechWSTranscribesUtterance(t *testing.T) {
	rec := &stubRecognizer{result: stt.Result{Text: "Guten Tag", Confidence: 0.9, LanguageCode: "de-DE"}}
	server := httptest.NewServer(newTestRouter(&stubLLM{}, &stubTTS{}, rec))
	defer server.Close()

	conn := dialWS(t, server, "/ws/speech")
	defer conn.Close()

	sendEnvelope(t, conn, protocol.TypePCM, protocol.PCMFrame{Samples: make([]int16, 2048), SampleRate: 48000})
	sendEnvelope(t, conn, protocol.TypePCM, protocol.PCMFrame{Samples: make([]int16, 2048), SampleRate: 48000})
	sendEnvelope(t, conn, protocol.TypeStopRecording, protocol.Stop{})

	msg := readEnvelope(t, conn)
	if msg.Type != protocol.TypeTranscription {
		t.Fatalf("message type = %q, want transcription", msg.Type)
	}
	var tr protocol.Transcription
	if err := msg.Decode(&tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.Transcription != "Guten Tag" {
		t.Errorf("transcription = %q, want Guten Tag", tr.Transcription)
	}
	if tr.Status != "success" {
		t.Errorf("status = %q, want success", tr.Status)
	}
	if tr.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", tr.Confidence)
	}

	rec.mu.Lock()
	samples := rec.samples
	rec.mu.Unlock()
	if samples != 4096 {
		t.Errorf("recognizer got %d samples, want 4096 (both frames)", samples)
	}
}

func TestSpeechWSStopWithoutAudio(t *testing.T) {
	server := httptest.NewServer(newTestRouter(&stubLLM{}, &stubTTS{}, &stubRecognizer{}))
	defer server.Close()

	conn := dialWS(t, server, "/ws/speech")
	defer conn.Close()

	sendEnvelope(t, conn, protocol.TypeStopRecording, protocol.Stop{})

	msg := readEnvelope(t, conn)
	if msg.Type != protocol.TypeTranscriptionError {
		t.Fatalf("message type = %q, want transcription_error", msg.Type)
	}
	var te protocol.TranscriptionError
	if err := msg.Decode(&te); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if te.Error != "no audio recorded" {
		t.Errorf("error = %q, want no audio recorded", te.Error)
	}
}

func TestSpeechWSRecognitionFailure(t *testing.T) {
	rec := &stubRecognizer{err: errors.New("api down")}
	server := httptest.NewServer(newTestRouter(&stubLLM{}, &stubTTS{}, rec))
	defer server.Close()

	conn := dialWS(t, server, "/ws/speech")
	defer conn.Close()

	sendEnvelope(t, conn, protocol.TypePCM, protocol.PCMFrame{Samples: []int16{1, 2, 3}, SampleRate: 48000})
	sendEnvelope(t, conn, protocol.TypeStopTranscription, protocol.Stop{Reason: "user stopped"})

	msg := readEnvelope(t, conn)
	if msg.Type != protocol.TypeTranscriptionError {
		t.Fatalf("message type = %q, want transcription_error", msg.Type)
	}
	var te protocol.TranscriptionError
	if err := msg.Decode(&te); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if te.Error != "transcription failed" {
		t.Errorf("error = %q, want transcription failed", te.Error)
	}
}

func TestSpeechWSEmptyTranscription(t *testing.T) {
	rec := &stubRecognizer{result: stt.Result{Text: "   ", LanguageCode: "de-DE"}}
	server := httptest.NewServer(newTestRouter(&stubLLM{}, &stubTTS{}, rec))
	defer server.Close()

	conn := dialWS(t, server, "/ws/speech")
	defer conn.Close()

	sendEnvelope(t, conn, protocol.TypePCM, protocol.PCMFrame{Samples: []int16{1, 2, 3}, SampleRate: 48000})
	sendEnvelope(t, conn, protocol.TypeStopRecording, protocol.Stop{})

	msg := readEnvelope(t, conn)
	if msg.Type != protocol.TypeTranscriptionError {
		t.Fatalf("message type = %q, want transcription_error", msg.Type)
	}
	var te protocol.TranscriptionError
	_ = msg.Decode(&te)
	if te.Error != "empty transcription" {
		t.Errorf("error = %q, want empty transcription", te.Error)
	}
}

func TestSpeechWSBufferClearedBetweenUtterances(t *testing.T) {
	rec := &stubRecognizer{result: stt.Result{Text: "erste Äußerung", LanguageCode: "de-DE"}}
	server := httptest.NewServer(newTestRouter(&stubLLM{}, &stubTTS{}, rec))
	defer server.Close()

	conn := dialWS(t, server, "/ws/speech")
	defer conn.Close()

	sendEnvelope(t, conn, protocol.TypePCM, protocol.PCMFrame{Samples: make([]int16, 100), SampleRate: 48000})
	sendEnvelope(t, conn, protocol.TypeStopRecording, protocol.Stop{})
	if msg := readEnvelope(t, conn); msg.Type != protocol.TypeTranscription {
		t.Fatalf("first utterance reply = %q, want transcription", msg.Type)
	}

	// Stopping again without new audio must behave like an empty buffer.
	sendEnvelope(t, conn, protocol.TypeStopRecording, protocol.Stop{})
	msg := readEnvelope(t, conn)
	if msg.Type != protocol.TypeTranscriptionError {
		t.Fatalf("second stop reply = %q, want transcription_error", msg.Type)
	}
}

func TestSpeechWSBufferOverflowKeepsNewestSamples(t *testing.T) {
	rec := &stubRecognizer{result: stt.Result{Text: "ok", LanguageCode: "de-DE"}}
	router := NewRouter(routerConfigWithCap(rec, 1000), testDiscardLogger(), nil)
	server := httptest.NewServer(router)
	defer server.Close()

	conn := dialWS(t, server, "/ws/speech")
	defer conn.Close()

	// 5 frames of 400 samples against a 1000-sample cap.
	for i := 0; i < 5; i++ {
		sendEnvelope(t, conn, protocol.TypePCM, protocol.PCMFrame{Samples: make([]int16, 400), SampleRate: 48000})
	}
	sendEnvelope(t, conn, protocol.TypeStopRecording, protocol.Stop{})

	if msg := readEnvelope(t, conn); msg.Type != protocol.TypeTranscription {
		t.Fatalf("reply = %q, want transcription", msg.Type)
	}

	rec.mu.Lock()
	samples := rec.samples
	rec.mu.Unlock()
	if samples != 1000 {
		t.Errorf("recognizer got %d samples, want the capped 1000", samples)
	}
}
