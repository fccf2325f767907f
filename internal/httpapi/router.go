package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"

	"github.com/mbeckmann/voicebot/internal/eventlog"
	"github.com/mbeckmann/voicebot/internal/llm"
	"github.com/mbeckmann/voicebot/internal/segment"
	"github.com/mbeckmann/voicebot/internal/session"
	"github.com/mbeckmann/voicebot/internal/stt"
	"github.com/mbeckmann/voicebot/internal/tts"
)

type RouterConfig struct {
	// Capability providers
	LLM        llm.Client
	TTS        tts.Client
	Recognizer stt.Recognizer
	Retriever  session.Retriever // may be nil; disables the retrieval stage

	// Pipeline settings
	Segmenter       segment.Config
	SynthMaxRetries int

	// Voice settings
	DefaultVoice    string // used when neither prompt nor voice_selection name one
	DefaultLanguage string // e.g. "de-DE"

	// Capture limits
	MaxPCMBufferSamples int // hard cap on buffered microphone samples per session
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	eventLog *eventlog.Logger
	mux      *chi.Mux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, eventLog *eventlog.Logger) http.Handler {
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = session.DefaultVoice
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "de-DE"
	}
	if cfg.MaxPCMBufferSamples <= 0 {
		cfg.MaxPCMBufferSamples = 5 * 1024 * 1024 // ~10 MiB of int16 samples
	}
	if eventLog == nil {
		eventLog = eventlog.New(nil)
	}

	r := &Router{
		cfg:      cfg,
		logger:   logger,
		eventLog: eventLog,
		mux:      chi.NewRouter(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	r.mux.Get("/", r.handleRoot)
	r.mux.Get("/healthz", r.handleHealthz)

	// Two logical channels, independently connectable
	r.mux.Get("/ws/speech", r.handleSpeechWS)
	r.mux.Get("/ws/text", r.handleTextWS)

	// Non-WebSocket fallbacks
	r.mux.Get("/api/text", r.handleTextResponse)
	r.mux.Get("/api/audio", r.handleAudioStream)
}

func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "VoiceBot API is running"})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
