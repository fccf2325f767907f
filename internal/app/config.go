package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	SentryDSN   string
	LogLevel    string

	// Capability providers
	GeminiAPIKey   string
	GeminiModel    string
	EmbedModel     string
	GoogleAPIKey   string // used for TTS and Speech REST APIs
	TTSBaseURL     string
	SpeechBaseURL  string
	GeminiBaseURL  string

	// Voice settings
	DefaultVoice    string
	DefaultLanguage string

	// Pipeline settings
	SegmentMinLength int
	SegmentMaxLength int
	SynthMaxRetries  int

	// Retrieval settings
	RAGMinSimilarity float64
	RAGTopK          int

	// How long request events are kept before the retention job prunes them.
	EventRetention time.Duration
}

func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8000"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		SentryDSN:   getenv("SENTRY_DSN", ""),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		GeminiAPIKey:  getenv("GEMINI_API_KEY", ""),
		GeminiModel:   getenv("GEMINI_MODEL", "gemini-2.0-flash"),
		EmbedModel:    getenv("GEMINI_EMBED_MODEL", "text-embedding-004"),
		GoogleAPIKey:  getenv("GOOGLE_API_KEY", ""),
		TTSBaseURL:    getenv("GOOGLE_TTS_BASE_URL", ""),
		SpeechBaseURL: getenv("GOOGLE_SPEECH_BASE_URL", ""),
		GeminiBaseURL: getenv("GEMINI_BASE_URL", ""),

		DefaultVoice:    getenv("DEFAULT_VOICE", "de-DE-Chirp3-HD-Charon"),
		DefaultLanguage: getenv("DEFAULT_LANGUAGE", "de-DE"),

		SegmentMinLength: getenvInt("SEGMENT_MIN_LENGTH", 12),
		SegmentMaxLength: getenvInt("SEGMENT_MAX_LENGTH", 240),
		SynthMaxRetries:  getenvInt("SYNTH_MAX_RETRIES", 1),

		RAGMinSimilarity: getenvFloat("RAG_MIN_SIMILARITY", 0.5),
		RAGTopK:          getenvInt("RAG_TOP_K", 10),

		EventRetention: time.Duration(getenvInt("EVENT_RETENTION_DAYS", 30)) * 24 * time.Hour,
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
