package app

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbeckmann/voicebot/internal/eventlog"
	"github.com/mbeckmann/voicebot/internal/httpapi"
	"github.com/mbeckmann/voicebot/internal/jobs"
	"github.com/mbeckmann/voicebot/internal/llm"
	"github.com/mbeckmann/voicebot/internal/rag"
	"github.com/mbeckmann/voicebot/internal/segment"
	"github.com/mbeckmann/voicebot/internal/session"
	"github.com/mbeckmann/voicebot/internal/stt"
	"github.com/mbeckmann/voicebot/internal/tts"
)

type App struct {
	cfg        Config
	logger     *log.Logger
	db         *pgxpool.Pool // nil when DATABASE_URL is unset
	llmClient  *llm.GeminiClient
	ragStore   *rag.Store // nil without a database
	eventLog   *eventlog.Logger
	retention  *jobs.EventRetentionJob // nil without a database
	httpClient *http.Client            // shared client with connection pooling for capability APIs
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	if cfg.GoogleAPIKey == "" {
		return nil, errors.New("GOOGLE_API_KEY is required")
	}

	// Shared HTTP client with connection pooling. TTS is called once per
	// segment, so keeping TCP connections alive matters for latency.
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	llmClient := llm.NewGeminiClient(llm.GeminiConfig{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		EmbedModel: cfg.EmbedModel,
		BaseURL:    cfg.GeminiBaseURL,
		HTTPClient: httpClient,
	})

	a := &App{
		cfg:        cfg,
		logger:     logger,
		llmClient:  llmClient,
		httpClient: httpClient,
	}

	// Database is optional: without it the voice pipeline still runs, but
	// retrieval and event logging are disabled.
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		a.ragStore = rag.New(db, llmClient, rag.Config{
			MinSimilarity: cfg.RAGMinSimilarity,
			TopK:          cfg.RAGTopK,
		})
		if err := a.ragStore.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		logger.Printf("app: DATABASE_URL not set, retrieval and event logging disabled")
	}
	a.eventLog = eventlog.New(a.db)

	if a.db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.eventLog.EnsureSchema(ctx); err != nil {
			a.db.Close()
			return nil, err
		}
		a.retention = jobs.NewEventRetentionJob(a.db, logger, 0, cfg.EventRetention)
		a.retention.Start()
	}

	return a, nil
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		LLM: a.llmClient,
		TTS: tts.NewGoogleClient(tts.GoogleConfig{
			APIKey:     a.cfg.GoogleAPIKey,
			BaseURL:    a.cfg.TTSBaseURL,
			HTTPClient: a.httpClient,
		}),
		Recognizer: stt.NewGoogleClient(stt.GoogleConfig{
			APIKey:     a.cfg.GoogleAPIKey,
			BaseURL:    a.cfg.SpeechBaseURL,
			HTTPClient: a.httpClient,
		}),
		Segmenter: segment.Config{
			MinLength: a.cfg.SegmentMinLength,
			MaxLength: a.cfg.SegmentMaxLength,
		},
		SynthMaxRetries: a.cfg.SynthMaxRetries,
		DefaultVoice:    a.cfg.DefaultVoice,
		DefaultLanguage: a.cfg.DefaultLanguage,
	}
	if a.ragStore != nil {
		routerCfg.Retriever = a.ragStore
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.eventLog)
}

// RAGStore exposes the document store for the ingest command. Nil without a
// database.
func (a *App) RAGStore() *rag.Store {
	return a.ragStore
}

func (a *App) Close() error {
	if a.retention != nil {
		a.retention.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
	return nil
}

var _ session.Retriever = (*rag.Store)(nil)
