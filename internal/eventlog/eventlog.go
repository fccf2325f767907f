package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of pipeline event
type EventType string

const (
	EventRequestStarted         EventType = "request_started"
	EventRequestSuperseded      EventType = "request_superseded"
	EventRetrievalCompleted     EventType = "retrieval_completed"
	EventGenerationStarted      EventType = "generation_started"
	EventGenerationFirstDelta   EventType = "generation_first_delta"
	EventGenerationCompleted    EventType = "generation_completed"
	EventSegmentExtracted       EventType = "segment_extracted"
	EventSynthesisError         EventType = "synthesis_error"
	EventChunkSent              EventType = "chunk_sent"
	EventRequestCancelled       EventType = "request_cancelled"
	EventRequestCompleted       EventType = "request_completed"
	EventRequestError           EventType = "request_error"
	EventTranscriptionCompleted EventType = "transcription_completed"
	EventTranscriptionError     EventType = "transcription_error"
)

// Logger provides async event logging to the database
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new event logger
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// EnsureSchema creates the request_events table.
func (l *Logger) EnsureSchema(ctx context.Context) error {
	if l.db == nil {
		return nil
	}
	_, err := l.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS request_events (
			id         SERIAL PRIMARY KEY,
			request_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_data JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_request_events_created_at ON request_events (created_at);
	`)
	return err
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, requestID string, eventType EventType, data map[string]any) error {
	if l.db == nil || requestID == "" {
		return nil // Silently skip if no DB or request ID
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO request_events (request_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, requestID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(requestID string, eventType EventType, data map[string]any) {
	if l.db == nil || requestID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, requestID, eventType, data)
	}()
}
