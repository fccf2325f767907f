// Package rag provides the pgvector-backed document store used to retrieve
// context for answer generation.
package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbeckmann/voicebot/internal/llm"
)

// Store retrieves documents by embedding similarity.
type Store struct {
	db            *pgxpool.Pool
	embedder      llm.Embedder
	minSimilarity float64
	topK          int
}

// Config holds configuration for the document store.
type Config struct {
	MinSimilarity float64 // distance threshold, default 0.5
	TopK          int     // default 10
}

// New creates a document store backed by the given pool.
func New(db *pgxpool.Pool, embedder llm.Embedder, cfg Config) *Store {
	if cfg.MinSimilarity == 0 {
		cfg.MinSimilarity = 0.5
	}
	if cfg.TopK == 0 {
		cfg.TopK = 10
	}
	return &Store{
		db:            db,
		embedder:      embedder,
		minSimilarity: cfg.MinSimilarity,
		topK:          cfg.TopK,
	}
}

// EnsureSchema creates the vector extension and documents table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS documents (
			id        SERIAL PRIMARY KEY,
			content   TEXT,
			embedding VECTOR(768)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// InsertDocument embeds and stores a document.
func (s *Store) InsertDocument(ctx context.Context, text string) error {
	embedding, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed document: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO documents (content, embedding)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, text, vectorLiteral(embedding))
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// Search returns the contents of the documents most similar to the query.
func (s *Store) Search(ctx context.Context, query string) ([]string, error) {
	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	vec := vectorLiteral(embedding)
	rows, err := s.db.Query(ctx, `
		SELECT content
		FROM documents
		WHERE embedding <-> $1 >= $2
		ORDER BY embedding <-> $1
		LIMIT $3
	`, vec, s.minSimilarity, s.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	var docs []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, content)
	}
	return docs, rows.Err()
}

// vectorLiteral formats an embedding as a pgvector literal: [0.1,0.2,...].
func vectorLiteral(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
