// Command ingest loads knowledge-base documents into the retrieval store.
// Each argument is a file whose contents become one document; with no
// arguments it reads documents from stdin, one per line. With -markdown,
// files are split into per-section documents and headlines are dropped.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbeckmann/voicebot/internal/app"
	"github.com/mbeckmann/voicebot/internal/rag"
)

func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "total time allowed for ingestion")
	markdown := flag.Bool("markdown", false, "split input into markdown text sections, dropping headlines")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment")
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg := app.LoadConfigFromEnv()
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required for ingestion")
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to initialize: %v", err)
	}
	defer application.Close()

	store := application.RAGStore()
	if store == nil {
		logger.Fatal("retrieval store unavailable, check DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	docs, err := collectDocuments(flag.Args(), *markdown)
	if err != nil {
		logger.Fatalf("failed to read documents: %v", err)
	}
	if len(docs) == 0 {
		logger.Fatal("nothing to ingest")
	}

	inserted := 0
	for _, doc := range docs {
		if err := store.InsertDocument(ctx, doc); err != nil {
			logger.Fatalf("failed to insert document (%d inserted so far): %v", inserted, err)
		}
		inserted++
	}
	fmt.Printf("inserted %d documents\n", inserted)
}

func collectDocuments(paths []string, markdown bool) ([]string, error) {
	if len(paths) == 0 {
		if markdown {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return nil, err
			}
			return rag.ExtractMarkdownSections(string(data)), nil
		}
		return readLines(os.Stdin)
	}

	var docs []string
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if markdown {
			docs = append(docs, rag.ExtractMarkdownSections(string(data))...)
			continue
		}
		text := strings.TrimSpace(string(data))
		if text != "" {
			docs = append(docs, text)
		}
	}
	return docs, nil
}

func readLines(f *os.File) ([]string, error) {
	var docs []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			docs = append(docs, line)
		}
	}
	return docs, scanner.Err()
}
