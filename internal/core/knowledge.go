package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"practicum.dev/assistant-gateway/internal/store"
)

// embedInterval keeps ingestion under the providers' embedding rate limits.
const embedInterval = 40 * time.Millisecond

// ParseKnowledgeTable extracts the cell of every row of a single-column Markdown table.
// The header row and the separator row are skipped.
func ParseKnowledgeTable(r io.Reader) ([]string, error) {
	var (
		rows       []string
		seenHeader bool
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") || len(line) < 2 {
			continue
		}
		cell := strings.TrimSpace(line[1 : len(line)-1])
		if strings.Trim(cell, "-: ") == "" {
			continue // separator or empty row
		}
		if !seenHeader {
			seenHeader = true
			continue
		}
		rows = append(rows, cell)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read knowledge table: %w", err)
	}
	return rows, nil
}

// IngestKnowledgeFile embeds every row of the Markdown table at path and replaces the
// stored knowledge base with the result. Rows that fail to embed are skipped.
func IngestKnowledgeFile(ctx context.Context, path string, embedder Embedder, ks store.KnowledgeStore) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open knowledge file %s: %w", path, err)
	}
	defer f.Close()

	rows, err := ParseKnowledgeTable(f)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		slog.WarnContext(ctx, "no rows found in knowledge file; expected a single-column Markdown table", "path", path)
		return 0, nil
	}
	slog.InfoContext(ctx, "embedding knowledge rows", "rows", len(rows))

	ticker := time.NewTicker(embedInterval)
	defer ticker.Stop()

	chunks := make([]store.KnowledgeChunk, 0, len(rows))
	for i, row := range rows {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}

		embedding, err := embedder.Embed(ctx, row)
		if err != nil {
			slog.WarnContext(ctx, "failed to embed knowledge row, skipping", "row", i+1, "error", err)
			continue
		}
		chunks = append(chunks, store.KnowledgeChunk{Content: row, Embedding: embedding})
		if len(chunks)%10 == 0 {
			slog.InfoContext(ctx, "ingestion progress", "embedded", len(chunks), "total", len(rows))
		}
	}

	if err := ks.ReplaceKnowledgeChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to store knowledge chunks: %w", err)
	}
	return len(chunks), nil
}
