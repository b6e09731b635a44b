package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"practicum.dev/assistant-gateway/internal/store"
	"practicum.dev/assistant-gateway/internal/utils"
)

const (
	NumRelevantChunks   = 3   // Number of chunks to add to a prompt
	SimilarityThreshold = 0.7 // Minimum similarity score to consider a chunk relevant
)

// Retriever finds process notes relevant to a question. The chunk set is loaded once and
// only read afterwards.
type Retriever struct {
	embedder Embedder
	chunks   []store.KnowledgeChunk
}

func NewRetriever(ctx context.Context, ks store.KnowledgeStore, embedder Embedder) (*Retriever, error) {
	chunks, err := ks.ListKnowledgeChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge chunks: %w", err)
	}
	if len(chunks) == 0 {
		slog.WarnContext(ctx, "retriever initialized with no knowledge chunks; run with -ingest to load them")
	} else {
		slog.InfoContext(ctx, "retriever initialized", "chunks", len(chunks))
	}
	return &Retriever{embedder: embedder, chunks: chunks}, nil
}

func (r *Retriever) Empty() bool {
	return len(r.chunks) == 0
}

type scoredChunk struct {
	chunk      store.KnowledgeChunk
	similarity float32
}

// RelevantContext returns up to NumRelevantChunks chunks joined by blank lines, or "" when
// nothing clears SimilarityThreshold.
func (r *Retriever) RelevantContext(ctx context.Context, question string) (string, error) {
	if r.Empty() {
		return "", nil
	}

	queryEmbedding, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return "", fmt.Errorf("failed to get query embedding: %w", err)
	}

	scored := make([]scoredChunk, 0, len(r.chunks))
	for _, chunk := range r.chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		similarity, err := utils.CosineSimilarity(queryEmbedding, chunk.Embedding)
		if err != nil {
			slog.DebugContext(ctx, "skipping chunk", "chunk_id", chunk.ID, "error", err)
			continue
		}
		if similarity >= SimilarityThreshold {
			scored = append(scored, scoredChunk{chunk: chunk, similarity: similarity})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].similarity > scored[j].similarity
	})
	if len(scored) > NumRelevantChunks {
		scored = scored[:NumRelevantChunks]
	}

	parts := make([]string, 0, len(scored))
	for _, s := range scored {
		parts = append(parts, s.chunk.Content)
	}
	return strings.Join(parts, "\n\n"), nil
}
