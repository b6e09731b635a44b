package store

import (
	"context"
	"fmt"
)

// InteractionStore keeps every question/answer pair and its feedback.
// Implementations must be safe for concurrent use.
type InteractionStore interface {
	// Init creates the schema if it is missing. It may be called any number of times.
	Init(ctx context.Context) error
	CreateInteraction(ctx context.Context, question, answer string) (*Interaction, error)
	AttachFeedback(ctx context.Context, id int64, feedback Feedback) error
	GetInteraction(ctx context.Context, id int64) (*Interaction, error)
	ListInteractions(ctx context.Context, filter Filter) ([]Interaction, error)
}

// KnowledgeStore keeps the embedded process notes used to ground answers.
type KnowledgeStore interface {
	ReplaceKnowledgeChunks(ctx context.Context, chunks []KnowledgeChunk) error
	ListKnowledgeChunks(ctx context.Context) ([]KnowledgeChunk, error)
}

type Store interface {
	InteractionStore
	KnowledgeStore
	Close() error
}

// Open connects to the backend named by driver and initializes its schema.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return NewSQLiteStore(ctx, dsn)
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
