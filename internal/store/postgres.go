package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"practicum.dev/assistant-gateway/internal/apperr"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS interactions (
        id BIGSERIAL PRIMARY KEY,
        question TEXT NOT NULL,
        answer TEXT,
        feedback TEXT CHECK (feedback IS NULL OR feedback IN ('positive', 'negative')),
        "timestamp" TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_interactions_timestamp ON interactions ("timestamp")`,
	`CREATE TABLE IF NOT EXISTS knowledge_chunks (
        id BIGSERIAL PRIMARY KEY,
        content TEXT NOT NULL,
        embedding REAL[]
    )`,
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.Init(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Init(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) CreateInteraction(ctx context.Context, question, answer string) (*Interaction, error) {
	interaction := &Interaction{Question: question, Answer: answer}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO interactions (question, answer) VALUES ($1, $2) RETURNING id, "timestamp"`,
		question, answer).Scan(&interaction.ID, &interaction.Timestamp)
	if err != nil {
		return nil, storageErr("store.CreateInteraction", "could not save interaction", err)
	}
	interaction.Timestamp = interaction.Timestamp.UTC()
	return interaction, nil
}

func (s *PostgresStore) AttachFeedback(ctx context.Context, id int64, feedback Feedback) error {
	const op = "store.AttachFeedback"
	if !feedback.Valid() {
		return apperr.E(apperr.KindInvalidFeedback, op, "feedback must be one of: positive, negative", nil)
	}

	tag, err := s.pool.Exec(ctx,
		"UPDATE interactions SET feedback = $1 WHERE id = $2 AND feedback IS NULL",
		string(feedback), id)
	if err != nil {
		return storageErr(op, "could not record feedback", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var existing *string
	err = s.pool.QueryRow(ctx, "SELECT feedback FROM interactions WHERE id = $1", id).Scan(&existing)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(op, id)
	}
	if err != nil {
		return storageErr(op, "could not record feedback", err)
	}
	return alreadySet(op, id)
}

func (s *PostgresStore) GetInteraction(ctx context.Context, id int64) (*Interaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, question, answer, feedback, "timestamp" FROM interactions WHERE id = $1`, id)
	interaction, err := scanPgInteraction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("store.GetInteraction", id)
	}
	if err != nil {
		return nil, storageErr("store.GetInteraction", "could not read interaction", err)
	}
	return interaction, nil
}

func (s *PostgresStore) ListInteractions(ctx context.Context, filter Filter) ([]Interaction, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	query, args := filter.listQuery(func(n int) string { return "$" + strconv.Itoa(n) })

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("store.ListInteractions", "could not list interactions", err)
	}
	defer rows.Close()

	interactions := []Interaction{}
	for rows.Next() {
		interaction, err := scanPgInteraction(rows)
		if err != nil {
			return nil, storageErr("store.ListInteractions", "could not list interactions", err)
		}
		interactions = append(interactions, *interaction)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("store.ListInteractions", "could not list interactions", err)
	}
	return interactions, nil
}

func (s *PostgresStore) ReplaceKnowledgeChunks(ctx context.Context, chunks []KnowledgeChunk) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "TRUNCATE knowledge_chunks RESTART IDENTITY"); err != nil {
			return fmt.Errorf("failed to truncate knowledge_chunks: %w", err)
		}
		rows := make([][]any, 0, len(chunks))
		for _, chunk := range chunks {
			rows = append(rows, []any{chunk.Content, chunk.Embedding})
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"knowledge_chunks"},
			[]string{"content", "embedding"}, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy knowledge chunks: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListKnowledgeChunks(ctx context.Context) ([]KnowledgeChunk, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, content, embedding FROM knowledge_chunks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge_chunks: %w", err)
	}
	defer rows.Close()

	var chunks []KnowledgeChunk
	for rows.Next() {
		var chunk KnowledgeChunk
		if err := rows.Scan(&chunk.ID, &chunk.Content, &chunk.Embedding); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge_chunks row: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func scanPgInteraction(row pgx.Row) (*Interaction, error) {
	var (
		interaction Interaction
		answer      *string
		feedback    *string
	)
	if err := row.Scan(&interaction.ID, &interaction.Question, &answer, &feedback, &interaction.Timestamp); err != nil {
		return nil, err
	}
	if answer != nil {
		interaction.Answer = *answer
	}
	if feedback != nil {
		f := Feedback(*feedback)
		interaction.Feedback = &f
	}
	interaction.Timestamp = interaction.Timestamp.UTC()
	return &interaction, nil
}
