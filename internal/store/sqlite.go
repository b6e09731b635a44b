package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"practicum.dev/assistant-gateway/internal/apperr"
)

const sqliteSchema = `
    CREATE TABLE IF NOT EXISTS interactions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        question TEXT NOT NULL,
        answer TEXT,
        feedback TEXT CHECK (feedback IS NULL OR feedback IN ('positive', 'negative')),
        "timestamp" DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_interactions_timestamp ON interactions ("timestamp");

    CREATE TABLE IF NOT EXISTS knowledge_chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        content TEXT NOT NULL,
        embedding_json TEXT -- JSON array of float32
    );
    `

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withBusyTimeout(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// withBusyTimeout makes concurrent writers wait for the file lock instead of failing
// with SQLITE_BUSY.
func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_busy_timeout=5000"
	}
	return dsn + "?_busy_timeout=5000"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteStore) CreateInteraction(ctx context.Context, question, answer string) (*Interaction, error) {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (question, answer, "timestamp") VALUES (?, ?, ?)`,
		question, answer, now)
	if err != nil {
		return nil, storageErr("store.CreateInteraction", "could not save interaction", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("store.CreateInteraction", "could not save interaction", err)
	}
	return &Interaction{ID: id, Question: question, Answer: answer, Timestamp: now}, nil
}

func (s *SQLiteStore) AttachFeedback(ctx context.Context, id int64, feedback Feedback) error {
	const op = "store.AttachFeedback"
	if !feedback.Valid() {
		return apperr.E(apperr.KindInvalidFeedback, op, "feedback must be one of: positive, negative", nil)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE interactions SET feedback = ? WHERE id = ? AND feedback IS NULL",
		string(feedback), id)
	if err != nil {
		return storageErr(op, "could not record feedback", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr(op, "could not record feedback", err)
	}
	if affected == 1 {
		return nil
	}

	// Nothing updated: either the id is unknown or feedback was already recorded.
	var existing sql.NullString
	err = s.db.QueryRowContext(ctx, "SELECT feedback FROM interactions WHERE id = ?", id).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(op, id)
	}
	if err != nil {
		return storageErr(op, "could not record feedback", err)
	}
	return alreadySet(op, id)
}

func (s *SQLiteStore) GetInteraction(ctx context.Context, id int64) (*Interaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question, answer, feedback, "timestamp" FROM interactions WHERE id = ?`, id)
	interaction, err := scanInteraction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("store.GetInteraction", id)
	}
	if err != nil {
		return nil, storageErr("store.GetInteraction", "could not read interaction", err)
	}
	return interaction, nil
}

func (s *SQLiteStore) ListInteractions(ctx context.Context, filter Filter) ([]Interaction, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	query, args := filter.listQuery(func(int) string { return "?" })

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("store.ListInteractions", "could not list interactions", err)
	}
	defer rows.Close()

	interactions := []Interaction{}
	for rows.Next() {
		interaction, err := scanInteraction(rows)
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

// ReplaceKnowledgeChunks swaps the whole knowledge base in one transaction.
func (s *SQLiteStore) ReplaceKnowledgeChunks(ctx context.Context, chunks []KnowledgeChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin knowledge transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM knowledge_chunks"); err != nil {
		return fmt.Errorf("failed to delete knowledge_chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = 'knowledge_chunks'"); err != nil &&
		!strings.Contains(err.Error(), "no such table") {
		slog.WarnContext(ctx, "could not reset sequence for knowledge_chunks", "error", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO knowledge_chunks (content, embedding_json) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare knowledge_chunks insert: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		embeddingJSON, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding for chunk %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, chunk.Content, string(embeddingJSON)); err != nil {
			return fmt.Errorf("failed to insert knowledge chunk %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListKnowledgeChunks(ctx context.Context) ([]KnowledgeChunk, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, content, embedding_json FROM knowledge_chunks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge_chunks: %w", err)
	}
	defer rows.Close()

	var chunks []KnowledgeChunk
	for rows.Next() {
		var (
			chunk         KnowledgeChunk
			embeddingJSON sql.NullString
		)
		if err := rows.Scan(&chunk.ID, &chunk.Content, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge_chunks row: %w", err)
		}
		if embeddingJSON.String != "" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &chunk.Embedding); err != nil {
				slog.WarnContext(ctx, "dropping malformed embedding", "chunk_id", chunk.ID, "error", err)
				chunk.Embedding = nil
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(row rowScanner) (*Interaction, error) {
	var (
		interaction Interaction
		answer      sql.NullString
		feedback    sql.NullString
	)
	if err := row.Scan(&interaction.ID, &interaction.Question, &answer, &feedback, &interaction.Timestamp); err != nil {
		return nil, err
	}
	interaction.Answer = answer.String
	if feedback.Valid {
		f := Feedback(feedback.String)
		interaction.Feedback = &f
	}
	interaction.Timestamp = interaction.Timestamp.UTC()
	return &interaction, nil
}

func storageErr(op, msg string, err error) error {
	return apperr.E(apperr.KindStorageError, op, msg, err)
}

func notFound(op string, id int64) error {
	return apperr.E(apperr.KindNotFound, op, fmt.Sprintf("interaction %d not found", id), nil)
}

func alreadySet(op string, id int64) error {
	return apperr.E(apperr.KindFeedbackAlreadySet, op,
		fmt.Sprintf("feedback for interaction %d was already recorded", id), nil)
}
