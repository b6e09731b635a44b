package store

import (
	"strings"
	"time"

	"practicum.dev/assistant-gateway/internal/apperr"
)

// UnavailableAnswer is stored as the answer of an interaction whose model call failed.
const UnavailableAnswer = "[unavailable]"

type Feedback string

const (
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
)

func (f Feedback) Valid() bool {
	return f == FeedbackPositive || f == FeedbackNegative
}

// ParseFeedback accepts only the closed feedback set, case-insensitively.
func ParseFeedback(s string) (Feedback, error) {
	f := Feedback(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", apperr.E(apperr.KindInvalidFeedback, "store.ParseFeedback",
			"feedback must be one of: positive, negative", nil)
	}
	return f, nil
}

type Interaction struct {
	ID        int64     `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Feedback  *Feedback `json:"feedback"` // nil until a caller rates the answer
	Timestamp time.Time `json:"timestamp"`
}

// Failed reports whether the interaction records a failed model call.
func (i *Interaction) Failed() bool {
	return i.Answer == UnavailableAnswer
}

type KnowledgeChunk struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
}
