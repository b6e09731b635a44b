package core

import (
	"context"
	"strings"
	"time"

	"practicum.dev/assistant-gateway/internal/apperr"
	"practicum.dev/assistant-gateway/internal/observability"
	"practicum.dev/assistant-gateway/internal/store"
)

// State is the position of a question in its lifecycle.
type State string

const (
	StateReceived   State = "received"
	StateComposing  State = "composing"
	StateInvoking   State = "invoking"
	StatePersisting State = "persisting"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Answerer is the model side of the gateway; *ModelAdapter implements it.
type Answerer interface {
	Answer(ctx context.Context, prompt Prompt) (string, error)
}

// ContextRetriever supplies optional grounding text; *Retriever implements it.
type ContextRetriever interface {
	RelevantContext(ctx context.Context, question string) (string, error)
}

type AskInput struct {
	Question string
	History  []Turn
}

// AskResult describes how far a question got. Interaction is nil when nothing was stored.
type AskResult struct {
	State       State
	Answer      string
	Interaction *store.Interaction
}

type AssistantService struct {
	composer        *Composer
	model           Answerer
	store           store.InteractionStore
	retriever       ContextRetriever
	storeTimeout    time.Duration
	retrieveTimeout time.Duration
}

type Option func(*AssistantService)

// WithRetriever grounds prompts with retrieved process notes.
func WithRetriever(r ContextRetriever) Option {
	return func(s *AssistantService) { s.retriever = r }
}

// WithRetrievalTimeout bounds the knowledge lookup; on expiry the question is answered without it.
func WithRetrievalTimeout(d time.Duration) Option {
	return func(s *AssistantService) { s.retrieveTimeout = d }
}

// WithStoreTimeout bounds the audit write that runs detached from the caller.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *AssistantService) { s.storeTimeout = d }
}

func NewAssistantService(composer *Composer, model Answerer, is store.InteractionStore, opts ...Option) *AssistantService {
	s := &AssistantService{
		composer:        composer,
		model:           model,
		store:           is,
		storeTimeout:    5 * time.Second,
		retrieveTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask runs one question through compose, invoke and persist. A failed model call is
// still recorded with store.UnavailableAnswer before the model error is returned.
func (s *AssistantService) Ask(ctx context.Context, in AskInput) (*AskResult, error) {
	const op = "core.Ask"
	logger := observability.LoggerFromContext(ctx)
	res := &AskResult{State: StateReceived}

	fail := func(err error) (*AskResult, error) {
		logger.DebugContext(ctx, "question failed", "from_state", res.State, "kind", apperr.KindOf(err))
		res.State = StateFailed
		return res, err
	}

	if strings.TrimSpace(in.Question) == "" {
		return fail(apperr.E(apperr.KindInvalidInput, op, "question cannot be empty", nil))
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	res.State = StateComposing
	knowledge := s.retrieve(ctx, in.Question)
	prompt, err := s.composer.Compose(in.Question, in.History, knowledge)
	if err != nil {
		return fail(err)
	}

	// Nothing has happened yet; a caller that is already gone costs nothing.
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	res.State = StateInvoking
	answer, modelErr := s.model.Answer(ctx, prompt)
	if apperr.Is(modelErr, apperr.KindPromptTooLarge) && knowledge != "" {
		// Retrieved context is optional; only the bare prompt may exceed the limit.
		logger.InfoContext(ctx, "prompt too large with retrieved context, answering without it")
		prompt, err = s.composer.Compose(in.Question, in.History, "")
		if err != nil {
			return fail(err)
		}
		answer, modelErr = s.model.Answer(ctx, prompt)
	}
	if apperr.Is(modelErr, apperr.KindPromptTooLarge) {
		return fail(modelErr)
	}

	res.State = StatePersisting
	stored := answer
	if modelErr != nil {
		stored = store.UnavailableAnswer
	}

	// The audit record must survive a disconnect during the model call or the write.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	interaction, storeErr := s.store.CreateInteraction(persistCtx, in.Question, stored)
	if storeErr != nil {
		logger.ErrorContext(ctx, "failed to persist interaction",
			"error", storeErr, "model_failed", modelErr != nil)
		if modelErr != nil {
			return fail(modelErr)
		}
		// Disclosed best effort: the computed answer is returned with the storage error.
		res.Answer = answer
		return fail(storeErr)
	}
	res.Interaction = interaction
	logger = logger.With("interaction_id", interaction.ID)

	if modelErr != nil {
		logger.WarnContext(ctx, "recorded failed model call", "kind", apperr.KindOf(modelErr))
		return fail(modelErr)
	}

	res.State = StateCompleted
	res.Answer = answer
	logger.InfoContext(ctx, "question answered")
	return res, nil
}

// retrieve returns grounding text for question, or "" when retrieval is off, fails or
// does not finish within retrieveTimeout.
func (s *AssistantService) retrieve(ctx context.Context, question string) string {
	if s.retriever == nil {
		return ""
	}
	rctx := ctx
	if s.retrieveTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, s.retrieveTimeout)
		defer cancel()
	}
	knowledge, err := s.retriever.RelevantContext(rctx, question)
	if err != nil {
		observability.LoggerFromContext(ctx).WarnContext(ctx, "knowledge retrieval failed, answering without it", "error", err)
		return ""
	}
	return knowledge
}

// RecordFeedback attaches feedback to a stored interaction and returns the updated record.
func (s *AssistantService) RecordFeedback(ctx context.Context, id int64, value string) (*store.Interaction, error) {
	feedback, err := store.ParseFeedback(value)
	if err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, apperr.E(apperr.KindInvalidInput, "core.RecordFeedback", "interactionId must be a positive integer", nil)
	}
	if err := s.store.AttachFeedback(ctx, id, feedback); err != nil {
		return nil, err
	}
	logger := observability.LoggerFromContext(ctx).With("interaction_id", id)
	logger.InfoContext(ctx, "feedback recorded", "feedback", feedback)

	interaction, err := s.store.GetInteraction(ctx, id)
	if err != nil {
		// The write is committed; a failed read-back must not turn it into an error.
		logger.WarnContext(ctx, "could not reload interaction after feedback", "error", err)
		return &store.Interaction{ID: id, Feedback: &feedback}, nil
	}
	return interaction, nil
}

func (s *AssistantService) ListInteractions(ctx context.Context, filter store.Filter) ([]store.Interaction, error) {
	return s.store.ListInteractions(ctx, filter)
}

func (s *AssistantService) GetInteraction(ctx context.Context, id int64) (*store.Interaction, error) {
	return s.store.GetInteraction(ctx, id)
}
