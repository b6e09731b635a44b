package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"practicum.dev/assistant-gateway/internal/apperr"
	"practicum.dev/assistant-gateway/internal/observability"
)

// Provider is one external generative-model API. Implementations should return errors
// built with modelUnavailable/modelError; anything else is classified by the adapter.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// Embedder turns text into a vector for knowledge retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ModelBackend is what the process builds at startup from configuration.
type ModelBackend interface {
	Provider
	Embedder
	io.Closer
}

type AdapterConfig struct {
	MaxPromptChars int
	Timeout        time.Duration // per attempt
	RetryDelay     time.Duration
}

// ModelAdapter isolates the gateway from provider failure modes: it enforces the prompt
// limit, bounds each call, retries a transient failure once and always returns a
// classified *apperr.Error.
type ModelAdapter struct {
	provider Provider
	cfg      AdapterConfig
}

func NewModelAdapter(provider Provider, cfg AdapterConfig) *ModelAdapter {
	return &ModelAdapter{provider: provider, cfg: cfg}
}

func (a *ModelAdapter) Answer(ctx context.Context, prompt Prompt) (string, error) {
	const op = "core.ModelAdapter.Answer"
	logger := observability.LoggerFromContext(ctx).With("provider", a.provider.Name())

	if size := prompt.Size(); a.cfg.MaxPromptChars > 0 && size > a.cfg.MaxPromptChars {
		return "", apperr.E(apperr.KindPromptTooLarge, op,
			fmt.Sprintf("the question and conversation history are too long (%d characters, limit %d)", size, a.cfg.MaxPromptChars), nil)
	}

	var (
		answer   string
		lastErr  error
		attempts int
	)
	operation := func() error {
		attempts++
		callCtx := ctx
		if a.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
			defer cancel()
		}

		start := time.Now()
		text, err := a.provider.Generate(callCtx, prompt)
		if err == nil {
			if text = strings.TrimSpace(text); text != "" {
				answer = text
				logger.DebugContext(ctx, "model call completed",
					"attempt", attempts, "duration_ms", time.Since(start).Milliseconds())
				return nil
			}
			err = modelError(a.provider.Name(), errors.New("empty answer"))
		}

		lastErr = classifyModelError(a.provider.Name(), err)
		if apperr.KindOf(lastErr) != apperr.KindModelUnavailable || ctx.Err() != nil {
			return backoff.Permanent(lastErr)
		}
		logger.WarnContext(ctx, "transient model failure", "attempt", attempts, "error", err)
		return lastErr
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(a.cfg.RetryDelay), 1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if lastErr == nil {
			lastErr = modelUnavailable(a.provider.Name(), err)
		}
		logger.ErrorContext(ctx, "model call failed",
			"attempts", attempts, "kind", apperr.KindOf(lastErr), "error", lastErr)
		return "", lastErr
	}
	return answer, nil
}

func modelUnavailable(provider string, err error) error {
	return apperr.E(apperr.KindModelUnavailable, provider, "the assistant is temporarily unavailable, please try again", err)
}

func modelError(provider string, err error) error {
	return apperr.E(apperr.KindModelError, provider, "the assistant could not answer this question", err)
}

// classifyModelError keeps errors providers already classified and sorts the rest into
// transient transport failures and definitive ones.
func classifyModelError(provider string, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindModelUnavailable, apperr.KindModelError:
		return err
	}
	if isTransportError(err) {
		return modelUnavailable(provider, err)
	}
	return modelError(provider, err)
}

// classifyHTTPStatus maps a provider HTTP status onto a model error kind.
// Rate limits and auth failures are definitive: retrying cannot succeed.
func classifyHTTPStatus(code int) apperr.Kind {
	switch {
	case code == http.StatusRequestTimeout, code >= 500:
		return apperr.KindModelUnavailable
	default:
		return apperr.KindModelError
	}
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
