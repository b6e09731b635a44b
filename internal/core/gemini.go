package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"practicum.dev/assistant-gateway/internal/apperr"
)

const (
	defaultGeminiChatModel      = "gemini-1.5-flash-latest"
	defaultGeminiEmbeddingModel = "text-embedding-004"

	answerTemperature     = 0.3
	answerMaxOutputTokens = 1024
)

type GeminiProvider struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
}

func NewGeminiProvider(ctx context.Context, apiKey, chatModel, embeddingModel string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if chatModel == "" {
		chatModel = defaultGeminiChatModel
	}
	if embeddingModel == "" {
		embeddingModel = defaultGeminiEmbeddingModel
	}
	return &GeminiProvider{client: client, chatModel: chatModel, embeddingModel: embeddingModel}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Close() error {
	if p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("error closing GenAI client: %w", err)
	}
	slog.Debug("GenAI client closed")
	return nil
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt Prompt) (string, error) {
	model := p.client.GenerativeModel(p.chatModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(prompt.System)},
	}
	model.SetTemperature(answerTemperature)
	model.SetMaxOutputTokens(answerMaxOutputTokens)

	chatSession := model.StartChat()
	chatSession.History = geminiHistory(prompt.History)

	resp, err := chatSession.SendMessage(ctx, genai.Text(prompt.User))
	if err != nil {
		return "", classifyGeminiError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", modelError(p.Name(), errors.New("response had no candidates"))
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	if responseText.Len() == 0 {
		return "", modelError(p.Name(), errors.New("response had no text parts"))
	}
	return responseText.String(), nil
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	em := p.client.EmbeddingModel(p.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, modelError(p.Name(), errors.New("no embedding data received"))
	}
	return res.Embedding.Values, nil
}

// geminiHistory converts turns into chat history. Gemini expects the history to start
// with a user turn and to alternate roles, so leading assistant turns are dropped and
// consecutive turns from the same role are merged.
func geminiHistory(turns []Turn) []*genai.Content {
	var history []*genai.Content
	for _, t := range turns {
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		if len(history) == 0 && role == "model" {
			continue
		}
		if last := len(history) - 1; last >= 0 && history[last].Role == role {
			history[last].Parts = append(history[last].Parts, genai.Text(t.Content))
			continue
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Content)}})
	}
	return history
}

func classifyGeminiError(err error) error {
	const provider = "gemini"

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return modelError(provider, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if classifyHTTPStatus(apiErr.Code) == apperr.KindModelUnavailable {
			return modelUnavailable(provider, err)
		}
		return modelError(provider, err)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted, codes.Canceled:
			return modelUnavailable(provider, err)
		default:
			return modelError(provider, err)
		}
	}

	return classifyModelError(provider, err)
}
