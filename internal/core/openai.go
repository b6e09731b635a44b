package core

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"practicum.dev/assistant-gateway/internal/apperr"
)

const (
	defaultOpenAIChatModel      = "gpt-4o-mini"
	defaultOpenAIEmbeddingModel = "text-embedding-3-small"
)

// OpenAIProvider talks to OpenAI or any API compatible with its chat completions endpoint.
type OpenAIProvider struct {
	client         *openai.Client
	model          string
	embeddingModel string
}

func NewOpenAIProvider(apiKey, baseURL, model, embeddingModel string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = defaultOpenAIChatModel
	}
	if embeddingModel == "" {
		embeddingModel = defaultOpenAIEmbeddingModel
	}
	return &OpenAIProvider{
		client:         openai.NewClientWithConfig(cfg),
		model:          model,
		embeddingModel: embeddingModel,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Close() error {
	return nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt Prompt) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt.System})
	for _, t := range prompt.History {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt.User})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: answerTemperature,
		MaxTokens:   answerMaxOutputTokens,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", modelError(p.Name(), errors.New("response had no choices"))
	}
	if resp.Choices[0].FinishReason == openai.FinishReasonContentFilter {
		return "", modelError(p.Name(), errors.New("response blocked by content filter"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.embeddingModel),
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, modelError(p.Name(), errors.New("no embedding data received"))
	}
	return resp.Data[0].Embedding, nil
}

func classifyOpenAIError(err error) error {
	const provider = "openai"

	code := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		code = reqErr.HTTPStatusCode
	}
	if code != 0 {
		if classifyHTTPStatus(code) == apperr.KindModelUnavailable {
			return modelUnavailable(provider, err)
		}
		return modelError(provider, err)
	}
	return classifyModelError(provider, err)
}
