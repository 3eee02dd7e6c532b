package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/paperqa/paperqa/internal/domain"
	"github.com/paperqa/paperqa/internal/metrics"
)

// Generator produces chat completions over an ordered list of turns.
type Generator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewGenerator creates an OpenAI-compatible chat completion provider.
func NewGenerator(cfg *Config) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client: newClient(cfg),
		model:  cfg.GenerationModel,
		logger: logger,
	}
}

// Complete generates one assistant reply for the given conversation.
// Temperature is pinned to zero so identical inputs stay as reproducible as
// the model allows.
func (g *Generator) Complete(ctx context.Context, turns []domain.ChatMessage) (string, error) {
	if len(turns) == 0 {
		return "", fmt.Errorf("no conversation turns: %w", domain.ErrValidation)
	}

	msgs := make([]openai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		msgs[i] = openai.ChatCompletionMessage{Role: t.Role, Content: t.Content}
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    msgs,
		Temperature: 0,
	})
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, "error").Inc()
		g.logger.Warn("completion request failed",
			zap.String("model", g.model),
			zap.Int("turns", len(turns)),
			zap.Error(err),
		)
		return "", parseAPIError(err, domain.ErrGenerationProvider)
	}
	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, "error").Inc()
		g.logger.Warn("empty completion response", zap.String("model", g.model))
		return "", fmt.Errorf("empty completion response: %w", domain.ErrGenerationProvider)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.model, "success").Inc()
	return resp.Choices[0].Message.Content, nil
}
