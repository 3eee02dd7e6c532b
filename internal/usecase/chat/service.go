// Package chat drives grounded question answering over per-user sessions.
package chat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/paperqa/paperqa/internal/domain"
	"github.com/paperqa/paperqa/internal/usecase/retrieval"
)

// Retriever finds context snippets for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.ContextSnippet, error)
}

// Generator completes a chat exchange into assistant text.
type Generator interface {
	Complete(ctx context.Context, turns []domain.ChatMessage) (string, error)
}

// Service answers questions with retrieved context, keeping one
// conversation per user.
type Service struct {
	retriever    Retriever
	generator    Generator
	sessions     *Manager
	log          *zap.Logger
	systemPrompt string
	maxMsgLen    int
}

// Config holds chat service settings.
type Config struct {
	SystemPrompt     string
	MaxMessageLength int
	SessionTTL       time.Duration
	SessionCapacity  int
}

// New creates a chat service.
func New(retriever Retriever, generator Generator, log *zap.Logger, cfg Config) *Service {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 2048
	}
	return &Service{
		retriever:    retriever,
		generator:    generator,
		sessions:     NewManager(cfg.SessionCapacity, cfg.SessionTTL),
		log:          log,
		systemPrompt: cfg.SystemPrompt,
		maxMsgLen:    cfg.MaxMessageLength,
	}
}

// Ask runs one grounded turn for the given user. The raw question goes
// into the history; the model sees the same history with the final user
// turn replaced by the grounded prompt. A retrieval or generation
// failure rolls the user turn back so the history keeps strict
// user/assistant alternation.
func (s *Service) Ask(ctx context.Context, userID, message string) (domain.Answer, error) {
	if userID == "" {
		return domain.Answer{}, fmt.Errorf("user id is empty: %w", domain.ErrValidation)
	}
	if message == "" {
		return domain.Answer{}, fmt.Errorf("message is empty: %w", domain.ErrValidation)
	}
	if len(message) > s.maxMsgLen {
		return domain.Answer{}, fmt.Errorf(
			"message length %d exceeds limit %d: %w", len(message), s.maxMsgLen, domain.ErrValidation,
		)
	}

	session := s.sessions.Get(userID)
	session.Lock()
	defer session.Unlock()

	if session.Empty() {
		session.Append(domain.RoleSystem, s.systemPrompt)
	}

	mark := session.Len()
	session.Append(domain.RoleUser, message)

	snippets, err := s.retriever.Retrieve(ctx, message)
	if err != nil {
		session.Truncate(mark)
		return domain.Answer{}, fmt.Errorf("retrieve context: %w", err)
	}

	turns := session.Messages()
	turns[len(turns)-1].Content = retrieval.BuildPrompt(message, snippets)

	text, err := s.generator.Complete(ctx, turns)
	if err != nil {
		session.Truncate(mark)
		return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	session.Append(domain.RoleAssistant, text)

	s.log.Info("chat turn completed",
		zap.String("user_id", userID),
		zap.Int("context_snippets", len(snippets)),
		zap.Int("history_len", session.Len()),
	)
	return domain.Answer{Text: text, Context: snippets}, nil
}

// Reset drops the user's conversation history.
func (s *Service) Reset(userID string) {
	session := s.sessions.Get(userID)
	session.Lock()
	defer session.Unlock()
	session.Truncate(0)
}
