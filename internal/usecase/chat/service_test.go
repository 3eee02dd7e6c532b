package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/paperqa/paperqa/internal/domain"
)

type mockRetriever struct {
	snippets []domain.ContextSnippet
	err      error
}

func (m *mockRetriever) Retrieve(_ context.Context, _ string) ([]domain.ContextSnippet, error) {
	return m.snippets, m.err
}

type mockGenerator struct {
	reply string
	err   error
	seen  [][]domain.ChatMessage
}

func (m *mockGenerator) Complete(_ context.Context, turns []domain.ChatMessage) (string, error) {
	cp := make([]domain.ChatMessage, len(turns))
	copy(cp, turns)
	m.seen = append(m.seen, cp)
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func newService(r Retriever, g Generator) *Service {
	return New(r, g, zap.NewNop(), Config{
		SystemPrompt:     "be grounded",
		MaxMessageLength: 100,
		SessionTTL:       time.Minute,
		SessionCapacity:  8,
	})
}

func TestAsk_SeedsSystemPromptOnce(t *testing.T) {
	gen := &mockGenerator{reply: "answer"}
	svc := newService(&mockRetriever{}, gen)

	for i := 0; i < 2; i++ {
		if _, err := svc.Ask(context.Background(), "u1", "question"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	last := gen.seen[len(gen.seen)-1]
	systems := 0
	for _, m := range last {
		if m.Role == domain.RoleSystem {
			systems++
		}
	}
	if systems != 1 {
		t.Errorf("expected exactly one system message, got %d", systems)
	}
	if last[0].Role != domain.RoleSystem || last[0].Content != "be grounded" {
		t.Errorf("system message must lead the history, got %+v", last[0])
	}
}

func TestAsk_GeneratorSeesGroundedPromptHistoryKeepsRaw(t *testing.T) {
	gen := &mockGenerator{reply: "answer"}
	retr := &mockRetriever{snippets: []domain.ContextSnippet{{Text: "ctx", Filename: "a.pdf"}}}
	svc := newService(retr, gen)

	if _, err := svc.Ask(context.Background(), "u1", "first question"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := gen.seen[0]
	lastTurn := sent[len(sent)-1]
	if !strings.Contains(lastTurn.Content, "## Context") || !strings.Contains(lastTurn.Content, "first question") {
		t.Errorf("generator must see the grounded prompt, got %q", lastTurn.Content)
	}

	// the stored history keeps the raw question
	history := svc.sessions.Get("u1").Messages()
	if history[1].Content != "first question" {
		t.Errorf("history must keep the raw question, got %q", history[1].Content)
	}
	if history[2].Role != domain.RoleAssistant || history[2].Content != "answer" {
		t.Errorf("assistant turn missing, got %+v", history[2])
	}
}

func TestAsk_UsersAreIsolated(t *testing.T) {
	gen := &mockGenerator{reply: "answer"}
	svc := newService(&mockRetriever{}, gen)

	if _, err := svc.Ask(context.Background(), "alice", "q1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Ask(context.Background(), "bob", "q2"); err != nil {
		t.Fatal(err)
	}

	if got := svc.sessions.Get("alice").Len(); got != 3 {
		t.Errorf("alice history len = %d, want 3", got)
	}
	if got := svc.sessions.Get("bob").Len(); got != 3 {
		t.Errorf("bob history len = %d, want 3", got)
	}
	bobTurns := gen.seen[1]
	for _, m := range bobTurns {
		if strings.Contains(m.Content, "q1") {
			t.Errorf("bob's history leaked alice's turn: %+v", m)
		}
	}
}

func TestAsk_RetrievalErrorRollsBackUserTurn(t *testing.T) {
	svc := newService(&mockRetriever{err: domain.ErrStoreRead}, &mockGenerator{})

	_, err := svc.Ask(context.Background(), "u1", "question")
	if !errors.Is(err, domain.ErrStoreRead) {
		t.Fatalf("expected ErrStoreRead, got %v", err)
	}
	// only the seeded system message survives
	if got := svc.sessions.Get("u1").Len(); got != 1 {
		t.Errorf("history len = %d, want 1", got)
	}
}

func TestAsk_GenerationErrorRollsBackUserTurn(t *testing.T) {
	gen := &mockGenerator{err: domain.ErrGenerationProvider}
	svc := newService(&mockRetriever{}, gen)

	_, err := svc.Ask(context.Background(), "u1", "question")
	if !errors.Is(err, domain.ErrGenerationProvider) {
		t.Fatalf("expected ErrGenerationProvider, got %v", err)
	}
	if got := svc.sessions.Get("u1").Len(); got != 1 {
		t.Errorf("history len = %d, want 1", got)
	}

	// a later turn still alternates cleanly
	gen.err = nil
	gen.reply = "recovered"
	if _, err := svc.Ask(context.Background(), "u1", "retry"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	history := svc.sessions.Get("u1").Messages()
	want := []string{domain.RoleSystem, domain.RoleUser, domain.RoleAssistant}
	if len(history) != len(want) {
		t.Fatalf("history len = %d, want %d", len(history), len(want))
	}
	for i, role := range want {
		if history[i].Role != role {
			t.Errorf("turn %d role = %q, want %q", i, history[i].Role, role)
		}
	}
}

func TestAsk_Validation(t *testing.T) {
	svc := newService(&mockRetriever{}, &mockGenerator{reply: "x"})

	cases := []struct {
		name    string
		userID  string
		message string
	}{
		{"empty user", "", "hi"},
		{"empty message", "u1", ""},
		{"too long", "u1", strings.Repeat("a", 101)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Ask(context.Background(), tc.userID, tc.message)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestAsk_AnswerCarriesContext(t *testing.T) {
	retr := &mockRetriever{snippets: []domain.ContextSnippet{
		{Text: "a", Filename: "x.pdf", ChunkIndex: 1, Score: 0.9},
		{Text: "b", Filename: "x.pdf", ChunkIndex: 5, Score: 0.7},
	}}
	svc := newService(retr, &mockGenerator{reply: "grounded answer"})

	ans, err := svc.Ask(context.Background(), "u1", "question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.Text != "grounded answer" {
		t.Errorf("answer text = %q", ans.Text)
	}
	if len(ans.Context) != 2 || ans.Context[1].ChunkIndex != 5 {
		t.Errorf("answer context = %+v", ans.Context)
	}
}

func TestReset(t *testing.T) {
	svc := newService(&mockRetriever{}, &mockGenerator{reply: "x"})

	if _, err := svc.Ask(context.Background(), "u1", "question"); err != nil {
		t.Fatal(err)
	}
	svc.Reset("u1")
	if got := svc.sessions.Get("u1").Len(); got != 0 {
		t.Errorf("history len after reset = %d, want 0", got)
	}
}
