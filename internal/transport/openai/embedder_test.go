package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/paperqa/paperqa/internal/domain"
)

func failingAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"backend exploded"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedBatch_ProviderFailureIsLogged(t *testing.T) {
	srv := failingAPIServer(t)
	core, logs := observer.New(zap.WarnLevel)

	e := NewEmbedder(&Config{
		APIKey:         "test-key",
		BaseURL:        srv.URL,
		EmbeddingModel: "text-embedding-3-small",
		Logger:         zap.New(core),
	})

	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected ErrEmbeddingProvider, got %v", err)
	}
	if logs.FilterMessage("embedding request failed").Len() != 1 {
		t.Errorf("expected one failure log entry, got %d", logs.Len())
	}
}

func TestComplete_ProviderFailureIsLogged(t *testing.T) {
	srv := failingAPIServer(t)
	core, logs := observer.New(zap.WarnLevel)

	g := NewGenerator(&Config{
		APIKey:          "test-key",
		BaseURL:         srv.URL,
		GenerationModel: "gpt-4.1-nano",
		Logger:          zap.New(core),
	})

	_, err := g.Complete(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "hello"},
	})
	if !errors.Is(err, domain.ErrGenerationProvider) {
		t.Fatalf("expected ErrGenerationProvider, got %v", err)
	}
	if logs.FilterMessage("completion request failed").Len() != 1 {
		t.Errorf("expected one failure log entry, got %d", logs.Len())
	}
}

func TestNilLoggerDefaultsToNop(t *testing.T) {
	srv := failingAPIServer(t)

	e := NewEmbedder(&Config{APIKey: "k", BaseURL: srv.URL, EmbeddingModel: "m"})
	if _, err := e.EmbedBatch(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error from failing backend")
	}

	g := NewGenerator(&Config{APIKey: "k", BaseURL: srv.URL, GenerationModel: "m"})
	if _, err := g.Complete(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "x"}}); err == nil {
		t.Fatal("expected error from failing backend")
	}
}
