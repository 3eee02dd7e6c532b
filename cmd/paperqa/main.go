package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/paperqa/paperqa/internal/config"
	logpkg "github.com/paperqa/paperqa/internal/logger"
	"github.com/paperqa/paperqa/internal/metrics"
	"github.com/paperqa/paperqa/internal/store"
	storeQdrant "github.com/paperqa/paperqa/internal/store/qdrant"
	storeRedis "github.com/paperqa/paperqa/internal/store/redis"
	"github.com/paperqa/paperqa/internal/transport/httpapi"
	openaiTransport "github.com/paperqa/paperqa/internal/transport/openai"
	chatuc "github.com/paperqa/paperqa/internal/usecase/chat"
	embeddinguc "github.com/paperqa/paperqa/internal/usecase/embedding"
	filesuc "github.com/paperqa/paperqa/internal/usecase/files"
	healthuc "github.com/paperqa/paperqa/internal/usecase/health"
	ingestuc "github.com/paperqa/paperqa/internal/usecase/ingest"
	retrievaluc "github.com/paperqa/paperqa/internal/usecase/retrieval"
	"github.com/paperqa/paperqa/internal/version"
)

func main() {
	// Local development picks up OPENAI_API_KEY and friends from .env
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting paperqa API server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("collection", cfg.Store.Collection),
	)

	// Register metrics explicitly (no init())
	metrics.Register()
	metrics.RegisterHTTP()

	// Create the vector store based on driver
	var st store.Store
	switch cfg.Store.Driver {
	case "qdrant":
		st, err = storeQdrant.NewStore(storeQdrant.Config{
			URL:        cfg.Store.Endpoint,
			APIKey:     cfg.Store.APIKey,
			Collection: cfg.Store.Collection,
			Timeout:    time.Duration(cfg.Store.TimeoutSec) * time.Second,
		})
	case "redis":
		st, err = storeRedis.NewStore(storeRedis.Config{
			Addrs:      cfg.Store.Addrs,
			Username:   cfg.Store.Username,
			Password:   cfg.Store.Password,
			DB:         cfg.Store.DB,
			Collection: cfg.Store.Collection,
			Timeout:    time.Duration(cfg.Store.TimeoutSec) * time.Second,
		})
	default:
		logger.Fatal("Unknown store driver", zap.String("driver", cfg.Store.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create vector store", zap.Error(err))
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.EnsureCollection(ctx, cfg.Store.VectorSize); err != nil {
		logger.Fatal("Failed to ensure collection", zap.Error(err))
	}
	logger.Info("Connected to vector store")

	// Model provider clients
	providerCfg := &openaiTransport.Config{
		APIKey:          cfg.OpenAI.APIKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		EmbeddingModel:  cfg.OpenAI.EmbeddingModel,
		GenerationModel: cfg.OpenAI.GenerationModel,
		Logger:          logger,
	}
	embedder := openaiTransport.NewEmbedder(providerCfg)
	generator := openaiTransport.NewGenerator(providerCfg)

	batcher := embeddinguc.NewBatcher(embedder, cfg.Ingest.BatchSize)

	// Use case services
	ingestSvc := ingestuc.New(st, batcher, logger, cfg.Ingest.BatchSize)
	filesSvc := filesuc.New(st, logger)
	retrievalSvc := retrievaluc.New(st, batcher, logger, cfg.Retrieval.TopK)
	chatSvc := chatuc.New(retrievalSvc, generator, logger, chatuc.Config{
		SystemPrompt:     cfg.Chat.SystemPrompt,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		SessionTTL:       time.Duration(cfg.Chat.SessionTTLMin) * time.Minute,
		SessionCapacity:  cfg.Chat.SessionCapacity,
	})
	healthSvc := healthuc.New(st, embedder)

	server := httpapi.NewServer(
		chatSvc, ingestSvc, filesSvc, healthSvc, logger,
		cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)
	r.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.IntoContext(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
