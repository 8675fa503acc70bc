package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/brokerage-labs/atticus/internal/anthropic"
	"github.com/brokerage-labs/atticus/internal/api"
	"github.com/brokerage-labs/atticus/internal/bus"
	"github.com/brokerage-labs/atticus/internal/chat"
	"github.com/brokerage-labs/atticus/internal/config"
	"github.com/brokerage-labs/atticus/internal/dispatch"
	"github.com/brokerage-labs/atticus/internal/embedding"
	"github.com/brokerage-labs/atticus/internal/retrieval"
	"github.com/brokerage-labs/atticus/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("atticus starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Anthropic client
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	slog.Info("anthropic client ready", "model", cfg.AnthropicModel)

	// Embedding client
	if cfg.OpenAIAPIKey == "" {
		slog.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	embedder := embedding.NewClient(cfg.OpenAIAPIKey, cfg.EmbeddingModel, slog.Default())
	slog.Info("embedding client ready", "model", cfg.EmbeddingModel, "dim", cfg.EmbeddingDim)

	// Event dispatch. NATS is optional — without it, turn events only reach
	// the audit log.
	dispatcher := dispatch.New(slog.Default())
	dispatcher.Register(dispatch.KindTurnCompleted, auditHandler())
	dispatcher.Register(dispatch.KindTurnDegraded, auditHandler())
	dispatcher.Register(dispatch.KindConversationDeleted, auditHandler())

	if cfg.NatsURL != "" {
		busClient, err := bus.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer busClient.Close()
		dispatcher.Register(dispatch.KindTurnCompleted, busClient)
		dispatcher.Register(dispatch.KindTurnDegraded, busClient)
		dispatcher.Register(dispatch.KindConversationDeleted, busClient)
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured — turn events stay local")
	}

	// Retrieval and chat orchestration
	searcher := retrieval.NewSearcher(db, slog.Default())
	chatSvc := chat.NewService(db, db, embedder, llm, searcher, dispatcher, slog.Default(), chat.Options{
		MaxMessageLen:   cfg.MaxMessageLen,
		HistoryLimit:    cfg.HistoryLimit,
		TopK:            cfg.TopK,
		MinSimilarity:   cfg.MinSimilarity,
		ChunksPerPolicy: cfg.ChunksPerPolicy,
		EmbeddingDim:    cfg.EmbeddingDim,
		MaxTokens:       cfg.MaxTokens,
		EmbedTimeout:    cfg.EmbedTimeout,
		SearchTimeout:   cfg.SearchTimeout,
	})

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, db, chatSvc, dispatcher, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("atticus ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("atticus stopped")
}

// auditHandler logs every dispatched event, so turn outcomes are traceable
// even without a message bus.
func auditHandler() dispatch.Handler {
	return dispatch.HandlerFunc(func(ctx context.Context, evt dispatch.Event) error {
		slog.Info("turn event",
			"kind", evt.Kind,
			"tenant_id", evt.TenantID,
			"conversation_id", evt.ConversationID,
			"message_id", evt.MessageID,
			"degraded", evt.Degraded,
			"input_tokens", evt.InputTokens,
			"output_tokens", evt.OutputTokens,
		)
		return nil
	})
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
