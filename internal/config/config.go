package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        int
	DatabaseURL string
	LogLevel    string
	APIToken    string

	NatsURL   string
	NatsToken string

	AnthropicAPIKey string
	AnthropicModel  string
	MaxTokens       int

	OpenAIAPIKey   string
	EmbeddingModel string
	EmbeddingDim   int

	// Retrieval knobs.
	TopK            int
	MinSimilarity   float64
	ChunksPerPolicy int

	// Chat orchestration knobs.
	MaxMessageLen int
	HistoryLimit  int
	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
}

func Load() Config {
	return Config{
		Port:        envInt("ATTICUS_PORT", 8460),
		DatabaseURL: envStr("DATABASE_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		APIToken:    envStr("ATTICUS_API_TOKEN", ""),

		NatsURL:   envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken: envStr("NATS_TOKEN", ""),

		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("ATTICUS_MODEL", "claude-sonnet-4-20250514"),
		MaxTokens:       envInt("ATTICUS_MAX_TOKENS", 2048),

		OpenAIAPIKey:   envStr("OPENAI_API_KEY", ""),
		EmbeddingModel: envStr("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:   envInt("EMBEDDING_DIM", 1536),

		TopK:            envInt("RETRIEVAL_TOP_K", 8),
		MinSimilarity:   envFloat("RETRIEVAL_MIN_SIMILARITY", 0.25),
		ChunksPerPolicy: envInt("RETRIEVAL_CHUNKS_PER_POLICY", 4),

		MaxMessageLen: envInt("CHAT_MAX_MESSAGE_LEN", 4000),
		HistoryLimit:  envInt("CHAT_HISTORY_LIMIT", 20),
		EmbedTimeout:  envDur("CHAT_EMBED_TIMEOUT", 10*time.Second),
		SearchTimeout: envDur("CHAT_SEARCH_TIMEOUT", 5*time.Second),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
