// Package embedding turns free text into fixed-dimension vectors via the
// OpenAI embeddings API.
package embedding

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

type Client struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func NewClient(apiKey, model string, logger *slog.Logger) *Client {
	return &Client{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}
}

// NewClientWithBaseURL points the client at an OpenAI-compatible endpoint.
// Used by tests and self-hosted embedding servers.
func NewClientWithBaseURL(apiKey, model, baseURL string, logger *slog.Logger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

// Embed returns the embedding vector for a single text. Dimensionality is the
// model's; the caller validates it against its configured expectation.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response has no data")
	}

	raw := resp.Data[0].Embedding
	vector := make([]float64, len(raw))
	for i, f := range raw {
		vector[i] = float64(f)
	}
	return vector, nil
}
