package openai

import (
	"context"
	"fmt"

	"github.com/aschepis/recall/memory"
	openai "github.com/sashabaranov/go-openai"
)

type embedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewEmbedder returns a memory.Embedder backed by the OpenAI embeddings API.
// An empty model selects text-embedding-3-small.
func NewEmbedder(apiKey, model string) (memory.Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	m := openai.EmbeddingModel(model)
	if m == "" {
		m = openai.SmallEmbedding3
	}
	return &embedder{
		client: openai.NewClient(apiKey),
		model:  m,
	}, nil
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai returned no embeddings")
	}
	return resp.Data[0].Embedding, nil
}
