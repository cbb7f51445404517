package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/aschepis/recall/memory"
	"github.com/ollama/ollama/api"
)

type Model string

const (
	ModelMXBAI Model = "mxbai-embed-large"
)

const defaultHost = "http://localhost:11434"

type embedder struct {
	client *api.Client
	model  Model
}

// NewEmbedder returns a memory.Embedder backed by an Ollama instance at
// host. The OLLAMA_HOST environment variable overrides host when set; an
// empty host falls back to the local default.
func NewEmbedder(host string, model Model) (memory.Embedder, error) {
	if model == "" {
		model = ModelMXBAI
	}
	if envHost := os.Getenv("OLLAMA_HOST"); envHost != "" {
		host = envHost
	}
	if host == "" {
		host = defaultHost
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return &embedder{client: api.NewClient(base, http.DefaultClient), model: model}, nil
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: string(e.model),
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}
	return resp.Embeddings[0], nil
}
