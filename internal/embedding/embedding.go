// Package embedding turns memory content into vectors for the long-term
// semantic store. Two providers are supported: an OpenAI-compatible HTTP API
// and an Ollama-style local endpoint.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"` // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "api":
		return NewAPIProvider(cfg), nil
	case "local":
		return NewLocalProvider(cfg), nil
	}
	return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
}

// Embedding sits behind the semantic store's deadline, so a bounded client
// timeout beats hanging a remember call.
var httpClient = &http.Client{Timeout: 30 * time.Second}
