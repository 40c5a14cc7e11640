// Package embedding generates vector embeddings for memory content.
// Backends: Ollama (local HTTP) and Google GenAI (cloud).
package embedding

import (
	"context"
	"fmt"
	"sync"

	"acemem/internal/config"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of the embeddings.
	Dimensions() int

	// Name returns the engine identifier, e.g. "ollama:embeddinggemma".
	Name() string
}

// NewEngine creates an engine from configuration.
func NewEngine(cfg config.EmbeddingConfig) (Engine, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.Model), nil
	case "genai":
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
	}
}

var (
	sharedOnce sync.Once
	sharedEng  Engine
	sharedErr  error
)

// Shared returns the process-wide engine, creating it on first use. Every
// component in the process reuses the same encoder so the model is only
// initialized once; cfg is consulted on the first call only.
func Shared(cfg config.EmbeddingConfig) (Engine, error) {
	sharedOnce.Do(func() {
		sharedEng, sharedErr = NewEngine(cfg)
	})
	return sharedEng, sharedErr
}
