// Package oracle wraps the language model the reflection worker consults.
// The worker treats it as a black box: one synchronous prompt in, one text
// out. Retries and backoff belong to the backend clients, not the worker.
package oracle

import (
	"context"
	"fmt"

	"acemem/internal/config"
)

// Client is the single surface the reflection worker depends on.
type Client interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// New creates a client from configuration.
func New(cfg config.OracleConfig) (Client, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(cfg), nil
	case "genai":
		return NewGenAIClient(cfg.APIKey, cfg.Model, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unsupported oracle provider: %s (use 'openai' or 'genai')", cfg.Provider)
	}
}
