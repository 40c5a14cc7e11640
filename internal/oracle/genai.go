package oracle

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIClient runs prompts against Google's Gemini API.
type GenAIClient struct {
	client      *genai.Client
	model       string
	temperature float64
}

// NewGenAIClient builds a Gemini-backed oracle.
func NewGenAIClient(apiKey, model string, temperature float64) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIClient{client: client, model: model, temperature: temperature}, nil
}

// Invoke sends one prompt and returns the generated text.
func (c *GenAIClient) Invoke(ctx context.Context, prompt string) (string, error) {
	temp := float32(c.temperature)
	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{Temperature: &temp},
	)
	if err != nil {
		return "", fmt.Errorf("oracle generation failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("oracle returned empty response")
	}
	return text, nil
}
