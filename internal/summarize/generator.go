package summarize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GeneratorConfig configures the hosted model client.
type GeneratorConfig struct {
	BaseURL    string // empty: the Gemini API default
	APIVersion string // e.g. v1beta
	Model      string
	APIKey     string
	Timeout    time.Duration
}

// GeminiGenerator generates text through the Gemini API.
type GeminiGenerator struct {
	models  *genai.Models
	model   string
	timeout time.Duration
}

// NewGeminiGenerator creates a generator client.
func NewGeminiGenerator(ctx context.Context, cfg GeneratorConfig) (*GeminiGenerator, error) {
	if cfg.Model == "" || cfg.APIKey == "" {
		return nil, errors.New("summarizer model and api key are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.BaseURL,
			APIVersion: cfg.APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}
	return &GeminiGenerator{models: client.Models, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("call model: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("model returned no text")
	}
	return text, nil
}
