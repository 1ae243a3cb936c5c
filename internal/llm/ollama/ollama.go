// Package ollama implements triage.Provider against a local Ollama runtime
// through langchaingo.
package ollama

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	DefaultServerURL = "http://localhost:11434"
	DefaultModel     = "llama3.2"

	// temperature is kept low so verdict objects come back well formed
	temperature = 0.2
)

// Client wraps a langchaingo Ollama model.
type Client struct {
	llm   llms.Model
	model string
}

// New creates a client for model served at serverURL. httpClient may be nil.
func New(serverURL, model string, httpClient *http.Client) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	if model == "" {
		model = DefaultModel
	}
	opts := []ollama.Option{
		ollama.WithModel(model),
		ollama.WithServerURL(serverURL),
	}
	if httpClient != nil {
		opts = append(opts, ollama.WithHTTPClient(httpClient))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama.New: %w", err)
	}
	return &Client{llm: llm, model: model}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Generate implements triage.Provider.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, llms.WithTemperature(temperature))
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return out, nil
}
