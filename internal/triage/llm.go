// internal/triage/llm.go
package triage

import "context"

// Provider is the interface for any text generation backend. Implementations
// return the raw model output for a single prompt; they must honour the
// context deadline.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context, prompt string) (string, error)

// Generate implements Provider.
func (f ProviderFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
