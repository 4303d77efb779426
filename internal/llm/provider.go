// Package llm talks to the external text-generation service. Provider is the
// transport; Client turns each analysis aspect into a prompt and parses the
// answer. Malformed structured answers come back as empty values with a nil
// error, so callers decide when to fall back.
package llm

import (
	"context"
	"fmt"

	"github.com/starford/notegraph/internal/apperr"
)

// Request is a single completion call.
type Request struct {
	// Op names the analysis aspect, e.g. "categorize". Providers ignore it;
	// it is carried for logging and test doubles.
	Op          string
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Provider generates text for a request.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// Disabled is the provider used when no model is configured. Every call
// fails with apperr.ErrUpstream so the heuristic fallback takes over.
type Disabled struct{}

// Generate implements Provider.
func (Disabled) Generate(context.Context, Request) (string, error) {
	return "", fmt.Errorf("llm: provider disabled: %w", apperr.ErrUpstream)
}

// Name implements Provider.
func (Disabled) Name() string { return "disabled" }
