// Package llm provides the language-model providers used by the model-backed
// extraction tiers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedResponse indicates provider output that does not contain a
	// JSON object.
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrEmptyResponse indicates a provider returned no choices or no text.
	ErrEmptyResponse = errors.New("empty provider response")
)

// Request is a single structured-extraction completion request.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// Provider completes a prompt and returns the raw text of the first choice.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// StatusError is a non-2xx provider HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// ExtractJSONObject returns the substring from the first '{' to the last '}'.
// Models often wrap JSON in prose or code fences.
func ExtractJSONObject(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: no JSON object in %q", ErrMalformedResponse, truncate(text, 80))
	}
	return text[start : end+1], nil
}

// FuncProvider adapts a function to Provider. Useful in tests and for wiring
// deterministic stand-ins.
type FuncProvider struct {
	ProviderName string
	Fn           func(ctx context.Context, req Request) (string, error)
}

// Complete calls Fn.
func (p *FuncProvider) Complete(ctx context.Context, req Request) (string, error) {
	return p.Fn(ctx, req)
}

// Name returns ProviderName.
func (p *FuncProvider) Name() string {
	if p.ProviderName == "" {
		return "func"
	}
	return p.ProviderName
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
