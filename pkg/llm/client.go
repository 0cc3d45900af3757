// Package llm abstracts the LLM providers behind a single completion
// interface and supplies the OpenAI-compatible and Anthropic adapters used
// as race arms. Provider throttling is retried internally; auth failures are
// surfaced immediately.
package llm

import (
	"context"
	"time"

	"github.com/chatcoach/coachd/pkg/config"
	"github.com/chatcoach/coachd/pkg/imagefetch"
)

// Request is one completion request. Images are optional; adapters that
// receive them build multimodal messages.
type Request struct {
	System      string
	Prompt      string
	Images      []*imagefetch.Image
	MaxTokens   int
	Temperature *float32
}

// Response is one completion answer with usage accounting.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Duration     time.Duration
}

// Client is the provider-facing completion interface.
type Client interface {
	// Complete sends one request and waits for the full answer.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Provider returns the adapter name for trace records.
	Provider() string

	// Model returns the configured model name.
	Model() string
}

// NewClient builds the adapter matching a provider configuration.
func NewClient(cfg *config.LLMProviderConfig) (Client, error) {
	switch cfg.Type {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg)
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg)
	}
	return nil, &UnsupportedProviderError{Type: string(cfg.Type)}
}

// UnsupportedProviderError is returned for unknown provider types.
type UnsupportedProviderError struct {
	Type string
}

func (e *UnsupportedProviderError) Error() string {
	return "unsupported llm provider type: " + e.Type
}
