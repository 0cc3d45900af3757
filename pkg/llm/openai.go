package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/chatcoach/coachd/pkg/coacherr"
	"github.com/chatcoach/coachd/pkg/config"
)

const openaiComponent = "llm.openai"

// throttleRetries bounds the internal retry loop on 429/5xx answers. Auth and
// request errors are never retried.
const throttleRetries = 3

// OpenAIClient adapts the OpenAI chat completion API, including vision
// requests with image parts. It also serves OpenAI-compatible endpoints via
// a custom base URL.
type OpenAIClient struct {
	client *openai.Client
	cfg    *config.LLMProviderConfig
}

// NewOpenAIClient builds an adapter from a provider entry. The API key is
// resolved from the configured environment variable.
func NewOpenAIClient(cfg *config.LLMProviderConfig) (*OpenAIClient, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, coacherr.New(coacherr.KindProviderAuth, openaiComponent,
			fmt.Sprintf("environment variable %s is not set", cfg.APIKeyEnv))
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}, nil
}

// Provider returns the adapter name.
func (c *OpenAIClient) Provider() string { return "openai" }

// Model returns the configured model name.
func (c *OpenAIClient) Model() string { return c.cfg.Model }

// Complete sends one chat completion request. Throttling and transient server
// errors are retried with exponential backoff; classification of the final
// failure follows the provider's HTTP status.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     c.cfg.Model,
		MaxTokens: req.MaxTokens,
		Messages:  c.buildMessages(req),
	}
	if chatReq.MaxTokens == 0 {
		chatReq.MaxTokens = c.cfg.MaxTokens
	}
	if req.Temperature != nil {
		chatReq.Temperature = *req.Temperature
	} else if c.cfg.Temperature != nil {
		chatReq.Temperature = *c.cfg.Temperature
	}

	start := time.Now()
	resp, err := retry.DoWithData(
		func() (openai.ChatCompletionResponse, error) {
			return c.client.CreateChatCompletion(ctx, chatReq)
		},
		retry.Context(ctx),
		retry.Attempts(throttleRetries),
		retry.RetryIf(isRetryableOpenAIError),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying OpenAI request",
				"model", c.cfg.Model, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, coacherr.New(coacherr.KindInternal, openaiComponent,
			"provider returned no choices")
	}

	return &Response{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		CostUSD:      Cost(c.cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		Duration:     time.Since(start),
	}, nil
}

// buildMessages assembles the system and user messages. When images are
// present the user message carries multi-content parts with data URLs.
func (c *OpenAIClient) buildMessages(req *Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	if len(req.Images) == 0 {
		return append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		})
	}

	parts := make([]openai.ChatMessagePart, 0, len(req.Images)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: req.Prompt,
	})
	for _, img := range req.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: fmt.Sprintf("data:%s;base64,%s",
					img.MediaType, base64.StdEncoding.EncodeToString(img.Data)),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})
}

// isRetryableOpenAIError reports whether an API error is worth another
// attempt: throttling and server-side failures only.
func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	return false
}

// classifyOpenAIError maps a final provider failure onto an error kind.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return coacherr.Wrap(coacherr.KindProviderAuth, openaiComponent,
				"provider rejected credentials", err)
		case apiErr.HTTPStatusCode == 429:
			return coacherr.Wrap(coacherr.KindProviderThrottled, openaiComponent,
				"provider throttled request", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return coacherr.Wrap(coacherr.KindTimeout, openaiComponent,
			"provider request timed out", err)
	}
	return coacherr.Wrap(coacherr.KindInternal, openaiComponent,
		"provider request failed", err)
}
