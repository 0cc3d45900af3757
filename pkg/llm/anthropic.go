package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/avast/retry-go/v4"

	"github.com/chatcoach/coachd/pkg/coacherr"
	"github.com/chatcoach/coachd/pkg/config"
	"github.com/chatcoach/coachd/pkg/imagefetch"
)

const anthropicComponent = "llm.anthropic"

const anthropicDefaultMaxTokens = 4096

// AnthropicClient adapts the Anthropic Messages API, including multimodal
// requests with base64 image blocks.
type AnthropicClient struct {
	client anthropic.Client
	cfg    *config.LLMProviderConfig
}

// NewAnthropicClient builds an adapter from a provider entry. The API key is
// resolved from the configured environment variable.
func NewAnthropicClient(cfg *config.LLMProviderConfig) (*AnthropicClient, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, coacherr.New(coacherr.KindProviderAuth, anthropicComponent,
			fmt.Sprintf("environment variable %s is not set", cfg.APIKeyEnv))
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

// Provider returns the adapter name.
func (c *AnthropicClient) Provider() string { return "anthropic" }

// Model returns the configured model name.
func (c *AnthropicClient) Model() string { return c.cfg.Model }

// Complete sends one Messages API request. Throttling and overload answers
// are retried with exponential backoff.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(maxTokens),
		Messages:  []anthropic.MessageParam{buildAnthropicUserMessage(req)},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	} else if c.cfg.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*c.cfg.Temperature))
	}

	start := time.Now()
	resp, err := retry.DoWithData(
		func() (*anthropic.Message, error) {
			return c.client.Messages.New(ctx, params)
		},
		retry.Context(ctx),
		retry.Attempts(throttleRetries),
		retry.RetryIf(isRetryableAnthropicError),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying Anthropic request",
				"model", c.cfg.Model, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	return &Response{
		Text:         text.String(),
		Model:        string(resp.Model),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		CostUSD:      Cost(c.cfg.Model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)),
		Duration:     time.Since(start),
	}, nil
}

// buildAnthropicUserMessage assembles the user message with the prompt text
// and any image blocks.
func buildAnthropicUserMessage(req *Request) anthropic.MessageParam {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Images)+1)
	for _, img := range req.Images {
		blocks = append(blocks, anthropic.NewImageBlock(anthropic.Base64ImageSourceParam{
			Type:      "base64",
			MediaType: anthropicMediaType(img),
			Data:      base64.StdEncoding.EncodeToString(img.Data),
		}))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))
	return anthropic.NewUserMessage(blocks...)
}

func anthropicMediaType(img *imagefetch.Image) anthropic.Base64ImageSourceMediaType {
	switch img.MediaType {
	case "image/png":
		return anthropic.Base64ImageSourceMediaTypeImagePNG
	case "image/gif":
		return anthropic.Base64ImageSourceMediaTypeImageGIF
	case "image/webp":
		return anthropic.Base64ImageSourceMediaTypeImageWebP
	default:
		return anthropic.Base64ImageSourceMediaTypeImageJPEG
	}
}

func isRetryableAnthropicError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return coacherr.Wrap(coacherr.KindProviderAuth, anthropicComponent,
				"provider rejected credentials", err)
		case apiErr.StatusCode == 429:
			return coacherr.Wrap(coacherr.KindProviderThrottled, anthropicComponent,
				"provider throttled request", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return coacherr.Wrap(coacherr.KindTimeout, anthropicComponent,
			"provider request timed out", err)
	}
	return coacherr.Wrap(coacherr.KindInternal, anthropicComponent,
		"provider request failed", err)
}
