package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"github.com/jingkaihe/docgate/pkg/version"
)

const defaultAnthropicModel = anthropic.Model("claude-sonnet-4-5-20250929")

// AnthropicProvider drafts sections with Anthropic Claude
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicProvider creates a new Anthropic provider. Without an
// explicit key the SDK reads ANTHROPIC_API_KEY.
func NewAnthropicProvider(config Config) (*AnthropicProvider, error) {
	opts := []option.RequestOption{
		option.WithHeader("User-Agent", version.Get().UserAgent()),
	}
	if config.Anthropic.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.Anthropic.APIKey))
	}

	model := config.Model
	if model == "" {
		model = string(defaultAnthropicModel)
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &AnthropicProvider{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Name returns "anthropic"
func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

// Model returns the configured model
func (p *AnthropicProvider) Model() string { return p.model }

// Complete sends one message and concatenates the text blocks of the reply
func (p *AnthropicProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "error sending message to Anthropic")
	}

	var out strings.Builder
	for _, block := range message.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(variant.Text)
		}
	}
	return out.String(), nil
}

// Retryable reports rate limits, overloads and server errors
func (p *AnthropicProvider) Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 408 || apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
