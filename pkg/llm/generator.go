// Package llm drafts document sections with a language model. Anthropic,
// OpenAI and Google GenAI are wrapped behind the Provider interface and
// exposed to the review loop as a review.Generator. The static provider
// reads drafts from disk and needs no network access.
package llm

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/docgate/pkg/logger"
	"github.com/jingkaihe/docgate/pkg/review"
	"github.com/jingkaihe/docgate/pkg/telemetry"
)

// Provider sends a single system and user prompt to a model and returns
// the text of the reply.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, system, prompt string) (string, error)
	// Retryable reports whether err is a transient provider error.
	Retryable(err error) bool
}

// NewProvider creates the provider named in the configuration
func NewProvider(ctx context.Context, config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case ProviderAnthropic, "":
		return NewAnthropicProvider(config)
	case ProviderOpenAI:
		return NewOpenAIProvider(config)
	case ProviderGoogle:
		return NewGoogleProvider(ctx, config)
	default:
		return nil, errors.Errorf("unsupported provider: %s", config.Provider)
	}
}

// NewGenerator creates the section generator for the configuration
func NewGenerator(ctx context.Context, config Config) (review.Generator, error) {
	if strings.ToLower(config.Provider) == ProviderStatic {
		return NewStaticGenerator(config.Static.Dir)
	}
	provider, err := NewProvider(ctx, config)
	if err != nil {
		return nil, err
	}
	return NewProviderGenerator(provider, config.Retry), nil
}

// ProviderGenerator renders the prompt for a section and asks a provider
// to draft it.
type ProviderGenerator struct {
	provider Provider
	renderer *Renderer
	retry    RetryConfig
}

// NewProviderGenerator wraps provider as a review.Generator
func NewProviderGenerator(provider Provider, retry RetryConfig) *ProviderGenerator {
	return &ProviderGenerator{
		provider: provider,
		renderer: defaultRenderer,
		retry:    retry,
	}
}

// Generate drafts the requested section
func (g *ProviderGenerator) Generate(ctx context.Context, req review.GenerateRequest) (string, error) {
	system, prompt, err := g.renderer.BuildPrompt(req)
	if err != nil {
		return "", err
	}

	var text string
	err = telemetry.WithSpan(ctx, "llm.complete", func(ctx context.Context) error {
		return executeWithRetry(ctx, g.retry, g.provider.Name(), g.provider.Retryable, func() error {
			var callErr error
			text, callErr = g.provider.Complete(ctx, system, prompt)
			return callErr
		})
	},
		attribute.String("llm.provider", g.provider.Name()),
		attribute.String("llm.model", g.provider.Model()),
		attribute.String("section.id", req.Template.Key()),
	)
	if err != nil {
		return "", errors.Wrapf(err, "failed to draft section %s", req.Template.Name)
	}

	logger.G(ctx).
		WithField("provider", g.provider.Name()).
		WithField("section", req.Template.Key()).
		WithField("chars", len(text)).
		Debug("section drafted")
	return text, nil
}
