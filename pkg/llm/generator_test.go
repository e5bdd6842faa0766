package llm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/docgate/pkg/review"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

var errTransient = errors.New("503 service unavailable")

type fakeProvider struct {
	replies []string
	errs    []error
	calls   int
	system  string
	prompt  string
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-1" }

func (p *fakeProvider) Complete(_ context.Context, system, prompt string) (string, error) {
	i := p.calls
	p.calls++
	p.system, p.prompt = system, prompt
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.replies) {
		return p.replies[i], nil
	}
	return "", nil
}

func (p *fakeProvider) Retryable(err error) bool {
	return errors.Is(err, errTransient)
}

func scopeRequest() review.GenerateRequest {
	return review.GenerateRequest{
		Skill:      "scope-document",
		Language:   "de",
		StyleGuide: "Use short paragraphs.",
		Template: reviewtypes.SectionTemplate{
			ID:             "budget",
			Name:           "Budget",
			RequiredFields: []string{"budget", "payment_terms"},
			WordBudget:     reviewtypes.WordBudget{Min: 30, Max: 80},
			Threshold:      90,
			Guidance:       "Break the budget down per phase.",
		},
		Facts: reviewtypes.NewFactSet(
			reviewtypes.Fact{Key: "budget", Value: "50,000 EUR", Source: reviewtypes.SourceRef{Document: "crm.json", Page: "2"}},
		),
		Clarifications: []string{"Phase two is optional."},
		PreviousDraft:  "The budget is 50,000 EUR.",
		Attempt:        2,
	}
}

func fastRetry() RetryConfig {
	return RetryConfig{Attempts: 3, InitialDelay: 1, MaxDelay: 1, BackoffType: "fixed"}
}

func TestBuildPrompt(t *testing.T) {
	system, prompt, err := defaultRenderer.BuildPrompt(scopeRequest())
	require.NoError(t, err)

	assert.Contains(t, system, "scope-document")
	assert.Contains(t, system, "Write in German.")
	assert.Contains(t, system, "Never invent names, numbers")
	assert.Contains(t, system, "Use short paragraphs.")

	assert.Contains(t, prompt, "Section: Budget")
	assert.Contains(t, prompt, "Guidance: Break the budget down per phase.")
	assert.Contains(t, prompt, "Length: at least 30 words, at most 80 words")
	assert.Contains(t, prompt, "Must cover: budget, payment_terms")
	assert.Contains(t, prompt, "Not available, do not mention: payment_terms")
	assert.Contains(t, prompt, "- budget: 50,000 EUR (source: crm.json:2)")
	assert.Contains(t, prompt, "- Phase two is optional.")
	assert.Contains(t, prompt, "The budget is 50,000 EUR.")
}

func TestBuildPromptWithoutFacts(t *testing.T) {
	_, prompt, err := defaultRenderer.BuildPrompt(review.GenerateRequest{
		Template: reviewtypes.SectionTemplate{Name: "Summary"},
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Facts:\n- none")
	assert.NotContains(t, prompt, "Length:")
	assert.NotContains(t, prompt, "Previous draft")
}

func TestProviderGeneratorRetriesTransientErrors(t *testing.T) {
	provider := &fakeProvider{
		errs:    []error{errTransient, errTransient},
		replies: []string{"", "", "Budget: 50,000 EUR."},
	}
	gen := NewProviderGenerator(provider, fastRetry())

	text, err := gen.Generate(context.Background(), scopeRequest())
	require.NoError(t, err)
	assert.Equal(t, "Budget: 50,000 EUR.", text)
	assert.Equal(t, 3, provider.calls)
	assert.Contains(t, provider.prompt, "Section: Budget")
}

func TestProviderGeneratorStopsOnPermanentError(t *testing.T) {
	provider := &fakeProvider{errs: []error{errors.New("401 unauthorized")}}
	gen := NewProviderGenerator(provider, fastRetry())

	_, err := gen.Generate(context.Background(), scopeRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to draft section Budget")
	assert.Equal(t, 1, provider.calls)
}

func TestProviderGeneratorGivesUp(t *testing.T) {
	provider := &fakeProvider{errs: []error{errTransient, errTransient, errTransient}}
	gen := NewProviderGenerator(provider, fastRetry())

	_, err := gen.Generate(context.Background(), scopeRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, provider.calls)
}

func TestStaticGenerator(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "budget.md"), []byte("first draft"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "budget.3.md"), []byte("third draft"), 0o644))

	gen, err := NewGenerator(context.Background(), Config{Provider: ProviderStatic, Static: StaticConfig{Dir: dir}})
	require.NoError(t, err)

	req := scopeRequest()
	for attempt, want := range map[int]string{1: "first draft", 2: "first draft", 3: "third draft", 5: "third draft"} {
		req.Attempt = attempt
		text, err := gen.Generate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, want, text, "attempt %d", attempt)
	}

	req.Template = reviewtypes.SectionTemplate{ID: "risks", Name: "Risks"}
	text, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestStaticGeneratorRequiresDir(t *testing.T) {
	_, err := NewStaticGenerator("")
	assert.ErrorContains(t, err, "requires a drafts directory")

	_, err = NewStaticGenerator(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "failed to open drafts directory")
}

func TestNewProviderUnsupported(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Provider: "cohere"})
	assert.ErrorContains(t, err, "unsupported provider: cohere")
}

func TestOpenAIProviderRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAIProvider(Config{})
	assert.ErrorContains(t, err, "API key is required")

	p, err := NewOpenAIProvider(Config{OpenAI: OpenAIConfig{APIKey: "sk-test"}, Model: "gpt-4.1"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", p.Model())
	assert.Equal(t, ProviderOpenAI, p.Name())
}

func TestAnthropicProviderDefaults(t *testing.T) {
	p, err := NewAnthropicProvider(Config{Anthropic: AnthropicConfig{APIKey: "test"}})
	require.NoError(t, err)
	assert.Equal(t, string(defaultAnthropicModel), p.Model())
	assert.Equal(t, 4096, p.maxTokens)
	assert.False(t, p.Retryable(context.Canceled))
}

func TestGoogleRetryable(t *testing.T) {
	p := &GoogleProvider{}
	assert.True(t, p.Retryable(errors.New("Error 429: Too Many Requests")))
	assert.True(t, p.Retryable(errors.New("dial tcp: connection refused")))
	assert.False(t, p.Retryable(errors.New("invalid argument")))
	assert.False(t, p.Retryable(context.DeadlineExceeded))
}

func TestDetectBackend(t *testing.T) {
	for _, env := range []string{"GOOGLE_GENAI_USE_VERTEXAI", "GOOGLE_CLOUD_PROJECT", "GOOGLE_APPLICATION_CREDENTIALS"} {
		t.Setenv(env, "")
	}

	assert.Equal(t, "vertexai", detectBackend(GoogleConfig{Backend: "VertexAI"}))
	assert.Equal(t, "gemini", detectBackend(GoogleConfig{APIKey: "key", Project: "p"}))
	assert.Equal(t, "vertexai", detectBackend(GoogleConfig{Project: "p"}))
	assert.Equal(t, "gemini", detectBackend(GoogleConfig{}))

	t.Setenv("GOOGLE_GENAI_USE_VERTEXAI", "true")
	assert.Equal(t, "vertexai", detectBackend(GoogleConfig{APIKey: "key"}))
}
