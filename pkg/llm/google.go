package llm

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

const defaultGoogleModel = "gemini-2.5-pro"

// GoogleProvider drafts sections with Gemini through the Gemini API or
// Vertex AI.
type GoogleProvider struct {
	client    *genai.Client
	backend   string
	model     string
	maxTokens int
}

// NewGoogleProvider creates a new Google GenAI provider
func NewGoogleProvider(ctx context.Context, config Config) (*GoogleProvider, error) {
	backend := detectBackend(config.Google)

	clientConfig := &genai.ClientConfig{}
	switch backend {
	case "vertexai":
		clientConfig.Backend = genai.BackendVertexAI
		clientConfig.Project = config.Google.Project
		clientConfig.Location = config.Google.Location
	default:
		clientConfig.Backend = genai.BackendGeminiAPI
		clientConfig.APIKey = config.Google.APIKey
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Google GenAI client")
	}

	model := config.Model
	if model == "" {
		model = defaultGoogleModel
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &GoogleProvider{
		client:    client,
		backend:   backend,
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Name returns "google"
func (p *GoogleProvider) Name() string { return ProviderGoogle }

// Model returns the configured model
func (p *GoogleProvider) Model() string { return p.model }

// Complete generates content for a single user turn
func (p *GoogleProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens:   int32(p.maxTokens),
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), config)
	if err != nil {
		return "", errors.Wrapf(err, "error generating content with %s", p.backend)
	}
	return resp.Text(), nil
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"service unavailable",
	"internal error",
	"quota exceeded",
	"rate limit",
	"too many requests",
}

// Retryable matches the transient failure messages of the GenAI backends
func (p *GoogleProvider) Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// detectBackend picks Vertex AI or the Gemini API. An explicit backend
// wins, then GOOGLE_GENAI_USE_VERTEXAI, then whichever credentials exist.
func detectBackend(config GoogleConfig) string {
	if config.Backend != "" {
		return strings.ToLower(config.Backend)
	}

	if env := os.Getenv("GOOGLE_GENAI_USE_VERTEXAI"); env != "" {
		if strings.EqualFold(env, "true") || env == "1" {
			return "vertexai"
		}
		return "gemini"
	}

	if config.APIKey != "" {
		return "gemini"
	}
	if config.Project != "" || config.Location != "" {
		return "vertexai"
	}
	if os.Getenv("GOOGLE_CLOUD_PROJECT") != "" || os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		return "vertexai"
	}
	return "gemini"
}
