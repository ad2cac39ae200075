// Package ai adapts OpenAI-compatible endpoints to the pipeline's Classifier
// and Generator collaborators. Two providers are supported: the OpenAI API
// (moderation endpoint + chat completions) and Ollama's OpenAI-compatible
// /v1 surface (chat completions for both moderation and generation).
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Options configures a Client.
type Options struct {
	Provider        string
	APIKey          string
	BaseURL         string
	OllamaHost      string
	GenerationModel string
	ModerationModel string
	// Timeout bounds each collaborator call; zero means no extra bound.
	Timeout time.Duration
	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
}

// Client implements pipeline.Classifier and pipeline.Generator.
type Client struct {
	api             *openai.Client
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	provider        string
	generationModel string
	moderationModel string
	timeout         time.Duration
}

// New builds a client for opts.Provider.
func New(opts Options) (*Client, error) {
	provider := strings.ToLower(opts.Provider)
	if provider == "" {
		provider = ProviderOpenAI
	}
	var cfg openai.ClientConfig
	switch provider {
	case ProviderOpenAI:
		if opts.APIKey == "" {
			return nil, errors.New("openai provider requires an API key")
		}
		cfg = openai.DefaultConfig(opts.APIKey)
		if opts.BaseURL != "" {
			cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
		}
	case ProviderOllama:
		host := strings.TrimRight(opts.OllamaHost, "/")
		if host == "" {
			return nil, errors.New("ollama provider requires a host")
		}
		// Ollama ignores the bearer token but the client always sends one.
		cfg = openai.DefaultConfig("ollama")
		cfg.BaseURL = host + "/v1"
	default:
		return nil, fmt.Errorf("unknown ai provider %q", opts.Provider)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	cfg.HTTPClient = hc

	moderationModel := opts.ModerationModel
	if moderationModel == "" {
		moderationModel = openai.ModerationOmniLatest
	}
	return &Client{
		api:             openai.NewClientWithConfig(cfg),
		httpClient:      hc,
		baseURL:         cfg.BaseURL,
		apiKey:          opts.APIKey,
		provider:        provider,
		generationModel: opts.GenerationModel,
		moderationModel: moderationModel,
		timeout:         opts.Timeout,
	}, nil
}

// Provider returns the configured provider name.
func (c *Client) Provider() string { return c.provider }

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
