// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials use ValidateStreamReady and ValidateAIReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Output modes for generated chat responses.
const (
	OutputClipboard = "clipboard"
	OutputChat      = "chat"
	OutputLog       = "log"
)

// Notification modes.
const (
	NotifyDesktop = "desktop"
	NotifyLog     = "log"
)

// AI providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type Config struct {
	// Twitch
	TwitchChannel     string
	TwitchBotUsername string
	TwitchOAuthToken  string

	// Addressing
	OwnerHandle    string
	OwnerIdentity  string
	AssistantToken string

	// Pipeline
	HistorySize       int
	MaxFragmentLength int
	SuffixBudget      int
	PacingInterval    time.Duration
	SkipFirstComment  bool
	QueueSize         int

	// AI collaborators
	AIProvider          string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	GenerationModel     string
	ModerationModel     string
	OllamaHost          string
	CollaboratorTimeout time.Duration
	CollaboratorRetries int

	// Output
	OutputMode string
	NotifyMode string

	// Database (optional journal)
	DBDsn string

	// HTTP
	HTTPAddr string

	// Tracing
	OTelEndpoint     string
	OTelServiceName  string
	TraceSampleRatio float64
}

// Load reads environment variables and applies defaults. Malformed numbers or
// durations are errors; missing credentials are not (see the Validate helpers).
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.TwitchChannel = strings.TrimLeft(strings.TrimSpace(os.Getenv("TWITCH_CHANNEL")), "#@")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")

	cfg.OwnerHandle = os.Getenv("OWNER_HANDLE")
	if cfg.OwnerHandle == "" && cfg.TwitchChannel != "" {
		cfg.OwnerHandle = "@" + cfg.TwitchChannel
	}
	cfg.OwnerIdentity = os.Getenv("OWNER_IDENTITY")
	if cfg.OwnerIdentity == "" {
		cfg.OwnerIdentity = cfg.TwitchChannel
	}
	cfg.AssistantToken = envOr("ASSISTANT_TOKEN", "Gentil Robot")

	if cfg.HistorySize, err = envInt("HISTORY_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.MaxFragmentLength, err = envInt("MAX_FRAGMENT_LENGTH", 100); err != nil {
		return nil, err
	}
	if cfg.SuffixBudget, err = envInt("SUFFIX_BUDGET", 6); err != nil {
		return nil, err
	}
	if cfg.PacingInterval, err = envDuration("PACING_INTERVAL", 1500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.SkipFirstComment, err = envBool("SKIP_FIRST_COMMENT", false); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = envInt("QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.HistorySize < 1 {
		return nil, fmt.Errorf("HISTORY_SIZE must be >= 1, got %d", cfg.HistorySize)
	}
	if cfg.SuffixBudget < 0 || cfg.MaxFragmentLength <= cfg.SuffixBudget {
		return nil, fmt.Errorf("MAX_FRAGMENT_LENGTH (%d) must exceed SUFFIX_BUDGET (%d)", cfg.MaxFragmentLength, cfg.SuffixBudget)
	}

	cfg.AIProvider = strings.ToLower(envOr("AI_PROVIDER", ProviderOpenAI))
	switch cfg.AIProvider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return nil, fmt.Errorf("invalid AI_PROVIDER %q (want openai or ollama)", cfg.AIProvider)
	}
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.OllamaHost = strings.TrimRight(envOr("OLLAMA_HOST", "http://localhost:11434"), "/")
	cfg.GenerationModel = os.Getenv("GENERATION_MODEL")
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = "gpt-4o-mini"
		if cfg.AIProvider == ProviderOllama {
			cfg.GenerationModel = "llama3"
		}
	}
	cfg.ModerationModel = envOr("MODERATION_MODEL", "omni-moderation-latest")
	if cfg.CollaboratorTimeout, err = envDuration("COLLABORATOR_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.CollaboratorRetries, err = envInt("COLLABORATOR_RETRIES", 0); err != nil {
		return nil, err
	}

	cfg.OutputMode = strings.ToLower(envOr("OUTPUT_MODE", OutputClipboard))
	switch cfg.OutputMode {
	case OutputClipboard, OutputChat, OutputLog:
	default:
		return nil, fmt.Errorf("invalid OUTPUT_MODE %q (want clipboard, chat or log)", cfg.OutputMode)
	}
	cfg.NotifyMode = strings.ToLower(envOr("NOTIFY_MODE", NotifyDesktop))
	switch cfg.NotifyMode {
	case NotifyDesktop, NotifyLog:
	default:
		return nil, fmt.Errorf("invalid NOTIFY_MODE %q (want desktop or log)", cfg.NotifyMode)
	}

	cfg.DBDsn = os.Getenv("DB_DSN")
	cfg.HTTPAddr = envOr("HTTP_ADDR", ":8080")

	cfg.OTelEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.OTelServiceName = envOr("OTEL_SERVICE_NAME", "chat-moderator")
	if cfg.TraceSampleRatio, err = envFloat("OTEL_TRACES_SAMPLER_ARG", 1); err != nil {
		return nil, err
	}
	if cfg.TraceSampleRatio < 0 || cfg.TraceSampleRatio > 1 {
		return nil, fmt.Errorf("OTEL_TRACES_SAMPLER_ARG must be within [0,1], got %v", cfg.TraceSampleRatio)
	}

	return cfg, nil
}

// ValidateStreamReady checks the fields needed to join the chat stream.
// Bot credentials are optional (anonymous read-only) unless OUTPUT_MODE=chat.
func (c *Config) ValidateStreamReady() error {
	if c.TwitchChannel == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL")
	}
	if (c.TwitchBotUsername == "") != (c.TwitchOAuthToken == "") {
		return fmt.Errorf("twitch env: TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN must be set together")
	}
	if c.OutputMode == OutputChat && c.TwitchOAuthToken == "" {
		return fmt.Errorf("OUTPUT_MODE=chat requires TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN")
	}
	return nil
}

// ValidateAIReady checks the provider credentials.
func (c *Config) ValidateAIReady() error {
	if c.AIProvider == ProviderOpenAI && c.OpenAIAPIKey == "" {
		return fmt.Errorf("missing ai env: AI_PROVIDER=openai requires OPENAI_API_KEY")
	}
	if c.AIProvider == ProviderOllama && c.OllamaHost == "" {
		return fmt.Errorf("missing ai env: AI_PROVIDER=ollama requires OLLAMA_HOST")
	}
	return nil
}

// Anonymous reports whether the stream is joined without bot credentials.
func (c *Config) Anonymous() bool { return c.TwitchOAuthToken == "" }

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// envDuration accepts Go durations ("1.5s") or plain seconds ("1.5").
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (duration like 1.5s): %w", key, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
