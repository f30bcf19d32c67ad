package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type LLMProvider string

const (
	LLMProviderAzure  LLMProvider = "azure"
	LLMProviderOpenAI LLMProvider = "openai"
	LLMProviderGemini LLMProvider = "gemini"
)

type Config struct {
	Addr string

	MaxBodyBytes int64

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration
	UpstreamTimeout     time.Duration

	// Video/chat provider credentials. The API key is echoed by the provider in
	// x-api-key and the secret signs every webhook body.
	StreamAPIKey       string
	StreamAPISecret    string
	StreamBaseURL      string
	StreamVideoBaseURL string
	CallType           string
	ChannelType        string

	// Storage and background processing. Empty values select in-memory backends.
	DatabaseURL string
	RedisURL    string
	JobQueueKey string

	// LLM
	LLMProvider           LLMProvider
	AzureOpenAIEndpoint   string
	AzureOpenAIKey        string
	AzureOpenAIDeployment string
	AzureOpenAIAPIVersion string
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIModel           string
	GeminiAPIKey          string
	GeminiModel           string
	ChatMaxTokens         int
	ChatTemperature       float64

	// Realtime model attached to live calls. It authenticates with
	// OpenAIAPIKey whatever LLMProvider is.
	RealtimeModel string

	// Bearer tokens accepted by /api/voice-agent. Empty => open.
	VoiceAgentAPIKeys       map[string]struct{}
	// Per-caller limits on /api/voice-agent. Zero disables each one.
	VoiceAgentRPS           float64
	VoiceAgentBurst         int
	VoiceAgentMaxConcurrent int

	// Browser origins allowed to call the API. Empty => no CORS headers.
	CORSAllowedOrigins map[string]struct{}
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                  envOr("MEETAI_ADDR", ":8080"),
		MaxBodyBytes:          envInt64Or("MEETAI_MAX_BODY_BYTES", 1<<20), // 1 MiB
		ReadHeaderTimeout:     envDurationOr("MEETAI_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:           envDurationOr("MEETAI_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:        envDurationOr("MEETAI_TOTAL_REQUEST_TIMEOUT", 60*time.Second),
		ShutdownGracePeriod:   envDurationOr("MEETAI_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		UpstreamTimeout:       envDurationOr("MEETAI_UPSTREAM_TIMEOUT", 30*time.Second),
		StreamAPIKey:          envOr("STREAM_API_KEY", ""),
		StreamAPISecret:       envOr("STREAM_API_SECRET", ""),
		StreamBaseURL:         envOr("STREAM_BASE_URL", "https://chat.stream-io-api.com"),
		StreamVideoBaseURL:    envOr("STREAM_VIDEO_BASE_URL", "https://video.stream-io-api.com"),
		CallType:              envOr("MEETAI_CALL_TYPE", "default"),
		ChannelType:           envOr("MEETAI_CHANNEL_TYPE", "messaging"),
		DatabaseURL:           envOr("DATABASE_URL", ""),
		RedisURL:              envOr("REDIS_URL", ""),
		JobQueueKey:           envOr("MEETAI_JOB_QUEUE_KEY", "meetai:jobs"),
		LLMProvider:           LLMProvider(strings.ToLower(envOr("LLM_PROVIDER", string(LLMProviderAzure)))),
		AzureOpenAIEndpoint:   envOr("AZURE_OPENAI_ENDPOINT", ""),
		AzureOpenAIKey:        envOr("AZURE_OPENAI_API_KEY", ""),
		AzureOpenAIDeployment: envOr("AZURE_OPENAI_DEPLOYMENT", ""),
		AzureOpenAIAPIVersion: envOr("AZURE_OPENAI_API_VERSION", "2024-10-21"),
		OpenAIAPIKey:          envOr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         envOr("OPENAI_BASE_URL", ""),
		OpenAIModel:           envOr("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:          envOr("GEMINI_API_KEY", ""),
		GeminiModel:           envOr("GEMINI_MODEL", "gemini-2.5-flash"),
		ChatMaxTokens:         envIntOr("MEETAI_CHAT_MAX_TOKENS", 1024),
		ChatTemperature:       envFloat64Or("MEETAI_CHAT_TEMPERATURE", 0.7),
		RealtimeModel:         envOr("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview"),
		VoiceAgentAPIKeys:     make(map[string]struct{}),
		VoiceAgentRPS:         envFloat64Or("MEETAI_VOICE_AGENT_RPS", 2),
		VoiceAgentBurst:       envIntOr("MEETAI_VOICE_AGENT_BURST", 10),
		CORSAllowedOrigins:    make(map[string]struct{}),
	}
	cfg.VoiceAgentMaxConcurrent = envIntOr("MEETAI_VOICE_AGENT_MAX_CONCURRENT", 4)

	for _, key := range splitCSV(os.Getenv("MEETAI_VOICE_AGENT_API_KEYS")) {
		cfg.VoiceAgentAPIKeys[key] = struct{}{}
	}
	for _, origin := range splitCSV(os.Getenv("MEETAI_CORS_ALLOWED_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("MEETAI_MAX_BODY_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("MEETAI_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("MEETAI_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("MEETAI_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("MEETAI_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamTimeout <= 0 {
		return Config{}, fmt.Errorf("MEETAI_UPSTREAM_TIMEOUT must be > 0")
	}
	if cfg.StreamAPIKey == "" || cfg.StreamAPISecret == "" {
		return Config{}, fmt.Errorf("STREAM_API_KEY and STREAM_API_SECRET must be set")
	}
	if cfg.ChatMaxTokens <= 0 {
		return Config{}, fmt.Errorf("MEETAI_CHAT_MAX_TOKENS must be > 0")
	}
	if cfg.ChatTemperature < 0 || cfg.ChatTemperature > 2 {
		return Config{}, fmt.Errorf("MEETAI_CHAT_TEMPERATURE must be within [0, 2]")
	}
	if cfg.VoiceAgentRPS < 0 || cfg.VoiceAgentBurst < 0 || cfg.VoiceAgentMaxConcurrent < 0 {
		return Config{}, fmt.Errorf("MEETAI_VOICE_AGENT_RPS, MEETAI_VOICE_AGENT_BURST and MEETAI_VOICE_AGENT_MAX_CONCURRENT must be >= 0")
	}

	switch cfg.LLMProvider {
	case LLMProviderAzure:
		if cfg.AzureOpenAIEndpoint == "" || cfg.AzureOpenAIKey == "" || cfg.AzureOpenAIDeployment == "" {
			return Config{}, fmt.Errorf("AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_KEY and AZURE_OPENAI_DEPLOYMENT must be set when LLM_PROVIDER=azure")
		}
	case LLMProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return Config{}, fmt.Errorf("OPENAI_API_KEY must be set when LLM_PROVIDER=openai")
		}
	case LLMProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return Config{}, fmt.Errorf("GEMINI_API_KEY must be set when LLM_PROVIDER=gemini")
		}
	default:
		return Config{}, fmt.Errorf("LLM_PROVIDER must be one of azure|openai|gemini")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
