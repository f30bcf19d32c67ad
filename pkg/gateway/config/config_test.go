package config

import (
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"MEETAI_ADDR",
	"MEETAI_MAX_BODY_BYTES",
	"MEETAI_READ_HEADER_TIMEOUT",
	"MEETAI_READ_TIMEOUT",
	"MEETAI_TOTAL_REQUEST_TIMEOUT",
	"MEETAI_SHUTDOWN_GRACE_PERIOD",
	"MEETAI_UPSTREAM_TIMEOUT",
	"MEETAI_CALL_TYPE",
	"MEETAI_CHANNEL_TYPE",
	"MEETAI_JOB_QUEUE_KEY",
	"MEETAI_CHAT_MAX_TOKENS",
	"MEETAI_CHAT_TEMPERATURE",
	"MEETAI_VOICE_AGENT_API_KEYS",
	"MEETAI_VOICE_AGENT_RPS",
	"MEETAI_VOICE_AGENT_BURST",
	"MEETAI_VOICE_AGENT_MAX_CONCURRENT",
	"MEETAI_CORS_ALLOWED_ORIGINS",
	"STREAM_API_KEY",
	"STREAM_API_SECRET",
	"STREAM_BASE_URL",
	"STREAM_VIDEO_BASE_URL",
	"DATABASE_URL",
	"REDIS_URL",
	"LLM_PROVIDER",
	"AZURE_OPENAI_ENDPOINT",
	"AZURE_OPENAI_API_KEY",
	"AZURE_OPENAI_DEPLOYMENT",
	"AZURE_OPENAI_API_VERSION",
	"OPENAI_API_KEY",
	"OPENAI_BASE_URL",
	"OPENAI_MODEL",
	"GEMINI_API_KEY",
	"GEMINI_MODEL",
	"OPENAI_REALTIME_MODEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("STREAM_API_KEY", "stream_key")
	t.Setenv("STREAM_API_SECRET", "stream_secret")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("AZURE_OPENAI_API_KEY", "az_key")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT", "gpt-4o")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr=%q", cfg.Addr)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("MaxBodyBytes=%d", cfg.MaxBodyBytes)
	}
	if cfg.LLMProvider != LLMProviderAzure {
		t.Fatalf("LLMProvider=%q", cfg.LLMProvider)
	}
	if cfg.CallType != "default" || cfg.ChannelType != "messaging" {
		t.Fatalf("CallType=%q ChannelType=%q", cfg.CallType, cfg.ChannelType)
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Fatalf("ShutdownGracePeriod=%v", cfg.ShutdownGracePeriod)
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" {
		t.Fatalf("expected in-memory backends by default")
	}
	if len(cfg.VoiceAgentAPIKeys) != 0 {
		t.Fatalf("VoiceAgentAPIKeys=%v", cfg.VoiceAgentAPIKeys)
	}
	if cfg.VoiceAgentRPS != 2 || cfg.VoiceAgentBurst != 10 || cfg.VoiceAgentMaxConcurrent != 4 {
		t.Fatalf("voice agent limits=%v/%d/%d", cfg.VoiceAgentRPS, cfg.VoiceAgentBurst, cfg.VoiceAgentMaxConcurrent)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("CORSAllowedOrigins=%v", cfg.CORSAllowedOrigins)
	}
	if cfg.StreamVideoBaseURL != "https://video.stream-io-api.com" || cfg.RealtimeModel != "gpt-4o-realtime-preview" {
		t.Fatalf("StreamVideoBaseURL=%q RealtimeModel=%q", cfg.StreamVideoBaseURL, cfg.RealtimeModel)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("MEETAI_ADDR", ":9090")
	t.Setenv("MEETAI_UPSTREAM_TIMEOUT", "5s")
	t.Setenv("MEETAI_VOICE_AGENT_API_KEYS", "a, b,,")
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "g_key")
	t.Setenv("MEETAI_CORS_ALLOWED_ORIGINS", "https://app.example.com")
	t.Setenv("MEETAI_VOICE_AGENT_MAX_CONCURRENT", "0")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("Addr=%q", cfg.Addr)
	}
	if cfg.UpstreamTimeout != 5*time.Second {
		t.Fatalf("UpstreamTimeout=%v", cfg.UpstreamTimeout)
	}
	if cfg.LLMProvider != LLMProviderGemini {
		t.Fatalf("LLMProvider=%q", cfg.LLMProvider)
	}
	if _, ok := cfg.VoiceAgentAPIKeys["b"]; !ok || len(cfg.VoiceAgentAPIKeys) != 2 {
		t.Fatalf("VoiceAgentAPIKeys=%v", cfg.VoiceAgentAPIKeys)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://app.example.com"]; !ok {
		t.Fatalf("CORSAllowedOrigins=%v", cfg.CORSAllowedOrigins)
	}
	if cfg.VoiceAgentMaxConcurrent != 0 {
		t.Fatalf("VoiceAgentMaxConcurrent=%d", cfg.VoiceAgentMaxConcurrent)
	}
}

func TestLoadFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantSub string
	}{
		{
			name:    "missing stream secret",
			env:     map[string]string{"STREAM_API_SECRET": ""},
			wantSub: "STREAM_API_KEY and STREAM_API_SECRET",
		},
		{
			name:    "unknown llm provider",
			env:     map[string]string{"LLM_PROVIDER": "bedrock"},
			wantSub: "LLM_PROVIDER must be one of",
		},
		{
			name:    "openai without key",
			env:     map[string]string{"LLM_PROVIDER": "openai"},
			wantSub: "OPENAI_API_KEY",
		},
		{
			name:    "temperature out of range",
			env:     map[string]string{"MEETAI_CHAT_TEMPERATURE": "3"},
			wantSub: "MEETAI_CHAT_TEMPERATURE",
		},
		{
			name:    "non-positive body limit",
			env:     map[string]string{"MEETAI_MAX_BODY_BYTES": "0"},
			wantSub: "MEETAI_MAX_BODY_BYTES",
		},
		{
			name:    "negative voice agent burst",
			env:     map[string]string{"MEETAI_VOICE_AGENT_BURST": "-1"},
			wantSub: "MEETAI_VOICE_AGENT_BURST",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("err=%q, want substring %q", err.Error(), tt.wantSub)
			}
		})
	}
}
