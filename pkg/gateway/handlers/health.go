package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/meetai/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether the process is configured to serve traffic.
// Draining, when set, flips readiness off during graceful shutdown.
type ReadyHandler struct {
	Config   config.Config
	Draining func() bool
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK             bool     `json:"ok"`
		LLMProvider    string   `json:"llm_provider"`
		Storage        string   `json:"storage"`
		Queue          string   `json:"queue"`
		VoiceAgentAuth bool     `json:"voice_agent_auth"`
		Draining       bool     `json:"draining,omitempty"`
		Issues         []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.LLMProvider {
	case config.LLMProviderAzure, config.LLMProviderOpenAI, config.LLMProviderGemini:
	default:
		issues = append(issues, "invalid llm_provider")
	}
	if h.Config.StreamAPIKey == "" || h.Config.StreamAPISecret == "" {
		issues = append(issues, "stream credentials not configured")
	}
	if h.Config.OpenAIAPIKey == "" {
		issues = append(issues, "realtime agent key not configured")
	}
	if h.Config.MaxBodyBytes <= 0 {
		issues = append(issues, "max_body_bytes must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 || h.Config.HandlerTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}
	if h.Config.UpstreamTimeout <= 0 {
		issues = append(issues, "upstream timeout must be > 0")
	}

	draining := h.Draining != nil && h.Draining()
	if draining {
		issues = append(issues, "draining")
	}

	storage := "memory"
	if h.Config.DatabaseURL != "" {
		storage = "postgres"
	}
	queue := "memory"
	if h.Config.RedisURL != "" {
		queue = "redis"
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if draining {
		status = http.StatusServiceUnavailable
	} else if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:             ok,
		LLMProvider:    string(h.Config.LLMProvider),
		Storage:        storage,
		Queue:          queue,
		VoiceAgentAuth: len(h.Config.VoiceAgentAPIKeys) > 0,
		Draining:       draining,
		Issues:         issues,
	})
}
