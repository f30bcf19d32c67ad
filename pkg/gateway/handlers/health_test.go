package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vango-go/meetai/pkg/gateway/config"
)

func readyConfig() config.Config {
	return config.Config{
		MaxBodyBytes:      1,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Second,
		HandlerTimeout:    time.Second,
		UpstreamTimeout:   time.Second,
		StreamAPIKey:      "k",
		StreamAPISecret:   "s",
		LLMProvider:       config.LLMProviderAzure,
		OpenAIAPIKey:      "sk-test",
	}
}

func TestReadyHandler_Ready(t *testing.T) {
	cfg := readyConfig()
	cfg.RedisURL = "redis://localhost:6379/0"
	h := ReadyHandler{Config: cfg}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["storage"] != "memory" || resp["queue"] != "redis" {
		t.Fatalf("resp=%v", resp)
	}
}

func TestReadyHandler_MissingStreamCredentials_NotReady(t *testing.T) {
	cfg := readyConfig()
	cfg.StreamAPISecret = ""
	h := ReadyHandler{Config: cfg}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ok, _ := resp["ok"].(bool); ok {
		t.Fatalf("expected ok=false, got ok=true")
	}
}

func TestReadyHandler_Draining(t *testing.T) {
	h := ReadyHandler{Config: readyConfig(), Draining: func() bool { return true }}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}
