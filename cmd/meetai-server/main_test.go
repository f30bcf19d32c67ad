package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vango-go/meetai/internal/app"
	"github.com/vango-go/meetai/pkg/gateway/config"
	gatewayserver "github.com/vango-go/meetai/pkg/gateway/server"
	"github.com/vango-go/meetai/pkg/llm"
)

type stubLLM struct{}

func (stubLLM) Complete(context.Context, llm.Request) (string, error) { return "hi", nil }

func testConfig() config.Config {
	return config.Config{
		Addr:                "127.0.0.1:0",
		MaxBodyBytes:        1 << 20,
		ReadHeaderTimeout:   time.Second,
		ReadTimeout:         time.Second,
		ShutdownGracePeriod: time.Second,
		UpstreamTimeout:     time.Second,
		StreamAPIKey:        "stream_key",
		StreamAPISecret:     "stream_secret",
		CallType:            "default",
		ChannelType:         "messaging",
		LLMProvider:         config.LLMProviderOpenAI,
		OpenAIAPIKey:        "sk-test",
		ChatMaxTokens:       256,
		StreamVideoBaseURL:  "https://video.example.test",
		RealtimeModel:       "gpt-4o-realtime-preview",
		VoiceAgentAPIKeys:   map[string]struct{}{},
	}
}

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, serverDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		openApp: func(context.Context, config.Config, *slog.Logger) (*app.App, error) {
			t.Fatalf("openApp should not be called when config load fails")
			return nil, nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if got := stderr.String(); got == "" {
		t.Fatalf("expected stderr output for startup error")
	}
}

func TestRunServer_BackendFailureIsReported(t *testing.T) {
	t.Parallel()

	err := runServer(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), serverDeps{
		loadConfig: func() (config.Config, error) { return testConfig(), nil },
		openApp: func(context.Context, config.Config, *slog.Logger) (*app.App, error) {
			return nil, errors.New("postgres down")
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})
	if err == nil || err.Error() != "open backends: postgres down" {
		t.Fatalf("err=%v", err)
	}
}

func TestRunServer_StopsOnSignal(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notified := make(chan chan<- os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- runServer(context.Background(), logger, serverDeps{
			loadConfig: func() (config.Config, error) { return testConfig(), nil },
			openApp: func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error) {
				return app.Open(ctx, cfg, logger, app.Options{LLM: stubLLM{}})
			},
			signalNotify: func(c chan<- os.Signal, sig ...os.Signal) { notified <- c },
			signalStop:   func(c chan<- os.Signal) {},
		})
	}()

	var sigCh chan<- os.Signal
	select {
	case sigCh = <-notified:
	case <-time.After(5 * time.Second):
		t.Fatalf("server never registered for signals")
	}
	sigCh <- os.Interrupt

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServer: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("runServer did not return after signal")
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Addr:              "127.0.0.1:9999",
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       3 * time.Second,
	}

	srv := buildHTTPServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout=%v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
	if srv.ReadTimeout != cfg.ReadTimeout {
		t.Fatalf("ReadTimeout=%v, want %v", srv.ReadTimeout, cfg.ReadTimeout)
	}
}

func TestLoadDotenv_MissingFileIsIgnored(t *testing.T) {
	if err := loadDotenv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("loadDotenv: %v", err)
	}
}

func TestLoadDotenv_DoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("MEETAI_DOTENV_TEST=from_file\nMEETAI_DOTENV_FRESH=fresh\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MEETAI_DOTENV_TEST", "from_env")
	t.Setenv("MEETAI_DOTENV_FRESH", "")
	os.Unsetenv("MEETAI_DOTENV_FRESH")

	if err := loadDotenv(path); err != nil {
		t.Fatalf("loadDotenv: %v", err)
	}
	if got := os.Getenv("MEETAI_DOTENV_TEST"); got != "from_env" {
		t.Fatalf("MEETAI_DOTENV_TEST=%q", got)
	}
	if got := os.Getenv("MEETAI_DOTENV_FRESH"); got != "fresh" {
		t.Fatalf("MEETAI_DOTENV_FRESH=%q", got)
	}
}

func TestGatewayHandlerStack_Smoke(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.Open(context.Background(), testConfig(), logger, app.Options{LLM: stubLLM{}})
	if err != nil {
		t.Fatalf("app.Open: %v", err)
	}
	defer a.Close()

	gw := gatewayserver.New(testConfig(), logger, gatewayserver.Deps{
		Dispatcher: a.Dispatcher,
		Verifier:   a.Verifier,
		LLM:        a.LLM,
		Metrics:    a.Metrics,
	})
	ts := httptest.NewServer(gw.Handler())
	defer ts.Close()

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status=%d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}
