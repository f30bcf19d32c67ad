package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vango-go/meetai/internal/app"
	"github.com/vango-go/meetai/pkg/gateway/config"
	gatewayserver "github.com/vango-go/meetai/pkg/gateway/server"
)

type serverDeps struct {
	loadConfig   func() (config.Config, error)
	openApp      func(context.Context, config.Config, *slog.Logger) (*app.App, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServerDeps() serverDeps {
	return serverDeps{
		loadConfig: config.LoadFromEnv,
		openApp: func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error) {
			return app.Open(ctx, cfg, logger, app.Options{Migrate: true})
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	if cfg.HandlerTimeout > 0 {
		handler = http.TimeoutHandler(handler, cfg.HandlerTimeout, "request timed out")
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runServer(ctx context.Context, logger *slog.Logger, deps serverDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.openApp == nil {
		return errors.New("missing openApp dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := deps.openApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open backends: %w", err)
	}
	defer a.Close()

	gw := gatewayserver.New(cfg, logger, gatewayserver.Deps{
		Dispatcher: a.Dispatcher,
		Verifier:   a.Verifier,
		LLM:        a.LLM,
		Metrics:    a.Metrics,
	})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	var workerWG sync.WaitGroup
	if a.LocalQueue {
		worker := a.Worker(logger.With("component", "worker"))
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			_ = worker.Run(workerCtx)
		}()
		logger.Info("running in-process worker", "reason", "REDIS_URL not set")
	}

	logger.Info("starting server", "addr", cfg.Addr, "llm_provider", cfg.LLMProvider)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context cancelled; shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining(true)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	stopWorker()
	workerWG.Wait()

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// loadDotenv reads .env without overriding variables already set. A missing
// file is not an error.
func loadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps serverDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := loadDotenv(".env"); err != nil {
		fmt.Fprintf(stderr, "meetai-server: %v\n", err)
		return 1
	}

	if err := runServer(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "meetai-server: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultServerDeps()))
}
