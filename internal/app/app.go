// Package app assembles the backends the server and the worker share.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vango-go/meetai/pkg/call"
	"github.com/vango-go/meetai/pkg/chat"
	"github.com/vango-go/meetai/pkg/gateway/config"
	"github.com/vango-go/meetai/pkg/jobs"
	"github.com/vango-go/meetai/pkg/llm"
	"github.com/vango-go/meetai/pkg/metrics"
	"github.com/vango-go/meetai/pkg/store"
	"github.com/vango-go/meetai/pkg/webhook"
)

const memoryQueueSize = 256

type App struct {
	Config     config.Config
	Store      store.Store
	Queue      jobs.Queue
	LLM        llm.Client
	Metrics    *metrics.Metrics
	Dispatcher *webhook.Dispatcher
	// Verifier checks webhook signatures with the chat API secret.
	Verifier webhook.Verifier

	// LocalQueue is true when Queue only lives in this process, so this
	// process must also run the worker.
	LocalQueue bool

	closers []func()
}

// Options replace individual backends. Nil fields are built from Config.
type Options struct {
	Store      store.Store
	Queue      jobs.Queue
	LLM        llm.Client
	Calls      call.Service
	Chat       chat.Client
	Verifier   webhook.Verifier
	Metrics    *metrics.Metrics
	HTTPClient *http.Client
	// Migrate applies pending migrations when a Postgres store is opened.
	Migrate    bool
}

// Open connects every backend cfg selects. Close releases them.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Metrics: opts.Metrics}
	if a.Metrics == nil {
		a.Metrics = metrics.New("meetai")
	}

	var err error
	if a.Store, err = a.openStore(ctx, logger, opts); err != nil {
		a.Close()
		return nil, err
	}
	if a.Queue, err = a.openQueue(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}

	a.LLM = opts.LLM
	if a.LLM == nil {
		client, err := llm.FromConfig(ctx, cfg, opts.HTTPClient)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("llm: %w", err)
		}
		a.LLM = llm.Observe(client, string(cfg.LLMProvider), a.Metrics)
	}

	calls := opts.Calls
	if calls == nil {
		video, err := call.NewStreamVideo(cfg.StreamAPIKey, cfg.StreamAPISecret)
		if err != nil {
			a.Close()
			return nil, err
		}
		c := call.New(video, &call.RealtimeBridge{
			BaseURL:   cfg.StreamVideoBaseURL,
			APIKey:    cfg.StreamAPIKey,
			APISecret: cfg.StreamAPISecret,
			ModelKey:  cfg.OpenAIAPIKey,
			Model:     cfg.RealtimeModel,
			Logger:    logger,
		}, logger)
		a.closers = append(a.closers, func() { _ = c.Close() })
		calls = c
	}

	var sc *chat.StreamClient
	if opts.Chat == nil || opts.Verifier == nil {
		if sc, err = chat.NewStreamClient(cfg.StreamAPIKey, cfg.StreamAPISecret, cfg.StreamBaseURL, opts.HTTPClient); err != nil {
			a.Close()
			return nil, err
		}
	}
	chatClient := opts.Chat
	if chatClient == nil {
		chatClient = sc
	}
	a.Verifier = opts.Verifier
	if a.Verifier == nil {
		a.Verifier = sc
	}

	a.Dispatcher = &webhook.Dispatcher{
		Store:        a.Store,
		Calls:        calls,
		Chat:         chatClient,
		LLM:          a.LLM,
		Jobs:         a.Queue,
		Logger:       logger,
		CallType:     cfg.CallType,
		ChannelType:  cfg.ChannelType,
		HistoryLimit: webhook.DefaultHistoryLimit,
		MaxTokens:    cfg.ChatMaxTokens,
		Temperature:  cfg.ChatTemperature,
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, logger *slog.Logger, opts Options) (store.Store, error) {
	if opts.Store != nil {
		return opts.Store, nil
	}
	if a.Config.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		return store.NewMemory(), nil
	}
	pg, err := store.OpenPostgres(ctx, a.Config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pg.Close)
	if opts.Migrate {
		applied, err := store.Migrate(ctx, pg.Pool())
		if err != nil {
			return nil, err
		}
		if len(applied) > 0 {
			logger.Info("applied migrations", "versions", applied)
		}
	}
	return pg, nil
}

func (a *App) openQueue(ctx context.Context, opts Options) (jobs.Queue, error) {
	if opts.Queue != nil {
		return opts.Queue, nil
	}
	if a.Config.RedisURL == "" {
		q := jobs.NewMemoryQueue(memoryQueueSize)
		a.LocalQueue = true
		a.closers = append(a.closers, func() { _ = q.Close() })
		return q, nil
	}
	q, err := jobs.NewRedisQueue(a.Config.RedisURL, a.Config.JobQueueKey)
	if err != nil {
		return nil, fmt.Errorf("redis queue: %w", err)
	}
	a.closers = append(a.closers, func() { _ = q.Close() })
	if err := q.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return q, nil
}

// Worker returns a worker draining a.Queue into the summary processor.
func (a *App) Worker(logger *slog.Logger) *jobs.Worker {
	return &jobs.Worker{
		Queue: a.Queue,
		Processor: &jobs.Processor{
			Store:     a.Store,
			LLM:       a.LLM,
			Logger:    logger,
			MaxTokens: a.Config.ChatMaxTokens,
		},
		Logger:  logger,
		Metrics: a.Metrics,
	}
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
