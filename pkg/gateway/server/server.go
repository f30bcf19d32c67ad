package server

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/vango-go/meetai/pkg/gateway/config"
	"github.com/vango-go/meetai/pkg/gateway/handlers"
	"github.com/vango-go/meetai/pkg/gateway/mw"
	"github.com/vango-go/meetai/pkg/gateway/ratelimit"
	"github.com/vango-go/meetai/pkg/llm"
	"github.com/vango-go/meetai/pkg/metrics"
	"github.com/vango-go/meetai/pkg/webhook"
)

// Deps are the collaborators the routes are served by. Metrics may be nil.
type Deps struct {
	Dispatcher handlers.EventDispatcher
	Verifier   webhook.Verifier
	LLM        llm.Client
	Metrics    *metrics.Metrics
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Deps

	draining atomic.Bool
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/", handlers.NotFoundHandler{})
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Draining: s.draining.Load})
	if s.deps.Metrics != nil {
		s.mux.Handle("/metrics", s.deps.Metrics.Handler())
	}

	s.mux.Handle("/api/webhook", handlers.WebhookHandler{
		Config:     s.cfg,
		Verifier:   s.deps.Verifier,
		Dispatcher: s.deps.Dispatcher,
		Metrics:    s.deps.Metrics,
		Logger:     s.logger,
	})

	var limiter *ratelimit.Limiter
	limits := ratelimit.Config{
		RPS:           s.cfg.VoiceAgentRPS,
		Burst:         s.cfg.VoiceAgentBurst,
		MaxConcurrent: s.cfg.VoiceAgentMaxConcurrent,
	}
	if limits.Enabled() {
		limiter = ratelimit.New(limits)
	}
	var voiceAgent http.Handler = handlers.VoiceAgentHandler{
		Config: s.cfg,
		LLM:    s.deps.LLM,
		Logger: s.logger,
	}
	voiceAgent = mw.RateLimit(limiter, voiceAgent)
	voiceAgent = mw.BearerAuth(s.cfg.VoiceAgentAPIKeys, voiceAgent)
	s.mux.Handle("/api/voice-agent", voiceAgent)
}

// SetDraining flips /readyz to 503 so load balancers stop routing new
// traffic before shutdown.
func (s *Server) SetDraining(v bool) { s.draining.Store(v) }

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg.CORSAllowedOrigins, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
