package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/meetai/pkg/core"
	"github.com/vango-go/meetai/pkg/gateway/config"
	"github.com/vango-go/meetai/pkg/gateway/mw"
	"github.com/vango-go/meetai/pkg/webhook"
)

type EventDispatcher interface {
	Dispatch(ctx context.Context, p webhook.Payload) error
}

type WebhookRecorder interface {
	RecordWebhook(event string, status int, duration time.Duration)
}

// WebhookHandler authenticates a provider callback against the raw body and
// hands the decoded event to the dispatcher.
type WebhookHandler struct {
	Config     config.Config
	Verifier   webhook.Verifier
	Dispatcher EventDispatcher
	Metrics    WebhookRecorder
	Logger     *slog.Logger
}

func (h WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID, _ := mw.RequestIDFrom(r.Context())
	kind := webhook.KindUnknown
	status := http.StatusOK
	defer func() {
		if h.Metrics != nil {
			h.Metrics.RecordWebhook(string(kind), status, time.Since(start))
		}
	}()

	fail := func(err error) {
		coreErr, st := coreErrorFrom(err, reqID)
		status = st
		writeCoreErrorJSON(w, reqID, coreErr, st)
	}

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		writeMethodNotAllowed(w, reqID, http.MethodPost)
		return
	}

	signature := strings.TrimSpace(r.Header.Get("x-signature"))
	apiKey := strings.TrimSpace(r.Header.Get("x-api-key"))
	if signature == "" || apiKey == "" {
		fail(core.NewInvalidRequestError("Missing signature or API key"))
		return
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(h.Config.StreamAPIKey)) != 1 {
		fail(core.NewAuthenticationError("Invalid API key"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes))
	if err != nil {
		fail(err)
		return
	}
	if h.Verifier == nil {
		fail(core.NewAPIError("webhook verifier not configured"))
		return
	}
	if !h.Verifier.VerifyWebhook(body, []byte(signature)) {
		fail(core.NewAuthenticationError("Invalid signature"))
		return
	}

	var payload webhook.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		fail(core.NewInvalidRequestError("Invalid JSON"))
		return
	}
	kind = payload.Kind()

	if err := h.Dispatcher.Dispatch(r.Context(), payload); err != nil {
		if h.Logger != nil && !isClientError(err) {
			h.Logger.Error("webhook dispatch failed", "request_id", reqID, "kind", string(kind), "error", err)
		}
		fail(err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func isClientError(err error) bool {
	var ce *core.Error
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Type {
	case core.ErrInvalidRequest, core.ErrNotFound, core.ErrAuthentication:
		return true
	default:
		return false
	}
}
