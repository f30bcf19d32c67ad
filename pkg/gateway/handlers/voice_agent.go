package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vango-go/meetai/pkg/core"
	"github.com/vango-go/meetai/pkg/gateway/config"
	"github.com/vango-go/meetai/pkg/gateway/mw"
	"github.com/vango-go/meetai/pkg/llm"
)

const (
	defaultVoiceMaxTokens   = 150
	defaultVoiceTemperature = 0.7
)

type voiceAgentRequest struct {
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type voiceAgentChoice struct {
	Message llm.Message `json:"message"`
}

type voiceAgentResponse struct {
	Choices []voiceAgentChoice `json:"choices"`
}

// VoiceAgentHandler proxies chat completions for voice clients so the LLM
// credentials never leave the server.
type VoiceAgentHandler struct {
	Config config.Config
	LLM    llm.Client
	Logger *slog.Logger
}

func (h VoiceAgentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, reqID, http.MethodPost)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes))
	if err != nil {
		coreErr, status := coreErrorFrom(err, reqID)
		writeCoreErrorJSON(w, reqID, coreErr, status)
		return
	}

	req, err := decodeVoiceAgentRequest(body)
	if err != nil {
		coreErr, status := coreErrorFrom(err, reqID)
		writeCoreErrorJSON(w, reqID, coreErr, status)
		return
	}

	ctx := r.Context()
	if h.Config.UpstreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Config.UpstreamTimeout)
		defer cancel()
	}

	reply, err := h.LLM.Complete(ctx, req)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("voice agent completion failed", "request_id", reqID, "error", err)
		}
		coreErr, status := coreErrorFrom(err, reqID)
		writeCoreErrorJSON(w, reqID, coreErr, status)
		return
	}

	writeJSON(w, http.StatusOK, voiceAgentResponse{Choices: []voiceAgentChoice{{
		Message: llm.Message{Role: llm.RoleAssistant, Content: reply},
	}}})
}

func decodeVoiceAgentRequest(body []byte) (llm.Request, error) {
	var in voiceAgentRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return llm.Request{}, core.NewInvalidRequestError("Invalid JSON")
	}
	if len(in.Messages) == 0 {
		return llm.Request{}, core.NewInvalidRequestErrorWithParam("messages must not be empty", "messages")
	}
	for i, m := range in.Messages {
		if !m.Role.Valid() {
			return llm.Request{}, core.NewInvalidRequestErrorWithParam(
				fmt.Sprintf("messages[%d].role must be system, user or assistant", i),
				fmt.Sprintf("messages[%d].role", i),
			)
		}
		if strings.TrimSpace(m.Content) == "" {
			return llm.Request{}, core.NewInvalidRequestErrorWithParam(
				fmt.Sprintf("messages[%d].content must not be empty", i),
				fmt.Sprintf("messages[%d].content", i),
			)
		}
	}
	if in.MaxTokens < 0 {
		return llm.Request{}, core.NewInvalidRequestErrorWithParam("max_tokens must be > 0", "max_tokens")
	}

	req := llm.Request{
		Messages:    in.Messages,
		MaxTokens:   in.MaxTokens,
		Temperature: defaultVoiceTemperature,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = defaultVoiceMaxTokens
	}
	if in.Temperature != nil {
		if *in.Temperature < 0 || *in.Temperature > 2 {
			return llm.Request{}, core.NewInvalidRequestErrorWithParam("temperature must be within [0, 2]", "temperature")
		}
		req.Temperature = *in.Temperature
	}
	return req, nil
}
