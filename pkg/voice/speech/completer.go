package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vango-go/meetai/pkg/core"
	"github.com/vango-go/meetai/pkg/llm"
)

// HTTPCompleter sends turns to the server's /api/voice-agent proxy so LLM
// credentials stay server side. It satisfies llm.Client.
type HTTPCompleter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPCompleter(baseURL, apiKey string, httpClient *http.Client) *HTTPCompleter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPCompleter{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
}

type completionRequest struct {
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message llm.Message `json:"message"`
	} `json:"choices"`
}

func (c *HTTPCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	body, err := json.Marshal(completionRequest{
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/voice-agent", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("voice agent request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read voice agent response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var env struct {
			Error *core.Error `json:"error"`
		}
		if json.Unmarshal(raw, &env) == nil && env.Error != nil && env.Error.Type != "" {
			return "", env.Error
		}
		return "", fmt.Errorf("voice agent error: %d", resp.StatusCode)
	}

	var out completionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode voice agent response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}
