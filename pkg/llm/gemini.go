package llm

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/genai"
)

// Gemini calls generateContent on the Gemini Developer API.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string, httpClient *http.Client) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	system, contents := toGeminiContents(req.Messages)

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature >= 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", classify("gemini", apiErr.Code, apiErr.Status, apiErr.Message, err)
		}
		var apiErrPtr *genai.APIError
		if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
			return "", classify("gemini", apiErrPtr.Code, apiErrPtr.Status, apiErrPtr.Message, err)
		}
		return "", classify("gemini", 0, "", err.Error(), err)
	}
	return resp.Text(), nil
}

func toGeminiContents(msgs []Message) (string, []*genai.Content) {
	system, rest := splitSystem(msgs)
	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return system, contents
}
