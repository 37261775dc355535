package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/BillK181/wedding-website/pkg/domain"
)

// OpenAICompatGenerator calls an OpenAI-style /chat/completions endpoint.
// baseURL carries the version prefix, e.g. "https://api.openai.com/v1".
type OpenAICompatGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatGenerator accepts an empty apiKey for local servers without auth.
func NewOpenAICompatGenerator(baseURL, apiKey, model string) *OpenAICompatGenerator {
	return &OpenAICompatGenerator{
		baseURL:    trimBaseURL(baseURL, defaultOpenAIBaseURL),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		httpClient: newHTTPClient(),
	}
}

func (g *OpenAICompatGenerator) Generate(ctx context.Context, turns []domain.Turn) (string, error) {
	if g.model == "" {
		return "", errors.New("openai-compat generation model required")
	}
	req := oaiChatRequest{Model: g.model, Messages: make([]oaiMessage, 0, len(turns))}
	for _, turn := range turns {
		req.Messages = append(req.Messages, oaiMessage{Role: chatRole(turn.Role), Content: turn.Content})
	}
	header := http.Header{}
	if g.apiKey != "" {
		header.Set("Authorization", "Bearer "+g.apiKey)
	}

	var resp oaiChatResponse
	if err := postJSON(ctx, g.httpClient, "openai-compat", g.baseURL+"/chat/completions", header, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return replyText(resp.Choices[0].Message.Content)
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}
