package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/BillK181/wedding-website/pkg/domain"
)

const defaultOllamaBaseURL = "http://127.0.0.1:11434"

// OllamaGenerator talks to a local Ollama daemon through /api/chat with streaming off.
type OllamaGenerator struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOllamaGenerator(baseURL, model string) *OllamaGenerator {
	return &OllamaGenerator{
		baseURL:    trimBaseURL(baseURL, defaultOllamaBaseURL),
		model:      strings.TrimSpace(model),
		httpClient: newHTTPClient(),
	}
}

func (g *OllamaGenerator) Generate(ctx context.Context, turns []domain.Turn) (string, error) {
	if g.model == "" {
		return "", errors.New("ollama generation model required")
	}
	req := ollamaChatRequest{Model: g.model, Messages: make([]ollamaChatMessage, 0, len(turns))}
	for _, turn := range turns {
		req.Messages = append(req.Messages, ollamaChatMessage{Role: chatRole(turn.Role), Content: turn.Content})
	}

	var resp ollamaChatResponse
	if err := postJSON(ctx, g.httpClient, "ollama", g.baseURL+"/api/chat", nil, req, &resp); err != nil {
		return "", err
	}
	return replyText(resp.Message.Content)
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}
