package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BillK181/wedding-website/pkg/domain"
)

// ChatGenerator produces the next assistant reply for an ordered conversation.
type ChatGenerator interface {
	Generate(ctx context.Context, turns []domain.Turn) (string, error)
}

var (
	ErrMissingAPIKey = errors.New("generation api key required")
	ErrEmptyResponse = errors.New("empty response from model")
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o"
)

// NewGenerator builds the provider named in cfg. The default provider is OpenAI.
func NewGenerator(cfg Config) (ChatGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "openai"
	}
	switch provider {
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, ErrMissingAPIKey
		}
		model := strings.TrimSpace(cfg.Model)
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAICompatGenerator(cfg.BaseURL, cfg.APIKey, model), nil
	case "openai-compat":
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, errors.New("openai-compat base url required")
		}
		return NewOpenAICompatGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case "ollama":
		return NewOllamaGenerator(cfg.BaseURL, cfg.Model), nil
	case "gemini":
		gen, err := NewGeminiGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", provider)
	}
}

// chatRole maps transcript roles onto the OpenAI/Ollama message roles.
func chatRole(role domain.Role) string {
	switch role {
	case domain.RoleSystem:
		return "system"
	case domain.RoleAssistant:
		return "assistant"
	default:
		return "user"
	}
}
