package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/interfaces"
)

// ProviderType represents the inference provider type
type ProviderType string

const (
	// ProviderOllama uses a local ollama server through its OpenAI-compatible API
	ProviderOllama ProviderType = "ollama"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
)

// ContentRequest represents a provider-agnostic content generation request
type ContentRequest struct {
	Messages          []interfaces.Message
	Model             string
	Temperature       float64
	MaxTokens         int
	SystemInstruction string
}

// ContentResponse represents a provider-agnostic content generation response
type ContentResponse struct {
	Text     string
	Provider ProviderType
	Model    string
	// Truncated is set when the provider stopped on its output token limit
	Truncated bool
}

// Provider defines the interface for a single model round-trip.
// Providers do not retry; retries belong to Client. An answer without text
// is returned as an empty ContentResponse, not an error.
type Provider interface {
	GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error)
	GetProviderType() ProviderType
	Close() error
}

// NewProvider creates the provider selected by config.LLM.Provider.
func NewProvider(ctx context.Context, config *common.Config, logger arbor.ILogger) (Provider, error) {
	switch ProviderType(config.LLM.Provider) {
	case ProviderOllama, "":
		return NewOllamaProvider(&config.Ollama, logger), nil
	case ProviderClaude:
		apiKey, err := common.ResolveAPIKey("claude_api_key", config.Claude.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
		}
		return NewClaudeProvider(apiKey, logger), nil
	case ProviderGemini:
		apiKey, err := common.ResolveAPIKey("gemini_api_key", config.Gemini.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
		}
		return NewGeminiProvider(ctx, apiKey, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", config.LLM.Provider)
	}
}

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-sonnet-4-20250514" or "claude/claude-sonnet-4-20250514" -> Claude
// - "gemini-2.5-flash" or "gemini/gemini-2.5-flash" -> Gemini
// - "ollama/deepseek-r1:8b" -> Ollama
// - anything else -> fallback
func DetectProvider(model string, fallback ProviderType) ProviderType {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "claude/"), strings.HasPrefix(model, "anthropic/"), strings.HasPrefix(model, "claude-"):
		return ProviderClaude
	case strings.HasPrefix(model, "gemini/"), strings.HasPrefix(model, "google/"), strings.HasPrefix(model, "gemini-"):
		return ProviderGemini
	case strings.HasPrefix(model, "ollama/"):
		return ProviderOllama
	}
	return fallback
}

// NormalizeModel removes provider prefix from model name if present
func NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/", "ollama/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// splitSystem separates the first system message from the conversation and
// checks the conversation carries at least one user message.
func splitSystem(messages []interfaces.Message) ([]interfaces.Message, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	var systemText string
	conversation := make([]interfaces.Message, 0, len(messages))
	hasUserMessage := false
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		case "user":
			hasUserMessage = true
		}
		conversation = append(conversation, msg)
	}

	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}
	return conversation, systemText, nil
}
