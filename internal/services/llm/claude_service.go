package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/interfaces"
)

// ClaudeProvider implements Provider using Anthropic Claude API.
type ClaudeProvider struct {
	client anthropic.Client
	logger arbor.ILogger
}

// NewClaudeProvider creates a Claude provider. The SDK's own retries are
// disabled; extra options (base URL, HTTP client) are passed through.
func NewClaudeProvider(apiKey string, logger arbor.ILogger, opts ...option.RequestOption) *ClaudeProvider {
	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	return &ClaudeProvider{
		client: anthropic.NewClient(clientOpts...),
		logger: logger,
	}
}

// convertMessagesToClaude converts []interfaces.Message to Claude MessageParam format.
// Returns the user/assistant messages and the first system message content (if any).
func convertMessagesToClaude(messages []interfaces.Message) ([]anthropic.MessageParam, string, error) {
	conversation, systemText, err := splitSystem(messages)
	if err != nil {
		return nil, "", err
	}

	claudeMessages := make([]anthropic.MessageParam, 0, len(conversation))
	for _, msg := range conversation {
		switch msg.Role {
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}
	return claudeMessages, systemText, nil
}

// GenerateContent performs one Messages API call.
func (p *ClaudeProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	claudeMessages, systemText, err := convertMessagesToClaude(request.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if request.SystemInstruction != "" {
		systemText = request.SystemInstruction
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(request.Model),
		MaxTokens:   int64(request.MaxTokens),
		Messages:    claudeMessages,
		Temperature: anthropic.Float(request.Temperature),
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemText},
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &ContentResponse{
		Text:      text.String(),
		Provider:  ProviderClaude,
		Model:     string(resp.Model),
		Truncated: resp.StopReason == anthropic.StopReasonMaxTokens,
	}, nil
}

// GetProviderType returns ProviderClaude
func (p *ClaudeProvider) GetProviderType() ProviderType {
	return ProviderClaude
}

// Close is a no-op; the SDK client holds no resources of its own.
func (p *ClaudeProvider) Close() error {
	return nil
}
