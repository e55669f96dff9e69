package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/interfaces"
)

// OllamaProvider implements Provider against a local ollama server through
// its OpenAI-compatible chat completions endpoint.
type OllamaProvider struct {
	client  openai.Client
	baseURL string
	logger  arbor.ILogger
}

// NewOllamaProvider creates an ollama provider. Extra options are passed to
// the OpenAI client after the configured base URL and key.
func NewOllamaProvider(config *common.OllamaConfig, logger arbor.ILogger, opts ...option.RequestOption) *OllamaProvider {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = "ollama"
	}

	clientOpts := append([]option.RequestOption{
		option.WithBaseURL(config.BaseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	return &OllamaProvider{
		client:  openai.NewClient(clientOpts...),
		baseURL: config.BaseURL,
		logger:  logger,
	}
}

func convertMessagesToOpenAI(messages []interfaces.Message, systemOverride string) ([]openai.ChatCompletionMessageParamUnion, error) {
	conversation, systemText, err := splitSystem(messages)
	if err != nil {
		return nil, err
	}
	if systemOverride != "" {
		systemText = systemOverride
	}

	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(conversation)+1)
	if systemText != "" {
		out = append(out, openai.SystemMessage(systemText))
	}
	for _, msg := range conversation {
		if msg.Role == "assistant" {
			out = append(out, openai.AssistantMessage(msg.Content))
			continue
		}
		out = append(out, openai.UserMessage(msg.Content))
	}
	return out, nil
}

// GenerateContent performs one chat completion call.
func (p *OllamaProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	messages, err := convertMessagesToOpenAI(request.Messages, request.SystemInstruction)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(request.Model),
		Messages:    messages,
		Temperature: openai.Float(request.Temperature),
		MaxTokens:   openai.Int(int64(request.MaxTokens)),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	model := resp.Model
	if model == "" {
		model = request.Model
	}
	response := &ContentResponse{Provider: ProviderOllama, Model: model}
	if len(resp.Choices) > 0 {
		response.Text = resp.Choices[0].Message.Content
		response.Truncated = resp.Choices[0].FinishReason == "length"
	}
	return response, nil
}

// GetProviderType returns ProviderOllama
func (p *OllamaProvider) GetProviderType() ProviderType {
	return ProviderOllama
}

// Close is a no-op; the HTTP client is shared.
func (p *OllamaProvider) Close() error {
	return nil
}
