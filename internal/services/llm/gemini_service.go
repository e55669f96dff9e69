package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/interfaces"
	"google.golang.org/genai"
)

// GeminiProvider implements Provider using the Google Gemini API.
type GeminiProvider struct {
	client *genai.Client
	logger arbor.ILogger
}

// NewGeminiProvider creates a Gemini provider for the Gemini API backend.
func NewGeminiProvider(ctx context.Context, apiKey string, logger arbor.ILogger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		logger: logger,
	}, nil
}

// convertMessagesToGemini converts []interfaces.Message to Gemini Content format.
// "assistant" maps to the model role; everything else is sent as user.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string, error) {
	conversation, systemText, err := splitSystem(messages)
	if err != nil {
		return nil, "", err
	}

	contents := make([]*genai.Content, 0, len(conversation))
	for _, msg := range conversation {
		geminiRole := genai.RoleUser
		if msg.Role == "assistant" {
			geminiRole = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  geminiRole,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}
	return contents, systemText, nil
}

// GenerateContent performs one GenerateContent call.
func (p *GeminiProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	contents, systemText, err := convertMessagesToGemini(request.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if request.SystemInstruction != "" {
		systemText = request.SystemInstruction
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(request.Temperature)),
		MaxOutputTokens: int32(request.MaxTokens),
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, request.Model, contents, config)
	if err != nil {
		return nil, err
	}

	// Use the first candidate that carries text
	var text strings.Builder
	truncated := false
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part != nil && part.Text != "" && !part.Thought {
					text.WriteString(part.Text)
				}
			}
			if text.Len() > 0 {
				truncated = candidate.FinishReason == genai.FinishReasonMaxTokens
				break
			}
		}
	}
	return &ContentResponse{
		Text:      text.String(),
		Provider:  ProviderGemini,
		Model:     request.Model,
		Truncated: truncated,
	}, nil
}

// GetProviderType returns ProviderGemini
func (p *GeminiProvider) GetProviderType() ProviderType {
	return ProviderGemini
}

// Close is a no-op; genai clients have nothing to release.
func (p *GeminiProvider) Close() error {
	return nil
}
