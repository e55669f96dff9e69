package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/interfaces"
	"github.com/ternarybob/stockcrew/internal/models"
)

// continuePrompt asks the model to resume a length-capped reply.
const continuePrompt = "Continue exactly where your previous answer stopped. Do not repeat earlier text."

var (
	thinkBlockRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)
	openThinkRegex  = regexp.MustCompile(`(?s)<think>.*$`)
)

// Client implements interfaces.InferenceClient on top of a Provider, adding
// retries, continuation of length-capped replies and audit logging.
type Client struct {
	provider    Provider
	retry       common.RetryPolicy
	callTimeout time.Duration
	audit       interfaces.AuditLogger
	validate    *validator.Validate
	logger      arbor.ILogger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithAuditLogger records every attempt through audit.
func WithAuditLogger(audit interfaces.AuditLogger) ClientOption {
	return func(c *Client) {
		c.audit = audit
	}
}

// WithCallTimeout bounds each individual attempt.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.callTimeout = d
	}
}

// NewClient wraps provider with the given retry policy.
func NewClient(provider Provider, retry common.RetryPolicy, logger arbor.ILogger, opts ...ClientOption) *Client {
	c := &Client{
		provider: provider,
		retry:    retry,
		validate: validator.New(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the provider name.
func (c *Client) Provider() string {
	return string(c.provider.GetProviderType())
}

// Close closes the underlying provider.
func (c *Client) Close() error {
	return c.provider.Close()
}

// Complete sends prompt, following length-capped replies with up to
// cfg.MaxIterations requests in total. The returned text has reasoning
// blocks removed; Truncated reports a reply still capped after the last round.
func (c *Client) Complete(ctx context.Context, prompt string, cfg interfaces.SamplingConfig, memory []interfaces.Message) (*interfaces.Completion, error) {
	if err := c.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid sampling config: %w", err)
	}

	messages := make([]interfaces.Message, 0, len(memory)+2)
	if cfg.Memory {
		messages = append(messages, memory...)
	}
	messages = append(messages, interfaces.Message{Role: "user", Content: prompt})

	completion := &interfaces.Completion{Model: cfg.Model}
	var raw strings.Builder

	for iteration := 1; iteration <= cfg.MaxIterations; iteration++ {
		request := &ContentRequest{
			Messages:          messages,
			Model:             cfg.Model,
			Temperature:       cfg.Temperature,
			MaxTokens:         cfg.MaxTokens,
			SystemInstruction: cfg.System,
		}

		resp, attempts, err := c.generate(ctx, request)
		completion.Iterations = iteration
		completion.Attempts = attempts
		if err != nil {
			return nil, &models.InferenceError{
				Provider: c.Provider(),
				Model:    cfg.Model,
				Attempts: attempts,
				Err:      err,
			}
		}

		raw.WriteString(resp.Text)
		if resp.Model != "" {
			completion.Model = resp.Model
		}
		completion.Truncated = resp.Truncated
		if !resp.Truncated {
			break
		}

		if iteration < cfg.MaxIterations {
			c.logger.Debug().
				Str("model", cfg.Model).
				Int("iteration", iteration).
				Int("partial_chars", raw.Len()).
				Msg("Reply hit the output token limit, requesting continuation")
			messages = append(messages,
				interfaces.Message{Role: "assistant", Content: resp.Text},
				interfaces.Message{Role: "user", Content: continuePrompt},
			)
		}
	}

	if completion.Truncated {
		c.logger.Warn().
			Str("model", cfg.Model).
			Int("iterations", completion.Iterations).
			Msg("Reply still truncated after the last continuation round")
	}

	completion.Text = StripThinking(raw.String())
	return completion, nil
}

// generate performs one request under the retry policy, auditing each attempt.
func (c *Client) generate(ctx context.Context, request *ContentRequest) (*ContentResponse, int, error) {
	promptChars := 0
	for _, m := range request.Messages {
		promptChars += len(m.Content)
	}

	var resp *ContentResponse
	onRetry := func(attempt int, wait time.Duration, err error) {
		c.logger.Warn().
			Str("provider", c.Provider()).
			Str("model", request.Model).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Err(err).
			Msg("Retrying inference call")
	}

	attempts, err := c.retry.Do(ctx, IsRetryable, onRetry, func(attempt int) error {
		callCtx := ctx
		if c.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.callTimeout)
			defer cancel()
		}

		start := time.Now()
		r, callErr := c.provider.GenerateContent(callCtx, request)
		c.record(ctx, request, attempt, promptChars, r, callErr, time.Since(start))
		if callErr != nil {
			return callErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, attempts, err
	}
	return resp, attempts, nil
}

func (c *Client) record(ctx context.Context, request *ContentRequest, attempt, promptChars int, resp *ContentResponse, callErr error, elapsed time.Duration) {
	if c.audit == nil {
		return
	}

	entry := &models.InferenceAudit{
		ID:          uuid.New().String(),
		RunID:       common.RunIDFromContext(ctx),
		Provider:    c.Provider(),
		Model:       request.Model,
		Attempt:     attempt,
		PromptChars: promptChars,
		DurationMs:  elapsed.Milliseconds(),
		Timestamp:   time.Now(),
	}
	if resp != nil {
		entry.OutputChars = len(resp.Text)
		entry.Truncated = resp.Truncated
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}

	if err := c.audit.LogInference(context.WithoutCancel(ctx), entry); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record inference audit entry")
	}
}

// StripThinking removes <think>...</think> reasoning blocks emitted by
// reasoning models, including an unterminated block at the end of the text.
func StripThinking(text string) string {
	text = thinkBlockRegex.ReplaceAllString(text, "")
	text = openThinkRegex.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
