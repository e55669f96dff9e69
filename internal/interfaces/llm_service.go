package interfaces

import (
	"context"
)

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// SamplingConfig carries the model settings for a completion. It is fixed at
// run start and shared by every stage of the run.
type SamplingConfig struct {
	// Model is the provider model identifier, e.g. "deepseek-r1:8b"
	Model string `validate:"required"`

	// Temperature in [0, 2]; low values keep analysis deterministic
	Temperature float64 `validate:"gte=0,lte=2"`

	// MaxIterations caps the continuation rounds used when a reply is length-capped
	MaxIterations int `validate:"gte=1"`

	// MaxTokens is the per-request output budget
	MaxTokens int `validate:"gte=1"`

	// Memory enables sending the run's prior exchanges with each request
	Memory bool

	// System is an optional system instruction
	System string
}

// Completion is the outcome of a successful completion call.
type Completion struct {
	// Text is the completion with reasoning blocks removed
	Text string

	// Truncated is set when the reply was still length-capped after MaxIterations rounds
	Truncated bool

	// Iterations is the number of requests used, including continuations
	Iterations int

	// Attempts is the number of attempts used by the retry policy for the final request
	Attempts int

	// Model echoes the model that served the request
	Model string
}

// InferenceClient sends a prompt to a language model service.
// Implementations are stateless between calls and safe for concurrent use.
type InferenceClient interface {
	// Complete sends prompt with the given sampling configuration.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - prompt: Fully rendered stage prompt
	//   - cfg: Sampling configuration for the run
	//   - memory: Prior exchanges of the run, oldest first; ignored unless cfg.Memory
	//
	// Returns:
	//   - *Completion: Completion text and truncation/attempt metadata
	//   - error: *models.InferenceError once transient failures exhaust the
	//     retry policy, or immediately for non-retryable failures
	Complete(ctx context.Context, prompt string, cfg SamplingConfig, memory []Message) (*Completion, error)

	// Provider returns the provider name, e.g. "ollama"
	Provider() string

	// Close releases resources held by the underlying provider
	Close() error
}
