package common

import (
	"context"
	"regexp"
	"strconv"
	"time"
)

// RetryPolicy is the runtime form of a RetryConfig.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one
	MaxRetries int
	// InitialBackoff is the wait before the first retry
	InitialBackoff time.Duration
	// MaxBackoff caps every wait
	MaxBackoff time.Duration
	// BackoffMultiplier is applied to the backoff on each retry
	BackoffMultiplier float64
}

// NewRetryPolicy converts a config section, filling unparseable durations with defaults.
func NewRetryPolicy(cfg RetryConfig) RetryPolicy {
	multiplier := cfg.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	return RetryPolicy{
		MaxRetries:        cfg.MaxRetries,
		InitialBackoff:    ParseDurationOr(cfg.InitialBackoff, time.Second),
		MaxBackoff:        ParseDurationOr(cfg.MaxBackoff, 30*time.Second),
		BackoffMultiplier: multiplier,
	}
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+|retry-after[:\s]+)(\d+(?:\.\d+)?)\s*s?`)

// ExtractRetryDelay parses an API-suggested retry delay from an error message.
// Returns 0 if no delay is found.
//
// Example error message:
// "Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

// CalculateBackoff computes the wait before retry number attempt (0-based).
// An API-provided delay replaces InitialBackoff as the base. The result is capped at MaxBackoff.
func (p RetryPolicy) CalculateBackoff(attempt int, apiDelay time.Duration) time.Duration {
	base := p.InitialBackoff
	if apiDelay > 0 {
		base = apiDelay
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= p.BackoffMultiplier
	}

	backoff := time.Duration(float64(base) * multiplier)
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return backoff
}

// Do calls op until it succeeds, returns a non-retryable error, or the policy
// is exhausted. It returns the number of attempts made and the last error.
// onRetry, when set, is called before each wait.
func (p RetryPolicy) Do(ctx context.Context, retryable func(error) bool, onRetry func(attempt int, wait time.Duration, err error), op func(attempt int) error) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		lastErr = op(attempt + 1)
		if lastErr == nil {
			return attempt + 1, nil
		}
		if !retryable(lastErr) || attempt == p.MaxRetries {
			return attempt + 1, lastErr
		}

		wait := p.CalculateBackoff(attempt, ExtractRetryDelay(lastErr))
		if onRetry != nil {
			onRetry(attempt+1, wait, lastErr)
		}
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, lastErr
		case <-timer.C:
		}
	}
	return p.MaxRetries + 1, lastErr
}
