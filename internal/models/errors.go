package models

import "fmt"

// InvalidTickerError is returned when a ticker fails validation. Not retried.
type InvalidTickerError struct {
	Ticker string
	Reason string
}

func (e *InvalidTickerError) Error() string {
	return fmt.Sprintf("invalid ticker %q: %s", e.Ticker, e.Reason)
}

// DataUnavailableError is returned for unknown or delisted symbols and for
// symbols without enough price history. Not retried.
type DataUnavailableError struct {
	Ticker string
	Reason string
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("market data unavailable for %s: %s", e.Ticker, e.Reason)
}

// UpstreamUnavailableError is returned when the market data service could not
// be reached after the retry policy was exhausted.
type UpstreamUnavailableError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("market data source %s unavailable after %d attempt(s): %v", e.Source, e.Attempts, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }

// InferenceError is returned when the model service failed after retries, or
// failed with a non-retryable error.
type InferenceError struct {
	Provider string
	Model    string
	Attempts int
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed (%s/%s) after %d attempt(s): %v", e.Provider, e.Model, e.Attempts, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// TemplateError signals an internal defect while building a stage prompt,
// typically a required prior output missing from the context.
type TemplateError struct {
	Stage   StageKind
	Missing []StageKind
	Err     error
}

func (e *TemplateError) Error() string {
	if len(e.Missing) > 0 {
		names := make([]string, len(e.Missing))
		for i, m := range e.Missing {
			names[i] = m.String()
		}
		return fmt.Sprintf("template %s: missing required context %v", e.Stage, names)
	}
	return fmt.Sprintf("template %s: %v", e.Stage, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// RunError names the stage at which a run aborted.
type RunError struct {
	Ticker string
	Stage  *StageKind
	Err    error
}

func (e *RunError) Error() string {
	if e.Stage == nil {
		return fmt.Sprintf("analysis of %s failed: %v", e.Ticker, e.Err)
	}
	return fmt.Sprintf("analysis of %s failed at %s: %v", e.Ticker, e.Stage.Title(), e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
