package models

import (
	"fmt"
	"time"
)

// AnalysisRequest is the validated input of one run.
type AnalysisRequest struct {
	RunID       string
	Ticker      string
	Symbol      string
	Stages      []StageKind
	RequestedAt time.Time
}

// StageResult is the outcome of one stage. Produced once per stage per run.
type StageResult struct {
	Stage      StageKind     `json:"stage"`
	PromptText string        `json:"prompt_text"`
	OutputText string        `json:"output_text"`
	Timestamp  time.Time     `json:"timestamp"`
	Model      string        `json:"model"`
	Degraded   bool          `json:"degraded,omitempty"`
	Truncated  bool          `json:"truncated,omitempty"`
	Attempts   int           `json:"attempts"`
	Iterations int           `json:"iterations"`
	Duration   time.Duration `json:"duration"`
}

// ContextEntry is one prior stage output available to later stages.
type ContextEntry struct {
	Stage  StageKind
	Output string
}

// AnalysisContext accumulates stage outputs for a single run. Entries can only
// be appended, one per stage, in pipeline order.
type AnalysisContext struct {
	entries []ContextEntry
}

// NewAnalysisContext creates an empty context.
func NewAnalysisContext() *AnalysisContext {
	return &AnalysisContext{}
}

// Append records the output of the next stage. The stage must be the one that
// follows the last appended stage.
func (c *AnalysisContext) Append(stage StageKind, output string) error {
	next := StageKind(len(c.entries))
	if stage != next {
		return fmt.Errorf("context append out of order: got %s, expected %s", stage, next)
	}
	c.entries = append(c.entries, ContextEntry{Stage: stage, Output: output})
	return nil
}

// Output returns the recorded output of stage.
func (c *AnalysisContext) Output(stage StageKind) (string, bool) {
	if c == nil || !stage.Valid() || int(stage) >= len(c.entries) {
		return "", false
	}
	return c.entries[stage].Output, true
}

// Has reports whether stage has been recorded.
func (c *AnalysisContext) Has(stage StageKind) bool {
	_, ok := c.Output(stage)
	return ok
}

// Entries returns a copy of the recorded entries in pipeline order.
func (c *AnalysisContext) Entries() []ContextEntry {
	if c == nil {
		return nil
	}
	out := make([]ContextEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of recorded stages.
func (c *AnalysisContext) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Report is the final product of a run, complete or not.
type Report struct {
	RunID       string
	Ticker      string
	GeneratedAt time.Time
	Results     []StageResult
	Snapshot    *MarketSnapshot
	Incomplete  bool
	FailedStage *StageKind
	Failure     string
}

// Result returns the result recorded for stage.
func (r *Report) Result(stage StageKind) (StageResult, bool) {
	for _, res := range r.Results {
		if res.Stage == stage {
			return res, true
		}
	}
	return StageResult{}, false
}

// DegradedStages lists stages whose output was recorded as degraded.
func (r *Report) DegradedStages() []StageKind {
	var out []StageKind
	for _, res := range r.Results {
		if res.Degraded {
			out = append(out, res.Stage)
		}
	}
	return out
}
