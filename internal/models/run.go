package models

import "time"

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusIncomplete RunStatus = "incomplete"
	RunStatusFailed     RunStatus = "failed"
)

// RunRecord is the stored history entry for one analysis run.
type RunRecord struct {
	ID          string         `json:"id"`
	Ticker      string         `json:"ticker" badgerhold:"index"`
	Status      RunStatus      `json:"status"`
	Provider    string         `json:"provider"`
	Model       string         `json:"model"`
	StartedAt   time.Time      `json:"started_at" badgerhold:"index"`
	FinishedAt  time.Time      `json:"finished_at,omitempty"`
	Stages      []StageSummary `json:"stages"`
	FailedStage string         `json:"failed_stage,omitempty"`
	Failure     string         `json:"failure,omitempty"`
	ReportPath  string         `json:"report_path,omitempty"`
	VaRPercent  float64        `json:"var_percent,omitempty"`
	Volatility  float64        `json:"annualized_volatility,omitempty"`
}

// StageSummary is the stored summary of one stage result.
type StageSummary struct {
	Stage       string        `json:"stage"`
	Degraded    bool          `json:"degraded,omitempty"`
	Truncated   bool          `json:"truncated,omitempty"`
	Attempts    int           `json:"attempts"`
	Duration    time.Duration `json:"duration"`
	OutputChars int           `json:"output_chars"`
}

// InferenceAudit records one completion call.
type InferenceAudit struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id" badgerhold:"index"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Attempt     int       `json:"attempt"`
	PromptChars int       `json:"prompt_chars"`
	OutputChars int       `json:"output_chars"`
	Truncated   bool      `json:"truncated,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// SummarizeStage builds the stored summary for a stage result.
func SummarizeStage(r StageResult) StageSummary {
	return StageSummary{
		Stage:       r.Stage.String(),
		Degraded:    r.Degraded,
		Truncated:   r.Truncated,
		Attempts:    r.Attempts,
		Duration:    r.Duration,
		OutputChars: len(r.OutputText),
	}
}
