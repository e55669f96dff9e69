// Package pipeline runs the fixed sequence of analysis stages for a ticker.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/interfaces"
	"github.com/ternarybob/stockcrew/internal/models"
)

// StageHook is called after each stage result is recorded.
type StageHook func(result models.StageResult)

// Orchestrator drives one analysis run: ticker validation, a single market
// snapshot fetch, then every stage in order, each stage seeing the outputs of
// all earlier stages. Runs are independent; an Orchestrator may serve
// concurrent runs.
type Orchestrator struct {
	market    interfaces.MarketDataProvider
	renderer  interfaces.PromptRenderer
	inference interfaces.InferenceClient
	runs      interfaces.RunStorage
	sampling  interfaces.SamplingConfig

	memoryWindow   int
	minOutputChars int
	stageTimeout   time.Duration
	onStage        StageHook
	now            func() time.Time
	logger         arbor.ILogger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithRunStorage records every run to storage. Storage failures are logged and ignored.
func WithRunStorage(runs interfaces.RunStorage) Option {
	return func(o *Orchestrator) {
		o.runs = runs
	}
}

// WithStageHook registers a callback for completed stages.
func WithStageHook(hook StageHook) Option {
	return func(o *Orchestrator) {
		o.onStage = hook
	}
}

// WithMemoryWindow sets how many prior prompt/answer exchanges are sent as
// conversation memory when the sampling config enables memory.
func WithMemoryWindow(exchanges int) Option {
	return func(o *Orchestrator) {
		o.memoryWindow = exchanges
	}
}

// WithMinOutputChars sets the length below which a stage output is degraded.
func WithMinOutputChars(n int) Option {
	return func(o *Orchestrator) {
		o.minOutputChars = n
	}
}

// WithStageTimeout bounds a single stage's inference call.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.stageTimeout = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an orchestrator.
//
// Parameters:
//   - market: Market data provider, called once per run before any inference
//   - renderer: Stage prompt renderer
//   - inference: Inference client shared by every stage
//   - sampling: Sampling configuration fixed for every run
//   - logger: Structured logger
func NewOrchestrator(
	market interfaces.MarketDataProvider,
	renderer interfaces.PromptRenderer,
	inference interfaces.InferenceClient,
	sampling interfaces.SamplingConfig,
	logger arbor.ILogger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		market:         market,
		renderer:       renderer,
		inference:      inference,
		sampling:       sampling,
		memoryWindow:   2,
		minOutputChars: 40,
		stageTimeout:   5 * time.Minute,
		now:            time.Now,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sampling returns the sampling configuration used for every stage.
func (o *Orchestrator) Sampling() interfaces.SamplingConfig {
	return o.sampling
}

// RunAnalysis analyses ticker through every stage in order.
//
// Parameters:
//   - ctx: Cancellation is honoured between stages; an in-flight stage runs to
//     completion bounded by the stage timeout
//   - ticker: Raw ticker input, validated before any external call
//
// Returns:
//   - *models.Report: nil when the ticker or market data failed; otherwise the
//     report, marked Incomplete with FailedStage set when a stage failed
//   - error: *models.InvalidTickerError, *models.DataUnavailableError and
//     *models.UpstreamUnavailableError before any stage runs; *models.RunError
//     naming the stage when a stage failed or the run was cancelled
func (o *Orchestrator) RunAnalysis(ctx context.Context, ticker string) (*models.Report, error) {
	parsed, err := common.ParseTicker(ticker)
	if err != nil {
		o.logger.Warn().Str("ticker", ticker).Err(err).Msg("Rejected ticker")
		return nil, err
	}

	request := models.AnalysisRequest{
		RunID:       uuid.New().String(),
		Ticker:      parsed.String(),
		Stages:      models.AllStages(),
		RequestedAt: o.now(),
	}
	ctx = common.WithRunID(ctx, request.RunID)
	logger := o.logger.WithCorrelationId(request.RunID)

	record := &models.RunRecord{
		ID:        request.RunID,
		Ticker:    request.Ticker,
		Status:    models.RunStatusRunning,
		Provider:  o.inference.Provider(),
		Model:     o.sampling.Model,
		StartedAt: request.RequestedAt,
	}

	logger.Info().
		Str("run_id", request.RunID).
		Str("ticker", request.Ticker).
		Str("model", o.sampling.Model).
		Msg("Starting analysis run")

	snapshot, err := o.market.Fetch(ctx, parsed)
	if err != nil {
		logger.Error().Str("run_id", request.RunID).Str("ticker", request.Ticker).Err(err).Msg("Market data fetch failed")
		record.Status = models.RunStatusFailed
		record.Failure = err.Error()
		record.FinishedAt = o.now()
		o.saveRun(ctx, record)
		return nil, err
	}
	request.Symbol = snapshot.Symbol
	record.VaRPercent = snapshot.Risk.VaRPercent
	record.Volatility = snapshot.Risk.AnnualizedVolatility
	o.saveRun(ctx, record)

	report := &models.Report{
		RunID:    request.RunID,
		Ticker:   request.Ticker,
		Snapshot: snapshot,
	}

	runErr := o.runStages(ctx, logger, request, snapshot, report)

	report.GeneratedAt = o.now()
	record.FinishedAt = report.GeneratedAt
	for _, res := range report.Results {
		record.Stages = append(record.Stages, models.SummarizeStage(res))
	}

	if runErr != nil {
		report.Incomplete = true
		report.Failure = runErr.Error()
		record.Status = models.RunStatusIncomplete
		record.Failure = runErr.Error()
		if report.FailedStage != nil {
			record.FailedStage = report.FailedStage.String()
		}
		o.saveRun(ctx, record)

		logger.Error().
			Str("run_id", request.RunID).
			Str("ticker", request.Ticker).
			Int("completed_stages", len(report.Results)).
			Err(runErr).
			Msg("Analysis run incomplete")
		return report, runErr
	}

	record.Status = models.RunStatusCompleted
	o.saveRun(ctx, record)

	logger.Info().
		Str("run_id", request.RunID).
		Str("ticker", request.Ticker).
		Int("degraded_stages", len(report.DegradedStages())).
		Dur("duration", report.GeneratedAt.Sub(request.RequestedAt)).
		Msg("Analysis run completed")

	return report, nil
}

// runStages executes the stages in order, appending to report.Results. On a
// fatal error report.FailedStage is set and a *models.RunError returned.
func (o *Orchestrator) runStages(ctx context.Context, logger arbor.ILogger, request models.AnalysisRequest, snapshot *models.MarketSnapshot, report *models.Report) error {
	actx := models.NewAnalysisContext()
	var memory []interfaces.Message
	var lastTimestamp time.Time

	fail := func(stage models.StageKind, err error) error {
		failed := stage
		report.FailedStage = &failed
		return &models.RunError{Ticker: request.Ticker, Stage: &failed, Err: err}
	}

	for _, stage := range request.Stages {
		if err := ctx.Err(); err != nil {
			logger.Warn().
				Str("run_id", request.RunID).
				Str("stage", stage.String()).
				Msg("Run cancelled at stage boundary")
			return fail(stage, err)
		}

		prompt, err := o.renderer.Render(stage, request.Ticker, actx, snapshot)
		if err != nil {
			return fail(stage, err)
		}

		logger.Info().
			Str("run_id", request.RunID).
			Str("stage", stage.String()).
			Int("prompt_chars", len(prompt)).
			Msg("Running stage")

		start := o.now()
		completion, err := o.complete(ctx, prompt, o.windowedMemory(memory))
		if err != nil {
			return fail(stage, err)
		}

		timestamp := o.now()
		if !timestamp.After(lastTimestamp) {
			timestamp = lastTimestamp.Add(time.Nanosecond)
		}
		lastTimestamp = timestamp

		output := completion.Text
		result := models.StageResult{
			Stage:      stage,
			PromptText: prompt,
			OutputText: output,
			Timestamp:  timestamp,
			Model:      completion.Model,
			Degraded:   utf8.RuneCountInString(strings.TrimSpace(output)) < o.minOutputChars,
			Truncated:  completion.Truncated,
			Attempts:   completion.Attempts,
			Iterations: completion.Iterations,
			Duration:   timestamp.Sub(start),
		}

		if err := actx.Append(stage, output); err != nil {
			return fail(stage, &models.TemplateError{Stage: stage, Err: err})
		}
		report.Results = append(report.Results, result)
		memory = append(memory,
			interfaces.Message{Role: "user", Content: prompt},
			interfaces.Message{Role: "assistant", Content: output},
		)

		event := logger.Info()
		if result.Degraded {
			event = logger.Warn()
		}
		event.
			Str("run_id", request.RunID).
			Str("stage", stage.String()).
			Int("output_chars", len(output)).
			Int("attempts", result.Attempts).
			Str("degraded", boolString(result.Degraded)).
			Str("truncated", boolString(result.Truncated)).
			Dur("duration", result.Duration).
			Msg("Stage completed")

		if o.onStage != nil {
			o.onStage(result)
		}
	}
	return nil
}

// complete runs one stage's inference call detached from the caller's
// cancellation, so a started stage always finishes or times out on its own.
func (o *Orchestrator) complete(ctx context.Context, prompt string, memory []interfaces.Message) (*interfaces.Completion, error) {
	callCtx := context.WithoutCancel(ctx)
	if o.stageTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, o.stageTimeout)
		defer cancel()
	}
	return o.inference.Complete(callCtx, prompt, o.sampling, memory)
}

func (o *Orchestrator) windowedMemory(memory []interfaces.Message) []interfaces.Message {
	if !o.sampling.Memory || o.memoryWindow <= 0 {
		return nil
	}
	if keep := o.memoryWindow * 2; len(memory) > keep {
		return memory[len(memory)-keep:]
	}
	return memory
}

func (o *Orchestrator) saveRun(ctx context.Context, record *models.RunRecord) {
	if o.runs == nil {
		return
	}
	if err := o.runs.SaveRun(context.WithoutCancel(ctx), record); err != nil {
		o.logger.Warn().Str("run_id", record.ID).Err(err).Msg("Failed to record run")
	}
}

// RecordReportPath attaches the written report file to a stored run.
func (o *Orchestrator) RecordReportPath(ctx context.Context, runID, path string) {
	if o.runs == nil {
		return
	}
	record, err := o.runs.GetRun(ctx, runID)
	if err != nil {
		o.logger.Warn().Str("run_id", runID).Err(err).Msg("Failed to load run for report path")
		return
	}
	record.ReportPath = path
	o.saveRun(ctx, record)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// IsCancelled reports whether err stems from run cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
