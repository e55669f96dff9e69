package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/interfaces"
	"github.com/ternarybob/stockcrew/internal/models"
	"github.com/ternarybob/stockcrew/internal/services/llm"
	"github.com/ternarybob/stockcrew/internal/templates"
)

type fakeMarket struct {
	calls int
	err   error
}

func (f *fakeMarket) Fetch(ctx context.Context, ticker common.Ticker) (*models.MarketSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.MarketSnapshot{
		Ticker:   ticker.String(),
		Symbol:   ticker.YahooSymbol(),
		Source:   "fake",
		Currency: "USD",
		Fundamentals: models.Fundamentals{
			Name:    "Apple Inc.",
			PERatio: 29.4,
		},
		Risk: models.RiskMetrics{
			Observations:         252,
			AnnualizedVolatility: 0.27,
			ConfidenceLevel:      0.95,
			Method:               "historical",
			VaRPercent:           2.6,
			Rating:               "Medium",
		},
	}, nil
}

type inferenceCall struct {
	prompt string
	memory []interfaces.Message
}

// fakeInference answers each call through reply, numbering calls from 1.
type fakeInference struct {
	mu    sync.Mutex
	calls []inferenceCall
	reply func(call int, prompt string) (*interfaces.Completion, error)
}

func (f *fakeInference) Complete(ctx context.Context, prompt string, cfg interfaces.SamplingConfig, memory []interfaces.Message) (*interfaces.Completion, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inferenceCall{prompt: prompt, memory: append([]interfaces.Message(nil), memory...)})
	call := len(f.calls)
	f.mu.Unlock()
	return f.reply(call, prompt)
}

func (f *fakeInference) Provider() string { return "fake" }
func (f *fakeInference) Close() error     { return nil }

func stageOutput(call int) string {
	return fmt.Sprintf("Stage %d finding: the company shows durable margins and steady demand.", call)
}

func answerAll(call int, prompt string) (*interfaces.Completion, error) {
	return &interfaces.Completion{Text: stageOutput(call), Iterations: 1, Attempts: 1, Model: "test-model"}, nil
}

type memoryRuns struct {
	mu   sync.Mutex
	runs map[string]models.RunRecord
}

func newMemoryRuns() *memoryRuns {
	return &memoryRuns{runs: make(map[string]models.RunRecord)}
}

func (m *memoryRuns) SaveRun(ctx context.Context, run *models.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *memoryRuns) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &run, nil
}

func (m *memoryRuns) ListRuns(ctx context.Context, ticker string, limit int) ([]*models.RunRecord, error) {
	return nil, nil
}

func (m *memoryRuns) Close() error { return nil }

func testSampling() interfaces.SamplingConfig {
	return interfaces.SamplingConfig{
		Model:         "test-model",
		Temperature:   0.1,
		MaxIterations: 3,
		MaxTokens:     1024,
		Memory:        false,
	}
}

func newTestOrchestrator(t *testing.T, market interfaces.MarketDataProvider, inference interfaces.InferenceClient, opts ...Option) *Orchestrator {
	t.Helper()
	engine, err := templates.NewEngine("")
	require.NoError(t, err)
	return NewOrchestrator(market, engine, inference, testSampling(), arbor.NewLogger(), opts...)
}

func TestRunAnalysis_RunsStagesInOrderWithPriorContext(t *testing.T) {
	market := &fakeMarket{}
	inference := &fakeInference{reply: answerAll}
	runs := newMemoryRuns()

	var hooked []models.StageKind
	fixed := time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)
	orch := newTestOrchestrator(t, market, inference,
		WithRunStorage(runs),
		WithClock(func() time.Time { return fixed }),
		WithStageHook(func(r models.StageResult) { hooked = append(hooked, r.Stage) }),
	)

	report, err := orch.RunAnalysis(context.Background(), "aapl")
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, "AAPL", report.Ticker)
	assert.False(t, report.Incomplete)
	assert.Nil(t, report.FailedStage)
	assert.Equal(t, 1, market.calls)
	assert.Equal(t, models.AllStages(), hooked)

	require.Len(t, report.Results, 5)
	for i, result := range report.Results {
		assert.Equal(t, models.AllStages()[i], result.Stage)
		assert.Equal(t, stageOutput(i+1), result.OutputText)
		assert.False(t, result.Degraded)
		assert.Contains(t, result.PromptText, "AAPL")

		// every earlier output is embedded verbatim, no later one is
		for j := 0; j < len(report.Results); j++ {
			if j < i {
				assert.Contains(t, result.PromptText, stageOutput(j+1), "stage %d prompt missing output %d", i, j)
			} else {
				assert.NotContains(t, result.PromptText, stageOutput(j+1))
			}
		}
		if i > 0 {
			assert.True(t, result.Timestamp.After(report.Results[i-1].Timestamp))
		}
	}

	stored, err := runs.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Len(t, stored.Stages, 5)
	assert.Equal(t, 2.6, stored.VaRPercent)
}

// flakyProvider fails with a transport error for the first failures calls.
type flakyProvider struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (p *flakyProvider) GenerateContent(ctx context.Context, request *llm.ContentRequest) (*llm.ContentResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return nil, errors.New("dial tcp 127.0.0.1:11434: connection refused")
	}
	return &llm.ContentResponse{Text: stageOutput(p.calls), Provider: llm.ProviderOllama}, nil
}

func (p *flakyProvider) GetProviderType() llm.ProviderType { return llm.ProviderOllama }
func (p *flakyProvider) Close() error                      { return nil }

func TestRunAnalysis_TransientInferenceFailuresAreInvisible(t *testing.T) {
	provider := &flakyProvider{failures: 2}
	client := llm.NewClient(provider, common.RetryPolicy{
		MaxRetries:        3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        time.Millisecond,
		BackoffMultiplier: 1,
	}, arbor.NewLogger())

	orch := newTestOrchestrator(t, &fakeMarket{}, client)
	report, err := orch.RunAnalysis(context.Background(), "MSFT")
	require.NoError(t, err)

	assert.False(t, report.Incomplete)
	require.Len(t, report.Results, 5)
	assert.Equal(t, 3, report.Results[0].Attempts)
	assert.Equal(t, 1, report.Results[1].Attempts)
	assert.Equal(t, 7, provider.calls)
}

func TestRunAnalysis_PersistentFailureReturnsPartialReport(t *testing.T) {
	cause := &models.InferenceError{Provider: "fake", Model: "test-model", Attempts: 4, Err: errors.New("connection refused")}
	inference := &fakeInference{reply: func(call int, prompt string) (*interfaces.Completion, error) {
		if call == 3 {
			return nil, cause
		}
		return answerAll(call, prompt)
	}}
	runs := newMemoryRuns()
	orch := newTestOrchestrator(t, &fakeMarket{}, inference, WithRunStorage(runs))

	report, err := orch.RunAnalysis(context.Background(), "NVDA")
	require.Error(t, err)
	require.NotNil(t, report)

	var runErr *models.RunError
	require.ErrorAs(t, err, &runErr)
	require.NotNil(t, runErr.Stage)
	assert.Equal(t, models.StageTechnicalAnalysis, *runErr.Stage)

	var inferenceErr *models.InferenceError
	assert.ErrorAs(t, err, &inferenceErr)

	assert.True(t, report.Incomplete)
	require.NotNil(t, report.FailedStage)
	assert.Equal(t, models.StageTechnicalAnalysis, *report.FailedStage)
	assert.Len(t, report.Results, 2)
	assert.Len(t, inference.calls, 3)

	stored, err := runs.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusIncomplete, stored.Status)
	assert.Equal(t, "technical_analysis", stored.FailedStage)
}

func TestRunAnalysis_InvalidTickerMakesNoCalls(t *testing.T) {
	market := &fakeMarket{}
	inference := &fakeInference{reply: answerAll}
	orch := newTestOrchestrator(t, market, inference)

	report, err := orch.RunAnalysis(context.Background(), "NOT A TICKER")

	var invalid *models.InvalidTickerError
	require.ErrorAs(t, err, &invalid)
	assert.Nil(t, report)
	assert.Zero(t, market.calls)
	assert.Empty(t, inference.calls)
}

func TestRunAnalysis_UnknownTickerMakesNoInferenceCall(t *testing.T) {
	market := &fakeMarket{err: &models.DataUnavailableError{Ticker: "ZZZZ9", Reason: "symbol not found"}}
	inference := &fakeInference{reply: answerAll}
	runs := newMemoryRuns()
	orch := newTestOrchestrator(t, market, inference, WithRunStorage(runs))

	report, err := orch.RunAnalysis(context.Background(), "ZZZZ9")

	var unavailable *models.DataUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Nil(t, report)
	assert.Equal(t, 1, market.calls)
	assert.Empty(t, inference.calls)

	require.Len(t, runs.runs, 1)
	for _, run := range runs.runs {
		assert.Equal(t, models.RunStatusFailed, run.Status)
	}
}

func TestRunAnalysis_DegradedOutputDoesNotAbort(t *testing.T) {
	inference := &fakeInference{reply: func(call int, prompt string) (*interfaces.Completion, error) {
		if call == 2 {
			return &interfaces.Completion{Text: "   ", Iterations: 1, Attempts: 1}, nil
		}
		return answerAll(call, prompt)
	}}
	orch := newTestOrchestrator(t, &fakeMarket{}, inference)

	report, err := orch.RunAnalysis(context.Background(), "AAPL")
	require.NoError(t, err)

	require.Len(t, report.Results, 5)
	assert.Equal(t, []models.StageKind{models.StageFinancialHealth}, report.DegradedStages())
	assert.False(t, report.Incomplete)
}

func TestRunAnalysis_CancellationStopsAtStageBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inference := &fakeInference{reply: answerAll}
	orch := newTestOrchestrator(t, &fakeMarket{}, inference,
		WithStageHook(func(r models.StageResult) {
			if r.Stage == models.StageFinancialHealth {
				cancel()
			}
		}),
	)

	report, err := orch.RunAnalysis(ctx, "AAPL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, IsCancelled(err))

	require.NotNil(t, report)
	assert.True(t, report.Incomplete)
	assert.Len(t, report.Results, 2)
	require.NotNil(t, report.FailedStage)
	assert.Equal(t, models.StageTechnicalAnalysis, *report.FailedStage)
	assert.Len(t, inference.calls, 2)
}

func TestRunAnalysis_MemoryWindow(t *testing.T) {
	inference := &fakeInference{reply: answerAll}
	engine, err := templates.NewEngine("")
	require.NoError(t, err)

	sampling := testSampling()
	sampling.Memory = true
	orch := NewOrchestrator(&fakeMarket{}, engine, inference, sampling, arbor.NewLogger(), WithMemoryWindow(1))

	_, err = orch.RunAnalysis(context.Background(), "AAPL")
	require.NoError(t, err)

	require.Len(t, inference.calls, 5)
	assert.Empty(t, inference.calls[0].memory)
	for _, call := range inference.calls[1:] {
		require.Len(t, call.memory, 2)
		assert.Equal(t, "user", call.memory[0].Role)
		assert.Equal(t, "assistant", call.memory[1].Role)
	}
	assert.Equal(t, stageOutput(3), inference.calls[3].memory[1].Content)
	assert.True(t, strings.HasPrefix(inference.calls[3].memory[0].Content, "You are the"))
}
