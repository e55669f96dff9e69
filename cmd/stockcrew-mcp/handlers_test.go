package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/models"
)

type fakeApp struct {
	report   *models.Report
	path     string
	err      error
	snapshot *models.MarketSnapshot
	runs     []*models.RunRecord

	gotTicker string
	gotLimit  int
}

func (f *fakeApp) Analyze(ctx context.Context, ticker string) (*models.Report, string, error) {
	f.gotTicker = ticker
	return f.report, f.path, f.err
}

func (f *fakeApp) Snapshot(ctx context.Context, ticker string) (*models.MarketSnapshot, error) {
	f.gotTicker = ticker
	return f.snapshot, f.err
}

func (f *fakeApp) ListRuns(ctx context.Context, ticker string, limit int) ([]*models.RunRecord, error) {
	f.gotTicker = ticker
	f.gotLimit = limit
	return f.runs, f.err
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func sampleReport() *models.Report {
	return &models.Report{
		RunID:       "run-1",
		Ticker:      "AAPL",
		GeneratedAt: time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
		Results: []models.StageResult{
			{Stage: models.StageMarketResearch, OutputText: "Demand is steady across segments."},
		},
	}
}

func TestHandleAnalyzeStock(t *testing.T) {
	fake := &fakeApp{report: sampleReport(), path: "reports/AAPL_20261019_093000.md"}
	handler := handleAnalyzeStock(fake, arbor.NewLogger())

	result, err := handler(context.Background(), callRequest(map[string]any{"ticker": "aapl"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "aapl", fake.gotTicker)

	text := resultText(t, result)
	assert.Contains(t, text, "reports/AAPL_20261019_093000.md")
	assert.Contains(t, text, "# AAPL Investment Analysis")
	assert.Contains(t, text, "Demand is steady")
}

func TestHandleAnalyzeStockIncomplete(t *testing.T) {
	stage := models.StageFinancialHealth
	r := sampleReport()
	r.Incomplete = true
	r.FailedStage = &stage
	fake := &fakeApp{report: r, path: "reports/AAPL_incomplete.md", err: &models.RunError{Ticker: "AAPL", Stage: &stage, Err: errors.New("inference failed")}}

	result, err := handleAnalyzeStock(fake, arbor.NewLogger())(context.Background(), callRequest(map[string]any{"ticker": "AAPL"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "**Incomplete:**")
	assert.Contains(t, text, "Demand is steady")
}

func TestHandleAnalyzeStockFailure(t *testing.T) {
	fake := &fakeApp{err: &models.InvalidTickerError{Ticker: "$$", Reason: "bad"}}

	result, err := handleAnalyzeStock(fake, arbor.NewLogger())(context.Background(), callRequest(map[string]any{"ticker": "$$"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid ticker")
}

func TestHandleAnalyzeStockMissingTicker(t *testing.T) {
	fake := &fakeApp{}

	result, err := handleAnalyzeStock(fake, arbor.NewLogger())(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Empty(t, fake.gotTicker)
}

func TestHandleMarketSnapshot(t *testing.T) {
	fake := &fakeApp{snapshot: &models.MarketSnapshot{
		Ticker: "AAPL",
		Symbol: "AAPL",
		Source: "yahoo",
		Prices: []models.PriceBar{{Close: 100}},
		Risk:   models.RiskMetrics{VaRPercent: 2.5, Rating: "Moderate"},
	}}

	result, err := handleMarketSnapshot(fake, arbor.NewLogger())(context.Background(), callRequest(map[string]any{"ticker": "AAPL"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "ticker: AAPL")
	assert.Contains(t, text, "var_percent: 2.5")
	assert.Contains(t, text, "rating: Moderate")
	assert.NotContains(t, text, "prices")
}

func TestHandleListRuns(t *testing.T) {
	fake := &fakeApp{runs: []*models.RunRecord{{
		ID:        "run-9",
		Ticker:    "MSFT",
		Status:    models.RunStatusCompleted,
		StartedAt: time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
	}}}
	handler := handleListRuns(fake, arbor.NewLogger())

	result, err := handler(context.Background(), callRequest(map[string]any{"ticker": "msft", "limit": float64(500)}))
	require.NoError(t, err)
	assert.Equal(t, 100, fake.gotLimit)
	assert.Equal(t, "msft", fake.gotTicker)
	text := resultText(t, result)
	assert.Contains(t, text, "## Runs for MSFT (1 results)")
	assert.Contains(t, text, "**ID:** run-9")

	_, err = handler(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, 20, fake.gotLimit)
}

func TestHandleListRunsStorageError(t *testing.T) {
	fake := &fakeApp{err: errors.New("run history storage is disabled")}

	result, err := handleListRuns(fake, arbor.NewLogger())(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
