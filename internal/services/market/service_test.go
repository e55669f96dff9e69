package market

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/models"
)

type fakeSource struct {
	calls atomic.Int32
	from  time.Time
	fetch func(call int) (*SourceData, error)
}

func (f *fakeSource) Name() string                       { return "fake" }
func (f *fakeSource) Symbol(ticker common.Ticker) string { return ticker.Code + ".FAKE" }
func (f *fakeSource) Fetch(ctx context.Context, ticker common.Ticker, from time.Time) (*SourceData, error) {
	f.from = from
	return f.fetch(int(f.calls.Add(1)))
}

func testMarketConfig() common.MarketConfig {
	cfg := common.NewDefaultConfig().Market
	cfg.Retry.InitialBackoff = "1ms"
	cfg.Retry.MaxBackoff = "1ms"
	return cfg
}

func syntheticData(n int) *SourceData {
	prices := make([]float64, n)
	prices[0] = 180
	for i := 1; i < n; i++ {
		step := 0.012
		if i%2 == 0 {
			step = -0.01
		}
		prices[i] = prices[i-1] * (1 + step)
	}
	return &SourceData{
		Symbol:       "AAPL.FAKE",
		Currency:     "USD",
		Fundamentals: models.Fundamentals{Name: "Apple Inc.", Beta: 1.2},
		Bars:         barsFromPrices(prices...),
	}
}

func mustTicker(t *testing.T, s string) common.Ticker {
	t.Helper()
	tk, err := common.ParseTicker(s)
	require.NoError(t, err)
	return tk
}

func TestFetchBuildsSnapshot(t *testing.T) {
	src := &fakeSource{fetch: func(int) (*SourceData, error) { return syntheticData(300), nil }}
	svc := NewService(src, testMarketConfig(), arbor.NewLogger())

	snap, err := svc.Fetch(context.Background(), mustTicker(t, "AAPL"))
	require.NoError(t, err)

	assert.Equal(t, "AAPL", snap.Ticker)
	assert.Equal(t, "fake", snap.Source)
	assert.Equal(t, 252, snap.Risk.Observations)
	assert.Equal(t, 0.95, snap.Risk.ConfidenceLevel)
	assert.Greater(t, snap.Risk.VaRPercent, 0.0)
	assert.InDelta(t, snap.Risk.VaR*10000, snap.Risk.VaRAmount, 1e-9)
	assert.Equal(t, "USD", snap.Risk.Currency)
	assert.Greater(t, snap.Risk.AnnualizedVolatility, 0.0)
	assert.NotZero(t, snap.Technicals.SMA50)
}

func TestFetchUnknownSymbolIsDataUnavailable(t *testing.T) {
	src := &fakeSource{fetch: func(int) (*SourceData, error) { return nil, ErrSymbolNotFound }}
	svc := NewService(src, testMarketConfig(), arbor.NewLogger())

	_, err := svc.Fetch(context.Background(), mustTicker(t, "ZZZZ9"))
	var unavailable *models.DataUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, int32(1), src.calls.Load(), "not-found must not be retried")
}

func TestFetchShortHistoryIsDataUnavailable(t *testing.T) {
	src := &fakeSource{fetch: func(int) (*SourceData, error) { return syntheticData(8), nil }}
	svc := NewService(src, testMarketConfig(), arbor.NewLogger())

	_, err := svc.Fetch(context.Background(), mustTicker(t, "NEWCO"))
	var unavailable *models.DataUnavailableError
	assert.True(t, errors.As(err, &unavailable))
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	src := &fakeSource{fetch: func(call int) (*SourceData, error) {
		if call <= 2 {
			return nil, &TransientError{Err: fmt.Errorf("502 bad gateway")}
		}
		return syntheticData(300), nil
	}}
	svc := NewService(src, testMarketConfig(), arbor.NewLogger())

	_, err := svc.Fetch(context.Background(), mustTicker(t, "AAPL"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestFetchUpstreamUnavailableAfterRetries(t *testing.T) {
	src := &fakeSource{fetch: func(int) (*SourceData, error) {
		return nil, &TransientError{Err: fmt.Errorf("connection refused")}
	}}
	cfg := testMarketConfig()
	cfg.Retry.MaxRetries = 2
	svc := NewService(src, cfg, arbor.NewLogger())

	_, err := svc.Fetch(context.Background(), mustTicker(t, "AAPL"))
	var upstream *models.UpstreamUnavailableError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, 3, upstream.Attempts)
	assert.Equal(t, "fake", upstream.Source)
	assert.Contains(t, upstream.Error(), "connection refused")
}

func TestFetchWindowCoversLookbackTradingDays(t *testing.T) {
	src := &fakeSource{fetch: func(int) (*SourceData, error) { return syntheticData(300), nil }}
	svc := NewService(src, testMarketConfig(), arbor.NewLogger())
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.Fetch(context.Background(), mustTicker(t, "AAPL"))
	require.NoError(t, err)

	weekdays := 0
	for d := src.from; !d.After(now); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			weekdays++
		}
	}
	// 252 returns need 253 bars, plus room for a year of exchange holidays
	assert.GreaterOrEqual(t, weekdays, 253+12)
}

func TestFetchLeverageRaisesRiskRating(t *testing.T) {
	src := &fakeSource{fetch: func(int) (*SourceData, error) {
		data := syntheticData(300)
		data.Fundamentals.Beta = 1.8
		data.Fundamentals.MarketCap = 5000
		data.Financials = &models.Financials{
			FiscalYear: "2024-12-31",
			Income:     models.IncomeStatement{TotalRevenue: 2000, NetIncome: 100},
			Balance:    models.BalanceSheet{TotalAssets: 900, TotalDebt: 500, StockholderEquity: 100},
		}
		return data, nil
	}}
	svc := NewService(src, testMarketConfig(), arbor.NewLogger())

	snap, err := svc.Fetch(context.Background(), mustTicker(t, "AAPL"))
	require.NoError(t, err)

	assert.InDelta(t, 500.0, snap.Fundamentals.DebtToEquity, 1e-9)
	assert.ElementsMatch(t, []string{"High market sensitivity", "High debt levels"}, snap.Risk.RiskFactors)
	assert.Equal(t, "High", snap.Risk.Rating)
	assert.Equal(t, []string{"Consider position sizing carefully", "Implement stop-loss strategies"}, snap.Risk.Recommendations)
	require.NotNil(t, snap.Financials)
	assert.InDelta(t, 50.0, snap.Financials.Ratios.PERatio, 1e-9)
}
