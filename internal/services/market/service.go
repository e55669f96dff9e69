// Package market fetches market data and derives the statistics the analysis
// stages are given: volatility, Value-at-Risk, technical indicators and news.
package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/models"
)

// Service implements interfaces.MarketDataProvider over a Source.
// It is stateless between calls and safe for concurrent use.
type Service struct {
	source  Source
	params  RiskParams
	retry   common.RetryPolicy
	timeout time.Duration
	now     func() time.Time
	logger  arbor.ILogger
}

// NewService creates a market data service.
func NewService(source Source, cfg common.MarketConfig, logger arbor.ILogger) *Service {
	return &Service{
		source: source,
		params: RiskParams{
			LookbackDays:    cfg.LookbackDays,
			ConfidenceLevel: cfg.ConfidenceLevel,
			Method:          cfg.VaRMethod,
			PositionSize:    cfg.PositionSize,
		},
		retry:   common.NewRetryPolicy(cfg.Retry),
		timeout: common.ParseDurationOr(cfg.Timeout, 30*time.Second),
		now:     time.Now,
		logger:  logger,
	}
}

// Fetch returns a snapshot for ticker. Unknown symbols and short histories are
// DataUnavailableError; transport failures surviving the retry policy are
// UpstreamUnavailableError.
func (s *Service) Fetch(ctx context.Context, ticker common.Ticker) (*models.MarketSnapshot, error) {
	start := s.now()
	from := start.AddDate(0, 0, -calendarDays(s.params.LookbackDays))

	var data *SourceData
	attempts, err := s.retry.Do(ctx, isTransient,
		func(attempt int, wait time.Duration, err error) {
			s.logger.Warn().
				Str("ticker", ticker.String()).
				Str("source", s.source.Name()).
				Int("attempt", attempt).
				Dur("wait", wait).
				Err(err).
				Msg("Market data fetch failed, retrying")
		},
		func(attempt int) error {
			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			var fetchErr error
			data, fetchErr = s.source.Fetch(callCtx, ticker, from)
			return fetchErr
		})
	if err != nil {
		var transient *TransientError
		switch {
		case errors.Is(err, ErrSymbolNotFound):
			return nil, &models.DataUnavailableError{Ticker: ticker.String(), Reason: "unknown or delisted symbol " + s.source.Symbol(ticker)}
		case errors.As(err, &transient):
			return nil, &models.UpstreamUnavailableError{Source: s.source.Name(), Attempts: attempts, Err: transient.Err}
		default:
			return nil, &models.UpstreamUnavailableError{Source: s.source.Name(), Attempts: attempts, Err: err}
		}
	}

	attachFinancials(data)

	params := s.params
	params.Currency = data.Currency

	risk, err := ComputeRisk(data.Bars, data.Fundamentals, params)
	if err != nil {
		if errors.Is(err, ErrInsufficientHistory) {
			return nil, &models.DataUnavailableError{Ticker: ticker.String(), Reason: err.Error()}
		}
		return nil, fmt.Errorf("failed to compute risk metrics: %w", err)
	}

	snapshot := &models.MarketSnapshot{
		Ticker:       ticker.String(),
		Symbol:       data.Symbol,
		Source:       s.source.Name(),
		Currency:     data.Currency,
		FetchedAt:    s.now(),
		Prices:       data.Bars,
		Fundamentals: data.Fundamentals,
		Financials:   data.Financials,
		Technicals:   ComputeTechnicals(lookbackWindow(data.Bars, s.params.LookbackDays)),
		Risk:         risk,
		News:         data.News,
	}

	s.logger.Info().
		Str("ticker", snapshot.Ticker).
		Str("source", snapshot.Source).
		Int("bars", len(data.Bars)).
		Float64("volatility", risk.AnnualizedVolatility).
		Float64("var_pct", risk.VaRPercent).
		Dur("elapsed", s.now().Sub(start)).
		Msg("Market snapshot fetched")

	return snapshot, nil
}

// calendarDays converts a trading-day lookback to a calendar window with
// headroom for weekends, exchange holidays and one extra bar for the first return.
func calendarDays(tradingDays int) int {
	return tradingDays*3/2 + 30
}

func lookbackWindow(bars []models.PriceBar, lookback int) []models.PriceBar {
	if lookback > 0 && len(bars) > lookback+1 {
		return bars[len(bars)-lookback-1:]
	}
	return bars
}
