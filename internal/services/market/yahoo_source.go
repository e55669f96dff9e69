package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/models"
)

// YahooSource fetches quote data and daily bars from Yahoo Finance.
// Yahoo carries no news feed here; headlines come from EODHD only.
type YahooSource struct {
	getEquity     func(symbol string) (*finance.Equity, error)
	getBars       func(params *chart.Params) ([]models.PriceBar, error)
	getFinancials func(ctx context.Context, symbol string) (*models.Financials, error)
	logger        arbor.ILogger
}

// NewYahooSource creates a source backed by finance-go, with annual
// statements from the quoteSummary endpoint.
func NewYahooSource(logger arbor.ILogger) *YahooSource {
	return &YahooSource{
		getEquity:     equity.Get,
		getBars:       chartBars,
		getFinancials: newQuoteSummaryClient().Fetch,
		logger:        logger,
	}
}

func (s *YahooSource) Name() string { return "yahoo" }

func (s *YahooSource) Symbol(ticker common.Ticker) string { return ticker.YahooSymbol() }

func (s *YahooSource) Fetch(ctx context.Context, ticker common.Ticker, from time.Time) (*SourceData, error) {
	symbol := s.Symbol(ticker)

	// finance-go has no context support; run calls aside so cancellation is honoured
	eq, err := callWithContext(ctx, func() (*finance.Equity, error) { return s.getEquity(symbol) })
	if err != nil {
		return nil, classifyYahoo(err)
	}
	if eq == nil || eq.Symbol == "" {
		return nil, ErrSymbolNotFound
	}

	now := time.Now()
	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&from),
		End:      datetime.New(&now),
		Interval: datetime.OneDay,
	}
	bars, err := callWithContext(ctx, func() ([]models.PriceBar, error) { return s.getBars(params) })
	if err != nil {
		return nil, classifyYahoo(err)
	}

	f := models.Fundamentals{
		Name:             eq.LongName,
		Exchange:         eq.FullExchangeName,
		Price:            eq.RegularMarketPrice,
		MarketCap:        float64(eq.MarketCap),
		PERatio:          eq.TrailingPE,
		ForwardPE:        eq.ForwardPE,
		PriceToBook:      eq.PriceToBook,
		EPS:              eq.EpsTrailingTwelveMonths,
		DividendYield:    eq.TrailingAnnualDividendYield,
		FiftyTwoWeekHigh: eq.FiftyTwoWeekHigh,
		FiftyTwoWeekLow:  eq.FiftyTwoWeekLow,
	}
	if f.Name == "" {
		f.Name = eq.ShortName
	}

	data := &SourceData{
		Symbol:       symbol,
		Currency:     eq.CurrencyID,
		Fundamentals: f,
		Bars:         bars,
	}

	// statements are supplementary; a failure leaves the snapshot without them
	if s.getFinancials != nil {
		financials, err := s.getFinancials(ctx, symbol)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Yahoo financial statements unavailable")
			}
		} else {
			data.Financials = financials
		}
	}

	return data, nil
}

// chartBars drains a finance-go chart iterator into price bars.
func chartBars(params *chart.Params) ([]models.PriceBar, error) {
	iter := chart.Get(params)

	var bars []models.PriceBar
	for iter.Next() {
		b := iter.Bar()
		if b == nil {
			continue
		}
		closePrice, _ := b.Close.Float64()
		if closePrice <= 0 {
			continue
		}
		open, _ := b.Open.Float64()
		high, _ := b.High.Float64()
		low, _ := b.Low.Float64()
		adjClose, _ := b.AdjClose.Float64()
		bars = append(bars, models.PriceBar{
			Date:     time.Unix(int64(b.Timestamp), 0).UTC(),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			AdjClose: adjClose,
			Volume:   int64(b.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return bars, nil
}

type callResult[T any] struct {
	value T
	err   error
}

func callWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	done := make(chan callResult[T], 1)
	go func() {
		v, err := fn()
		done <- callResult[T]{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, &TransientError{Err: ctx.Err()}
	case r := <-done:
		return r.value, r.err
	}
}

// classifyYahoo maps finance-go errors. Yahoo reports unknown symbols as
// "Not Found" / "No data found" remote errors; anything else is treated as transport trouble.
func classifyYahoo(err error) error {
	if isTransient(err) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") || strings.Contains(msg, "no data found") || strings.Contains(msg, "delisted") {
		return fmt.Errorf("%w: %v", ErrSymbolNotFound, err)
	}
	return &TransientError{Err: err}
}
