package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/eodhd"
	"github.com/ternarybob/stockcrew/internal/models"
)

// EODHDSource fetches fundamentals, daily bars and news from EODHD.
type EODHDSource struct {
	client    *eodhd.Client
	newsLimit int
	converter *md.Converter
	logger    arbor.ILogger
}

// NewEODHDSource creates a source backed by an EODHD client.
func NewEODHDSource(client *eodhd.Client, newsLimit int, logger arbor.ILogger) *EODHDSource {
	return &EODHDSource{
		client:    client,
		newsLimit: newsLimit,
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
}

func (s *EODHDSource) Name() string { return "eodhd" }

func (s *EODHDSource) Symbol(ticker common.Ticker) string { return ticker.EODHDSymbol() }

func (s *EODHDSource) Fetch(ctx context.Context, ticker common.Ticker, from time.Time) (*SourceData, error) {
	symbol := s.Symbol(ticker)

	fund, err := s.client.GetFundamentals(ctx, symbol)
	if err != nil {
		return nil, classifyEODHD(err)
	}
	if fund.General == nil || fund.General.Code == "" {
		return nil, ErrSymbolNotFound
	}
	if fund.General.IsDelisted {
		return nil, fmt.Errorf("%w: %s is delisted", ErrSymbolNotFound, symbol)
	}

	eod, err := s.client.GetEOD(ctx, symbol, eodhd.WithDateRange(from, time.Time{}), eodhd.WithOrder("a"))
	if err != nil {
		return nil, classifyEODHD(err)
	}

	data := &SourceData{
		Symbol:       symbol,
		Currency:     fund.General.CurrencyCode,
		Fundamentals: fundamentalsFromEODHD(fund),
		Financials:   financialsFromEODHD(fund.Financials),
		Bars:         make([]models.PriceBar, 0, len(eod)),
	}
	for _, bar := range eod {
		if bar.Date.IsZero() {
			continue
		}
		data.Bars = append(data.Bars, models.PriceBar{
			Date:     bar.Date,
			Open:     bar.Open,
			High:     bar.High,
			Low:      bar.Low,
			Close:    bar.Close,
			AdjClose: bar.AdjustedClose,
			Volume:   bar.Volume,
		})
	}
	if n := len(data.Bars); n > 0 {
		data.Fundamentals.Price = data.Bars[n-1].Close
	}

	if s.newsLimit > 0 {
		// news is supplementary; a failure leaves the snapshot without headlines
		news, err := s.client.GetNews(ctx, []string{symbol}, eodhd.WithLimit(s.newsLimit))
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("EODHD news unavailable")
		} else {
			data.News = s.headlines(news)
		}
	}

	return data, nil
}

func (s *EODHDSource) headlines(news eodhd.NewsResponse) []models.NewsHeadline {
	out := make([]models.NewsHeadline, 0, len(news))
	for _, item := range news {
		if strings.TrimSpace(item.Title) == "" {
			continue
		}
		h := models.NewsHeadline{
			Date:    item.Date,
			Title:   strings.TrimSpace(item.Title),
			Link:    item.Link,
			Excerpt: newsExcerpt(s.converter, item.Content),
		}
		if item.Sentiment != nil {
			h.Sentiment = item.Sentiment.Polarity
		}
		out = append(out, h)
	}
	return out
}

func fundamentalsFromEODHD(resp *eodhd.FundamentalsResponse) models.Fundamentals {
	var f models.Fundamentals
	if g := resp.General; g != nil {
		f.Name = g.Name
		f.Exchange = g.Exchange
		f.Sector = g.Sector
		f.Industry = g.Industry
		f.Description = g.Description
	}
	if h := resp.Highlights; h != nil {
		f.MarketCap = h.MarketCapitalization
		f.PERatio = h.PERatio
		f.PEGRatio = h.PEGRatio
		f.EPS = h.EarningsShare
		f.DividendYield = h.DividendYield
		f.ProfitMargin = h.ProfitMargin
		f.ReturnOnEquity = h.ReturnOnEquityTTM
	}
	if v := resp.Valuation; v != nil {
		if f.PERatio == 0 {
			f.PERatio = v.TrailingPE
		}
		f.ForwardPE = v.ForwardPE
		f.PriceToBook = v.PriceBookMRQ
	}
	if t := resp.Technicals; t != nil {
		f.Beta = t.Beta
		f.FiftyTwoWeekHigh = t.FiftyTwoWeekHigh
		f.FiftyTwoWeekLow = t.FiftyTwoWeekLow
	}
	return f
}

func classifyEODHD(err error) error {
	switch {
	case eodhd.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrSymbolNotFound, err)
	case eodhd.IsTransient(err):
		return &TransientError{Err: err}
	default:
		return err
	}
}
