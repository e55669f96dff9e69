package eodhd

import (
	"sort"
	"strconv"
	"time"
)

// EODData represents end-of-day price data.
type EODData struct {
	Date          time.Time `json:"-"`
	DateStr       string    `json:"date"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	AdjustedClose float64   `json:"adjusted_close"`
	Volume        int64     `json:"volume"`
}

// EODResponse is the response from the EOD endpoint.
type EODResponse []EODData

// NewsItem represents a news article.
type NewsItem struct {
	Date      time.Time      `json:"-"`
	DateStr   string         `json:"date"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Link      string         `json:"link"`
	Symbols   []string       `json:"symbols"`
	Tags      []string       `json:"tags"`
	Sentiment *NewsSentiment `json:"sentiment,omitempty"`
}

// NewsSentiment represents sentiment scores for a news item.
type NewsSentiment struct {
	Polarity float64 `json:"polarity"`
	Neg      float64 `json:"neg"`
	Neu      float64 `json:"neu"`
	Pos      float64 `json:"pos"`
}

// NewsResponse is the response from the news endpoint.
type NewsResponse []NewsItem

// FundamentalsResponse is the subset of the fundamentals endpoint used for analysis.
type FundamentalsResponse struct {
	General    *GeneralInfo `json:"General"`
	Highlights *Highlights  `json:"Highlights"`
	Valuation  *Valuation   `json:"Valuation"`
	Technicals *Technicals  `json:"Technicals"`
	Financials *Financials  `json:"Financials"`
}

// GeneralInfo contains general company information.
type GeneralInfo struct {
	Code         string `json:"Code"`
	Type         string `json:"Type"`
	Name         string `json:"Name"`
	Exchange     string `json:"Exchange"`
	CurrencyCode string `json:"CurrencyCode"`
	CountryName  string `json:"CountryName"`
	Sector       string `json:"Sector"`
	Industry     string `json:"Industry"`
	IsDelisted   bool   `json:"IsDelisted"`
	Description  string `json:"Description"`
}

// Highlights contains key financial highlights.
type Highlights struct {
	MarketCapitalization float64 `json:"MarketCapitalization"`
	PERatio              float64 `json:"PERatio"`
	PEGRatio             float64 `json:"PEGRatio"`
	BookValue            float64 `json:"BookValue"`
	DividendYield        float64 `json:"DividendYield"`
	EarningsShare        float64 `json:"EarningsShare"`
	ProfitMargin         float64 `json:"ProfitMargin"`
	ReturnOnEquityTTM    float64 `json:"ReturnOnEquityTTM"`
	RevenueTTM           float64 `json:"RevenueTTM"`
}

// Valuation contains valuation metrics.
type Valuation struct {
	TrailingPE   float64 `json:"TrailingPE"`
	ForwardPE    float64 `json:"ForwardPE"`
	PriceBookMRQ float64 `json:"PriceBookMRQ"`
}

// Technicals contains the technical figures EODHD computes.
type Technicals struct {
	Beta             float64 `json:"Beta"`
	FiftyTwoWeekHigh float64 `json:"52WeekHigh"`
	FiftyTwoWeekLow  float64 `json:"52WeekLow"`
	FiftyDayMA       float64 `json:"50DayMA"`
	TwoHundredDayMA  float64 `json:"200DayMA"`
}

// Financials contains financial statements.
type Financials struct {
	BalanceSheet    *FinancialStatement `json:"Balance_Sheet"`
	CashFlow        *FinancialStatement `json:"Cash_Flow"`
	IncomeStatement *FinancialStatement `json:"Income_Statement"`
}

// FinancialStatement represents a financial statement with quarterly and yearly data.
type FinancialStatement struct {
	Currency  string                            `json:"currency"`
	Quarterly map[string]map[string]interface{} `json:"quarterly"`
	Yearly    map[string]map[string]interface{} `json:"yearly"`
}

// LatestYear returns the most recent yearly period key (a YYYY-MM-DD date)
// and its line items. Returns "" and nil when there is no yearly data.
func (s *FinancialStatement) LatestYear() (string, map[string]interface{}) {
	if s == nil || len(s.Yearly) == 0 {
		return "", nil
	}
	years := make([]string, 0, len(s.Yearly))
	for year := range s.Yearly {
		years = append(years, year)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(years)))
	return years[0], s.Yearly[years[0]]
}

// Number extracts a numeric line item. EODHD returns values as numbers,
// numeric strings or null; anything unparseable reads as 0.
func Number(item map[string]interface{}, key string) float64 {
	if item == nil {
		return 0
	}
	switch v := item[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		if v == "" || v == "None" || v == "null" {
			return 0
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
