package models

import "time"

// MarketSnapshot is the market data fetched once per run. Read-only after fetch.
type MarketSnapshot struct {
	Ticker       string         `yaml:"ticker"`
	Symbol       string         `yaml:"symbol"`
	Source       string         `yaml:"source"`
	Currency     string         `yaml:"currency,omitempty"`
	FetchedAt    time.Time      `yaml:"fetched_at"`
	Prices       []PriceBar     `yaml:"-"`
	Fundamentals Fundamentals   `yaml:"fundamentals"`
	Financials   *Financials    `yaml:"financials,omitempty"`
	Technicals   Technicals     `yaml:"technicals"`
	Risk         RiskMetrics    `yaml:"risk"`
	News         []NewsHeadline `yaml:"news,omitempty"`
}

// PriceBar is one daily OHLCV bar.
type PriceBar struct {
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   int64
}

// Price returns the adjusted close when present, else the close.
func (b PriceBar) Price() float64 {
	if b.AdjClose > 0 {
		return b.AdjClose
	}
	return b.Close
}

// Fundamentals holds company profile and valuation figures. Zero means unknown.
type Fundamentals struct {
	Name             string  `yaml:"name,omitempty"`
	Exchange         string  `yaml:"exchange,omitempty"`
	Sector           string  `yaml:"sector,omitempty"`
	Industry         string  `yaml:"industry,omitempty"`
	Description      string  `yaml:"description,omitempty"`
	Price            float64 `yaml:"price,omitempty"`
	MarketCap        float64 `yaml:"market_cap,omitempty"`
	PERatio          float64 `yaml:"pe_ratio,omitempty"`
	ForwardPE        float64 `yaml:"forward_pe,omitempty"`
	PEGRatio         float64 `yaml:"peg_ratio,omitempty"`
	PriceToBook      float64 `yaml:"price_to_book,omitempty"`
	EPS              float64 `yaml:"eps,omitempty"`
	DividendYield    float64 `yaml:"dividend_yield,omitempty"`
	ProfitMargin     float64 `yaml:"profit_margin,omitempty"`
	ReturnOnEquity   float64 `yaml:"return_on_equity,omitempty"`
	DebtToEquity     float64 `yaml:"debt_to_equity,omitempty"`
	Beta             float64 `yaml:"beta,omitempty"`
	FiftyTwoWeekHigh float64 `yaml:"fifty_two_week_high,omitempty"`
	FiftyTwoWeekLow  float64 `yaml:"fifty_two_week_low,omitempty"`
}

// Financials holds the latest fiscal year's statement figures and the ratios
// derived from them. Amounts are in the reporting currency.
type Financials struct {
	FiscalYear string            `yaml:"fiscal_year"`
	Currency   string            `yaml:"currency,omitempty"`
	Income     IncomeStatement   `yaml:"income_statement"`
	Balance    BalanceSheet      `yaml:"balance_sheet"`
	CashFlow   CashFlowStatement `yaml:"cash_flow"`
	Ratios     FinancialRatios   `yaml:"ratios"`
}

type IncomeStatement struct {
	TotalRevenue    float64 `yaml:"total_revenue"`
	GrossProfit     float64 `yaml:"gross_profit"`
	OperatingIncome float64 `yaml:"operating_income"`
	NetIncome       float64 `yaml:"net_income"`
	EBITDA          float64 `yaml:"ebitda,omitempty"`
}

type BalanceSheet struct {
	TotalAssets        float64 `yaml:"total_assets"`
	TotalLiabilities   float64 `yaml:"total_liabilities,omitempty"`
	TotalDebt          float64 `yaml:"total_debt"`
	StockholderEquity  float64 `yaml:"stockholder_equity"`
	CashAndEquivalents float64 `yaml:"cash_and_equivalents"`
	CurrentAssets      float64 `yaml:"current_assets,omitempty"`
	CurrentLiabilities float64 `yaml:"current_liabilities,omitempty"`
	WorkingCapital     float64 `yaml:"working_capital,omitempty"`
}

type CashFlowStatement struct {
	OperatingCashFlow float64 `yaml:"operating_cash_flow"`
	FreeCashFlow      float64 `yaml:"free_cash_flow,omitempty"`
	DividendsPaid     float64 `yaml:"dividends_paid,omitempty"`
}

// FinancialRatios are percentages except the valuation multiples.
// A ratio whose denominator is not positive is left at zero.
type FinancialRatios struct {
	GrossMargin  float64 `yaml:"gross_margin_pct,omitempty"`
	NetMargin    float64 `yaml:"net_margin_pct,omitempty"`
	ROA          float64 `yaml:"return_on_assets_pct,omitempty"`
	ROE          float64 `yaml:"return_on_equity_pct,omitempty"`
	DebtToAssets float64 `yaml:"debt_to_assets_pct,omitempty"`
	DebtToEquity float64 `yaml:"debt_to_equity_pct,omitempty"`
	PERatio      float64 `yaml:"pe_ratio,omitempty"`
	PriceToSales float64 `yaml:"price_to_sales,omitempty"`
	PriceToBook  float64 `yaml:"price_to_book,omitempty"`
}

// Technicals holds simple price indicators over the lookback window.
type Technicals struct {
	LastClose       float64 `yaml:"last_close"`
	SMA20           float64 `yaml:"sma_20,omitempty"`
	SMA50           float64 `yaml:"sma_50,omitempty"`
	Momentum10      float64 `yaml:"momentum_10d_pct,omitempty"`
	Support         float64 `yaml:"support_20d,omitempty"`
	Resistance      float64 `yaml:"resistance_20d,omitempty"`
	PeriodChangePct float64 `yaml:"period_change_pct"`
	Trend           string  `yaml:"trend,omitempty"`
	Regime          Regime  `yaml:"regime,omitempty"`
}

// RegimeType categorizes price action regimes
type RegimeType string

const (
	RegimeBreakout     RegimeType = "breakout"
	RegimeTrendUp      RegimeType = "trend_up"
	RegimeTrendDown    RegimeType = "trend_down"
	RegimeAccumulation RegimeType = "accumulation"
	RegimeDistribution RegimeType = "distribution"
	RegimeRange        RegimeType = "range"
	RegimeDecay        RegimeType = "decay"
	RegimeUndefined    RegimeType = "undefined"
)

// Regime classifies recent price action from EMA structure, distance to the
// period high/low and volume behaviour.
type Regime struct {
	Classification RegimeType `yaml:"classification,omitempty"`
	Confidence     float64    `yaml:"confidence,omitempty"`
	TrendBias      string     `yaml:"trend_bias,omitempty"` // bullish, bearish, neutral
	EMAStack       string     `yaml:"ema_stack,omitempty"`  // bullish, bearish, mixed
	EMA20          float64    `yaml:"ema_20,omitempty"`
	EMA50          float64    `yaml:"ema_50,omitempty"`
	EMA200         float64    `yaml:"ema_200,omitempty"`
	VolumeZScore   float64    `yaml:"volume_zscore_20d,omitempty"`
}

// RiskMetrics holds volatility and Value-at-Risk over the lookback window.
// VaR is a positive loss fraction of the position.
type RiskMetrics struct {
	Observations         int      `yaml:"observations"`
	LookbackDays         int      `yaml:"lookback_days"`
	DailyVolatility      float64  `yaml:"daily_volatility"`
	AnnualizedVolatility float64  `yaml:"annualized_volatility"`
	ConfidenceLevel      float64  `yaml:"confidence_level"`
	Method               string   `yaml:"var_method"`
	VaR                  float64  `yaml:"var_fraction"`
	VaRPercent           float64  `yaml:"var_percent"`
	VaRAmount            float64  `yaml:"var_amount"`
	PositionSize         float64  `yaml:"position_size"`
	Currency             string   `yaml:"currency,omitempty"`
	MeanReturn           float64  `yaml:"mean_daily_return"`
	WorstReturn          float64  `yaml:"worst_daily_return"`
	BestReturn           float64  `yaml:"best_daily_return"`
	Rating               string   `yaml:"rating"`
	RiskFactors          []string `yaml:"risk_factors,omitempty"`
	Recommendations      []string `yaml:"recommendations,omitempty"`
}

// NewsHeadline is a recent headline with optional sentiment polarity in [-1, 1].
type NewsHeadline struct {
	Date      time.Time `yaml:"date"`
	Title     string    `yaml:"title"`
	Link      string    `yaml:"link,omitempty"`
	Sentiment float64   `yaml:"sentiment"`
	Excerpt   string    `yaml:"excerpt,omitempty"`
}
