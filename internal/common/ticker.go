// Package common provides shared utilities across the application.
package common

import (
	"regexp"
	"strings"

	"github.com/ternarybob/stockcrew/internal/models"
)

// Ticker represents a parsed, validated ticker.
// Format: [EXCHANGE:]CODE where CODE may carry a share-class suffix (e.g. "BRK.B").
type Ticker struct {
	// Exchange is the exchange code (e.g., "US", "ASX", "LSE")
	Exchange string
	// Code is the security code (e.g., "AAPL", "BRK.B")
	Code string
	// Raw is the original input
	Raw string
}

var codePattern = regexp.MustCompile(`^[A-Z0-9]{1,10}([.-][A-Z0-9]{1,5})?$`)

type exchangeSuffix struct {
	eodhd string
	yahoo string
}

// exchangeSuffixes maps exchange codes to EODHD and Yahoo symbol suffixes.
var exchangeSuffixes = map[string]exchangeSuffix{
	"US":     {".US", ""},
	"NYSE":   {".US", ""},
	"NASDAQ": {".US", ""},
	"ASX":    {".AU", ".AX"},
	"LSE":    {".LSE", ".L"},
	"TSX":    {".TO", ".TO"},
	"XETRA":  {".XETRA", ".DE"},
}

// DefaultExchange is used for tickers without an exchange prefix.
var DefaultExchange = "US"

// ParseTicker normalizes and validates a ticker string.
// Supports:
//   - "AAPL", " aapl " -> Exchange=DefaultExchange, Code="AAPL"
//   - "BRK.B", "BRK-B" -> share-class suffix kept as written
//   - "ASX:BHP" -> Exchange="ASX", Code="BHP"
func ParseTicker(input string) (Ticker, error) {
	raw := input
	s := strings.ToUpper(strings.TrimSpace(input))
	if s == "" {
		return Ticker{}, &models.InvalidTickerError{Ticker: raw, Reason: "ticker is empty"}
	}

	exchange := DefaultExchange
	if idx := strings.Index(s, ":"); idx >= 0 {
		exchange = s[:idx]
		s = s[idx+1:]
		if _, ok := exchangeSuffixes[exchange]; !ok {
			return Ticker{}, &models.InvalidTickerError{Ticker: raw, Reason: "unsupported exchange " + exchange}
		}
	}

	if !codePattern.MatchString(s) {
		return Ticker{}, &models.InvalidTickerError{Ticker: raw, Reason: "expected letters and digits with an optional share-class suffix"}
	}

	return Ticker{Exchange: exchange, Code: s, Raw: raw}, nil
}

// String returns the display form: the bare code on the default exchange,
// EXCHANGE:CODE otherwise.
func (t Ticker) String() string {
	if t.Exchange == "" || t.Exchange == DefaultExchange {
		return t.Code
	}
	return t.Exchange + ":" + t.Code
}

// EODHDSymbol returns the EODHD API symbol format.
// Example: "ASX:BHP" -> "BHP.AU", "BRK.B" -> "BRK-B.US"
func (t Ticker) EODHDSymbol() string {
	if t.Code == "" {
		return ""
	}
	suffix, ok := exchangeSuffixes[t.Exchange]
	if !ok {
		suffix = exchangeSuffixes["US"]
	}
	return strings.ReplaceAll(t.Code, ".", "-") + suffix.eodhd
}

// YahooSymbol returns the Yahoo Finance symbol format.
// Example: "ASX:BHP" -> "BHP.AX", "BRK.B" -> "BRK-B"
func (t Ticker) YahooSymbol() string {
	if t.Code == "" {
		return ""
	}
	suffix := exchangeSuffixes[t.Exchange]
	return strings.ReplaceAll(t.Code, ".", "-") + suffix.yahoo
}

// FileSafe returns a form suitable for file names ("ASX:BHP" -> "ASX_BHP").
func (t Ticker) FileSafe() string {
	return strings.NewReplacer(":", "_", ".", "-").Replace(t.String())
}

// ParseTickers parses a list of ticker strings, returning the first error.
func ParseTickers(tickers []string) ([]Ticker, error) {
	result := make([]Ticker, 0, len(tickers))
	for _, s := range tickers {
		parsed, err := ParseTicker(s)
		if err != nil {
			return nil, err
		}
		result = append(result, parsed)
	}
	return result, nil
}
