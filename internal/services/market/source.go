package market

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/models"
)

// ErrSymbolNotFound is returned by a Source for unknown or delisted symbols.
var ErrSymbolNotFound = errors.New("symbol not found")

// SourceData is the raw data a Source returns for one symbol.
type SourceData struct {
	Symbol       string
	Currency     string
	Fundamentals models.Fundamentals
	Financials   *models.Financials // nil when the source has no statements
	Bars         []models.PriceBar  // ascending by date
	News         []models.NewsHeadline
}

// Source fetches raw market data from one upstream service.
type Source interface {
	Name() string
	Symbol(ticker common.Ticker) string
	Fetch(ctx context.Context, ticker common.Ticker, from time.Time) (*SourceData, error)
}

// TransientError marks a source failure as retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

func isTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
