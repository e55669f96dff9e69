package interfaces

import (
	"context"

	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/models"
)

// MarketDataProvider fetches a market snapshot for a ticker.
// Implementations are safe for concurrent use.
type MarketDataProvider interface {
	// Fetch returns prices, fundamentals and derived statistics for ticker.
	//
	// Returns:
	//   - *models.DataUnavailableError for unknown/delisted symbols or insufficient history
	//   - *models.UpstreamUnavailableError when the source is unreachable after retries
	Fetch(ctx context.Context, ticker common.Ticker) (*models.MarketSnapshot, error)
}
