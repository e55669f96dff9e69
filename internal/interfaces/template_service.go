package interfaces

import (
	"github.com/ternarybob/stockcrew/internal/models"
)

// PromptRenderer builds the prompt for a stage from the ticker, the outputs of
// every earlier stage and the market snapshot. Rendering is pure.
type PromptRenderer interface {
	Render(stage models.StageKind, ticker string, actx *models.AnalysisContext, snapshot *models.MarketSnapshot) (string, error)
}
