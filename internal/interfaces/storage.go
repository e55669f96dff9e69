package interfaces

import (
	"context"

	"github.com/ternarybob/stockcrew/internal/models"
)

// RunStorage persists run history. Writes are best-effort from the caller's
// point of view: a storage failure never fails an analysis run.
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	// ListRuns returns runs newest first, optionally filtered by ticker.
	ListRuns(ctx context.Context, ticker string, limit int) ([]*models.RunRecord, error)
	Close() error
}

// AuditLogger records individual inference calls.
type AuditLogger interface {
	LogInference(ctx context.Context, entry *models.InferenceAudit) error
	ListInferences(ctx context.Context, runID string) ([]*models.InferenceAudit, error)
}
