package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrRunNotFound is returned by GetRun for an unknown ID.
var ErrRunNotFound = errors.New("run not found")

// RunStorage implements interfaces.RunStorage and interfaces.AuditLogger on Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) *RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRun inserts or replaces a run record.
func (s *RunStorage) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}

	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun loads a run by ID.
func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	var run models.RunRecord
	if err := s.db.Store().Get(id, &run); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns runs newest first. An empty ticker lists every run; limit <= 0 means no limit.
func (s *RunStorage) ListRuns(ctx context.Context, ticker string, limit int) ([]*models.RunRecord, error) {
	query := badgerhold.Where("ID").Ne("")
	if ticker != "" {
		query = badgerhold.Where("Ticker").Eq(strings.ToUpper(ticker))
	}
	query = query.SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.RunRecord
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := make([]*models.RunRecord, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

// LogInference stores one inference audit entry.
func (s *RunStorage) LogInference(ctx context.Context, entry *models.InferenceAudit) error {
	if entry.ID == "" {
		return fmt.Errorf("audit entry ID is required")
	}

	s.logger.Trace().
		Str("run_id", entry.RunID).
		Str("model", entry.Model).
		Int("attempt", entry.Attempt).
		Int64("duration_ms", entry.DurationMs).
		Msg("Recording inference")

	if err := s.db.Store().Insert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to save inference audit: %w", err)
	}
	return nil
}

// ListInferences returns the audit entries of a run in call order.
func (s *RunStorage) ListInferences(ctx context.Context, runID string) ([]*models.InferenceAudit, error) {
	var entries []models.InferenceAudit
	query := badgerhold.Where("RunID").Eq(runID).SortBy("Timestamp")
	if err := s.db.Store().Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to list inferences: %w", err)
	}

	result := make([]*models.InferenceAudit, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}

// Close closes the underlying database.
func (s *RunStorage) Close() error {
	return s.db.Close()
}
