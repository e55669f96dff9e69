package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/models"
)

func newTestStorage(t *testing.T) *RunStorage {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.StorageConfig{Enabled: true, Path: t.TempDir()})
	require.NoError(t, err)

	storage := NewRunStorage(db, logger)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func TestRunStorage_SaveAndGet(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	run := &models.RunRecord{
		ID:        "run-1",
		Ticker:    "AAPL",
		Status:    models.RunStatusCompleted,
		Provider:  "ollama",
		Model:     "deepseek-r1:8b",
		StartedAt: time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC),
		Stages: []models.StageSummary{
			{Stage: "market_research", Attempts: 1, OutputChars: 1200},
		},
		VaRPercent: 0.031,
	}
	require.NoError(t, storage.SaveRun(ctx, run))

	loaded, err := storage.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", loaded.Ticker)
	assert.Equal(t, models.RunStatusCompleted, loaded.Status)
	require.Len(t, loaded.Stages, 1)
	assert.Equal(t, 1200, loaded.Stages[0].OutputChars)
	assert.True(t, run.StartedAt.Equal(loaded.StartedAt))

	// Upsert replaces
	run.Status = models.RunStatusIncomplete
	require.NoError(t, storage.SaveRun(ctx, run))
	loaded, err = storage.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusIncomplete, loaded.Status)
}

func TestRunStorage_GetMissing(t *testing.T) {
	storage := newTestStorage(t)

	_, err := storage.GetRun(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestRunStorage_SaveRequiresID(t *testing.T) {
	storage := newTestStorage(t)
	assert.Error(t, storage.SaveRun(context.Background(), &models.RunRecord{Ticker: "AAPL"}))
}

func TestRunStorage_ListRuns(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)

	fixtures := []struct {
		id     string
		ticker string
		offset time.Duration
	}{
		{"a", "AAPL", 0},
		{"b", "MSFT", time.Hour},
		{"c", "AAPL", 2 * time.Hour},
		{"d", "AAPL", 3 * time.Hour},
	}
	for _, f := range fixtures {
		require.NoError(t, storage.SaveRun(ctx, &models.RunRecord{
			ID:        f.id,
			Ticker:    f.ticker,
			Status:    models.RunStatusCompleted,
			StartedAt: base.Add(f.offset),
		}))
	}

	all, err := storage.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "d", all[0].ID)
	assert.Equal(t, "a", all[3].ID)

	apple, err := storage.ListRuns(ctx, "aapl", 2)
	require.NoError(t, err)
	require.Len(t, apple, 2)
	assert.Equal(t, "d", apple[0].ID)
	assert.Equal(t, "c", apple[1].ID)
}

func TestRunStorage_InferenceAudit(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		require.NoError(t, storage.LogInference(ctx, &models.InferenceAudit{
			ID:        "audit-" + string(rune('0'+i)),
			RunID:     "run-1",
			Provider:  "ollama",
			Model:     "deepseek-r1:8b",
			Attempt:   i,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, storage.LogInference(ctx, &models.InferenceAudit{
		ID:        "other",
		RunID:     "run-2",
		Timestamp: base,
	}))

	entries, err := storage.ListInferences(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		assert.Equal(t, i+1, entry.Attempt)
	}

	assert.Error(t, storage.LogInference(ctx, &models.InferenceAudit{RunID: "run-1"}))
}
