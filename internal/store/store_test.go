package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/stratscope/internal/pipeline"
	"github.com/joelkehle/stratscope/internal/scoring"
)

func sampleRun(session string, version int, state pipeline.State) *pipeline.Run {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return &pipeline.Run{
		SessionID:       session,
		Version:         version,
		State:           state,
		ContentSnapshot: "analyzed content",
		LayerScores: []scoring.LayerScore{
			{LayerID: "l1", Score: 0.7, Confidence: 0.8, Insights: []string{"finding"}, EvidenceCount: 2},
		},
		Seed:       42,
		Iterations: 500,
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

func TestMemoryStoreRoundtrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetRun(ctx, "sess1")
	require.ErrorIs(t, err, pipeline.ErrNotFound)

	require.NoError(t, s.SaveRun(ctx, sampleRun("sess1", 1, pipeline.StateCreated)))

	got, err := s.GetRun(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, pipeline.StateCreated, got.State)
	assert.Len(t, got.LayerScores, 1)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.SaveRun(ctx, sampleRun("sess1", 1, pipeline.StateCreated)))

	got, err := s.GetRun(ctx, "sess1")
	require.NoError(t, err)
	got.State = pipeline.StateFailed

	again, err := s.GetRun(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateCreated, again.State, "mutating a returned run must not affect the store")
}

func TestMemoryStoreUpsertsByVersion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.SaveRun(ctx, sampleRun("sess1", 1, pipeline.StateCreated)))
	require.NoError(t, s.SaveRun(ctx, sampleRun("sess1", 1, pipeline.StateLayersScored)))
	require.NoError(t, s.SaveRun(ctx, sampleRun("sess1", 2, pipeline.StateCreated)))

	latest, err := s.GetRun(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	v1, err := s.GetRunVersion(ctx, "sess1", 1)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateLayersScored, v1.State)

	_, err = s.GetRunVersion(ctx, "sess1", 9)
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestMemoryStoreListSessionsSorted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		require.NoError(t, s.SaveRun(ctx, sampleRun(id, 1, pipeline.StateCreated)))
	}
	ids, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, ids)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(ctx, sampleRun("sess1", 1, pipeline.StateComplete)))
	require.NoError(t, s.SaveRun(ctx, sampleRun("sess2", 1, pipeline.StateFailed)))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetRun(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateComplete, got.State)
	assert.Equal(t, int64(42), got.Seed)
	assert.Equal(t, "analyzed content", got.ContentSnapshot)
	require.Len(t, got.LayerScores, 1)
	assert.Equal(t, "l1", got.LayerScores[0].LayerID)

	ids, err := reopened.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sess1", "sess2"}, ids)
}

func TestSQLiteStoreUpsertKeepsLatestState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(ctx, sampleRun("sess1", 1, pipeline.StateCreated)))
	require.NoError(t, s.SaveRun(ctx, sampleRun("sess1", 1, pipeline.StateLayersScored)))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetRun(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateLayersScored, got.State)
	assert.Equal(t, 1, got.Version)
}
