package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnel-bot/internal/model"
)

func TestArmReplacesPendingNudge(t *testing.T) {
	repo := NewNudgeRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, repo.Arm(ctx, 42, model.StageFollowup1, now.Add(5*time.Minute)))
	require.NoError(t, repo.Arm(ctx, 42, model.StageFollowup2, now.Add(30*time.Minute)))

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.StageFollowup2, pending[0].Stage)
	assert.WithinDuration(t, now.Add(30*time.Minute), pending[0].FireAt, time.Second)
}

func TestClearRemovesNudge(t *testing.T) {
	repo := NewNudgeRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Arm(ctx, 42, model.StageFollowup1, time.Now()))
	require.NoError(t, repo.Clear(ctx, 42))

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestClearMissingNudgeIsNoOp(t *testing.T) {
	repo := NewNudgeRepository(newTestDB(t))
	assert.NoError(t, repo.Clear(context.Background(), 999))
}

func TestListPendingOrdersBySoonest(t *testing.T) {
	repo := NewNudgeRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Arm(ctx, 1, model.StageFollowup3, now.Add(12*time.Hour)))
	require.NoError(t, repo.Arm(ctx, 2, model.StageFollowup1, now.Add(5*time.Minute)))
	require.NoError(t, repo.Arm(ctx, 3, model.StageFollowup2, now.Add(30*time.Minute)))

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, int64(2), pending[0].ChatID)
	assert.Equal(t, int64(3), pending[1].ChatID)
	assert.Equal(t, int64(1), pending[2].ChatID)
}
