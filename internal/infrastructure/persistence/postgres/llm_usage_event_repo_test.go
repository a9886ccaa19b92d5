package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"z-song-ai-api/internal/domain/entity"
	"z-song-ai-api/internal/domain/repository"
)

func newTestRepo(t *testing.T) *LLMUsageEventRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// :memory: 每个连接独立，固定单连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&entity.LLMUsageEvent{}))
	return NewLLMUsageEventRepository(NewClientFromDB(db))
}

func TestLLMUsageEventRepository_TokenUsageWindow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	events := []*entity.LLMUsageEvent{
		{ClientID: "c1", Workflow: "song", Provider: "p", Model: "m", TokensPrompt: 100, TokensCompletion: 50, CreatedAt: day.Add(2 * time.Hour)},
		{ClientID: "c1", Workflow: "intent", Provider: "p", Model: "m", TokensPrompt: 10, TokensCompletion: 5, CreatedAt: day.Add(20 * time.Hour)},
		{ClientID: "c1", Workflow: "song", Provider: "p", Model: "m", TokensPrompt: 999, CreatedAt: day.Add(-time.Hour)},
		{ClientID: "c2", Workflow: "song", Provider: "p", Model: "m", TokensPrompt: 7, CreatedAt: day.Add(time.Hour)},
	}
	for _, e := range events {
		require.NoError(t, repo.Create(ctx, e))
		assert.NotEmpty(t, e.ID)
	}

	total, err := repo.GetTokenUsage(ctx, "c1", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(165), total)

	none, err := repo.GetTokenUsage(ctx, "unknown", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestLLMUsageEventRepository_SummarizeByWorkflow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for _, e := range []*entity.LLMUsageEvent{
		{ClientID: "c1", Workflow: "song", Provider: "p", Model: "m", TokensPrompt: 100, TokensCompletion: 40, CreatedAt: at},
		{ClientID: "c2", Workflow: "song", Provider: "p", Model: "m", TokensPrompt: 50, TokensCompletion: 10, CreatedAt: at},
		{ClientID: "c1", Workflow: "critic", Provider: "p", Model: "m", TokensPrompt: 30, TokensCompletion: 3, CreatedAt: at},
	} {
		require.NoError(t, repo.Create(ctx, e))
	}

	got, err := repo.SummarizeByWorkflow(ctx, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []repository.UsageSummary{
		{Workflow: "critic", Calls: 1, TokensPrompt: 30, TokensCompletion: 3},
		{Workflow: "song", Calls: 2, TokensPrompt: 150, TokensCompletion: 50},
	}, got)
}
