package postgres

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"z-song-ai-api/internal/domain/entity"
	"z-song-ai-api/internal/domain/repository"
)

type LLMUsageEventRepository struct {
	client *Client
}

func NewLLMUsageEventRepository(client *Client) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{client: client}
}

var _ repository.LLMUsageEventRepository = (*LLMUsageEventRepository)(nil)

func (r *LLMUsageEventRepository) Create(ctx context.Context, event *entity.LLMUsageEvent) error {
	ctx, span := tracer.Start(ctx, "db.LLMUsageEventRepository.Create")
	defer span.End()

	if err := r.client.db.WithContext(ctx).Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create llm usage event: %w", err)
	}
	return nil
}

// GetTokenUsage 统计客户端在 [start, end) 内消耗的 token 总数
func (r *LLMUsageEventRepository) GetTokenUsage(ctx context.Context, clientID string, startInclusive, endExclusive time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "db.LLMUsageEventRepository.GetTokenUsage")
	span.SetAttributes(attribute.String("client_id", clientID))
	defer span.End()

	var total int64
	if err := r.client.db.WithContext(ctx).Model(&entity.LLMUsageEvent{}).
		Where("client_id = ? AND created_at >= ? AND created_at < ?", clientID, startInclusive, endExclusive).
		Select("COALESCE(SUM(tokens_prompt + tokens_completion), 0)").
		Scan(&total).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get llm usage: %w", err)
	}
	return total, nil
}

// SummarizeByWorkflow 按工作流聚合 [start, end) 内的调用次数与 token
func (r *LLMUsageEventRepository) SummarizeByWorkflow(ctx context.Context, startInclusive, endExclusive time.Time) ([]repository.UsageSummary, error) {
	ctx, span := tracer.Start(ctx, "db.LLMUsageEventRepository.SummarizeByWorkflow")
	defer span.End()

	var out []repository.UsageSummary
	if err := r.client.db.WithContext(ctx).Model(&entity.LLMUsageEvent{}).
		Select("workflow, COUNT(*) AS calls, COALESCE(SUM(tokens_prompt), 0) AS tokens_prompt, COALESCE(SUM(tokens_completion), 0) AS tokens_completion").
		Where("created_at >= ? AND created_at < ?", startInclusive, endExclusive).
		Group("workflow").
		Order("workflow").
		Scan(&out).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to summarize llm usage: %w", err)
	}
	return out, nil
}
