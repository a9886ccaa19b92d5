package validation

import (
	"context"

	"z-song-ai-api/internal/domain/entity"
	"z-song-ai-api/pkg/logger"
	"z-song-ai-api/pkg/metrics"
)

// Service 评分应用服务：在纯函数评分之外记录指标与日志
type Service struct {
	scorer *Scorer
}

func NewService(scorer *Scorer) *Service {
	if scorer == nil {
		scorer = Default()
	}
	return &Service{scorer: scorer}
}

// Validate 对任意简报评分
func (s *Service) Validate(ctx context.Context, a *entity.SongArtifact) entity.ValidationResult {
	res := s.scorer.Score(a)

	metrics.ValidationTotal.WithLabelValues(string(res.Status)).Inc()
	metrics.ValidationScore.Observe(float64(res.Score))
	logger.Debug(ctx, "artifact scored",
		"score", res.Score,
		"status", string(res.Status),
		"issues", len(res.Issues),
		"conflicts", len(res.Conflicts),
	)
	return res
}
