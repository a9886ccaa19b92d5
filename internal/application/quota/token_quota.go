// Package quota 提供调用方配额相关能力
package quota

import (
	"context"
	"fmt"
	"time"

	"z-song-ai-api/internal/domain/repository"
)

// TokenQuotaExceededError 表示调用方 Token 日配额已耗尽
type TokenQuotaExceededError struct {
	ClientID string
	Max      int64
	Used     int64
}

func (e TokenQuotaExceededError) Error() string {
	return fmt.Sprintf("token quota exceeded: client=%s used=%d max=%d", e.ClientID, e.Used, e.Max)
}

// TokenQuotaChecker 用于检查调用方 Token 日配额
type TokenQuotaChecker struct {
	llmRepo         repository.LLMUsageEventRepository
	maxTokensPerDay int64
	now             func() time.Time
}

func NewTokenQuotaChecker(llmRepo repository.LLMUsageEventRepository, maxTokensPerDay int64) *TokenQuotaChecker {
	return &TokenQuotaChecker{
		llmRepo:         llmRepo,
		maxTokensPerDay: maxTokensPerDay,
		now:             time.Now,
	}
}

// CheckDailyTokens 检查调用方是否还有当日 Token 配额。
// 返回：used/max（便于客户端展示），以及是否超过配额的 error。
func (c *TokenQuotaChecker) CheckDailyTokens(ctx context.Context, clientID string) (used int64, max int64, err error) {
	if c == nil || c.llmRepo == nil || c.maxTokensPerDay <= 0 {
		return 0, 0, nil
	}

	now := c.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	used, err = c.llmRepo.GetTokenUsage(ctx, clientID, start, end)
	if err != nil {
		return 0, c.maxTokensPerDay, err
	}
	if used >= c.maxTokensPerDay {
		return used, c.maxTokensPerDay, TokenQuotaExceededError{
			ClientID: clientID,
			Max:      c.maxTokensPerDay,
			Used:     used,
		}
	}
	return used, c.maxTokensPerDay, nil
}
