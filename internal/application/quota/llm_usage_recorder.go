package quota

import (
	"context"
	"fmt"
	"strings"

	"z-song-ai-api/internal/domain/entity"
	"z-song-ai-api/internal/domain/repository"
	"z-song-ai-api/internal/domain/service"
	"z-song-ai-api/pkg/logger"
)

// LLMUsageRecorder 把每次 LLM 调用的用量写入流水表
type LLMUsageRecorder struct {
	usageRepo repository.LLMUsageEventRepository
}

func NewLLMUsageRecorder(usageRepo repository.LLMUsageEventRepository) *LLMUsageRecorder {
	return &LLMUsageRecorder{usageRepo: usageRepo}
}

func (r *LLMUsageRecorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if r == nil || r.usageRepo == nil {
		return nil
	}

	clientID := strings.TrimSpace(in.ClientID)
	if clientID == "" {
		clientID = "anonymous"
	}
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return fmt.Errorf("invalid token usage")
	}

	evt := &entity.LLMUsageEvent{
		ClientID:         clientID,
		GenerationID:     strings.TrimSpace(in.GenerationID),
		Provider:         strings.TrimSpace(in.Provider),
		Model:            strings.TrimSpace(in.Model),
		Workflow:         strings.TrimSpace(in.Workflow),
		Tier:             strings.TrimSpace(in.Tier),
		TokensPrompt:     in.PromptTokens,
		TokensCompletion: in.CompletionTokens,
		DurationMs:       in.DurationMs,
	}
	if err := r.usageRepo.Create(ctx, evt); err != nil {
		logger.Warn(ctx, "failed to persist llm usage event", "error", err.Error())
	}
	return nil
}
