package dto

import (
	"z-song-ai-api/internal/domain/entity"
)

// GenerateSongRequest 生成请求
type GenerateSongRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	// Research 为空时由意图分类决定是否检索
	Research *bool `json:"research,omitempty"`
}

// ScoreSongRequest 评分请求
type ScoreSongRequest struct {
	Artifact *entity.SongArtifact `json:"artifact" binding:"required"`
}

// IntentEvent SSE intent 事件
type IntentEvent struct {
	Intent   entity.IntentProfile   `json:"intent"`
	Research entity.ResearchContext `json:"research"`
}

// ArtifactEvent SSE artifact 事件
type ArtifactEvent struct {
	GenerationID string               `json:"generation_id"`
	Tier         string               `json:"tier"`
	Refined      bool                 `json:"refined"`
	Artifact     *entity.SongArtifact `json:"artifact"`
}

// StreamError SSE error 事件
type StreamError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}
