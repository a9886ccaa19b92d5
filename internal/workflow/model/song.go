package model

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"

	"z-song-ai-api/internal/domain/entity"
)

type IntentInput struct {
	Prompt string
}

type ResearchInput struct {
	Prompt string
	Tone   entity.Tone
}

// PartialFunc 接收流式过程中修复出的部分简报；调用严格串行
type PartialFunc func(ctx context.Context, partial *entity.SongArtifact)

// GenerationInput 级联生成输入
type GenerationInput struct {
	Messages []*schema.Message

	// SchemaName/Schema 输出结构描述，随 response_format 下发
	SchemaName string
	Schema     map[string]any

	Complexity entity.Complexity
	OnPartial  PartialFunc
}

// CascadeAttempt 单个 tier 的尝试记录，仅用于决定是否继续下探与日志
type CascadeAttempt struct {
	Tier     string
	Streamed bool
	Err      error
	Duration time.Duration
}

type GenerationOutput struct {
	Artifact *entity.SongArtifact
	Tier     string
	Attempts []CascadeAttempt
	Meta     LLMUsageMeta
}

// Critique 审校结论
type Critique struct {
	Pass   bool     `json:"pass"`
	Issues []string `json:"issues"`
}
