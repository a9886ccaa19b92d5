package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	wfmodel "z-song-ai-api/internal/workflow/model"
	wfnode "z-song-ai-api/internal/workflow/node"
	workflowprompt "z-song-ai-api/internal/workflow/prompt"
	"z-song-ai-api/pkg/logger"
)

var defaultPromptRegistry = workflowprompt.NewRegistry()

// callSpec 单次结构化调用的参数
type callSpec struct {
	Model      string
	SchemaName string
	Schema     map[string]any
	// Extra 额外请求字段（推理预算、审核配置），与 response_format 合并后下发
	Extra map[string]any
}

func (s callSpec) options(enableSchema bool) []model.Option {
	opts := make([]model.Option, 0, 2)
	if m := strings.TrimSpace(s.Model); m != "" {
		opts = append(opts, model.WithModel(m))
	}

	extra := make(map[string]any, len(s.Extra)+1)
	for k, v := range s.Extra {
		extra[k] = v
	}
	if enableSchema && s.Schema != nil {
		extra["response_format"] = responseFormat(s.SchemaName, s.Schema)
	}
	if len(extra) > 0 {
		opts = append(opts, openaiopts.WithExtraFields(extra))
	}
	return opts
}

func responseFormat(name string, js map[string]any) map[string]any {
	return map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   name,
			"strict": false,
			"schema": js,
		},
	}
}

// generateStructured 带 json_schema 调用；提供商不支持 response_format 时退回 prompt-only
func generateStructured(ctx context.Context, cm model.BaseChatModel, msgs []*schema.Message, spec callSpec) (*schema.Message, error) {
	outMsg, err := cm.Generate(ctx, msgs, spec.options(true)...)
	if err != nil && spec.Schema != nil && wfnode.IsResponseFormatUnsupportedError(err) {
		logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
			"schema", spec.SchemaName,
			"model", spec.Model,
			"error", err.Error(),
		)
		outMsg, err = cm.Generate(ctx, msgs, spec.options(false)...)
	}
	if err != nil {
		return nil, err
	}
	if outMsg == nil {
		return nil, fmt.Errorf("empty llm response")
	}
	return outMsg, nil
}

// streamStructured 同 generateStructured 的流式版本；调用方负责 Close()
func streamStructured(ctx context.Context, cm model.BaseChatModel, msgs []*schema.Message, spec callSpec) (*schema.StreamReader[*schema.Message], error) {
	reader, err := cm.Stream(ctx, msgs, spec.options(true)...)
	if err != nil && spec.Schema != nil && wfnode.IsResponseFormatUnsupportedError(err) {
		if reader != nil {
			reader.Close()
		}
		logger.Warn(ctx, "llm json_schema not supported for stream, fallback to prompt-only",
			"schema", spec.SchemaName,
			"model", spec.Model,
			"error", err.Error(),
		)
		return cm.Stream(ctx, msgs, spec.options(false)...)
	}
	return reader, err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func usageMeta(provider, modelName string, resp *wfnode.BackendResponse) wfmodel.LLMUsageMeta {
	meta := wfmodel.LLMUsageMeta{
		Provider:    provider,
		Model:       modelName,
		GeneratedAt: time.Now().UTC(),
	}
	if resp != nil && resp.Usage != nil {
		meta.PromptTokens = resp.Usage.PromptTokens
		meta.CompletionTokens = resp.Usage.CompletionTokens
	}
	return meta
}
