package chain

import (
	"context"
	"fmt"
	"strings"

	"z-song-ai-api/internal/domain/entity"
	llmctx "z-song-ai-api/internal/domain/service"
	wfmodel "z-song-ai-api/internal/workflow/model"
	wfnode "z-song-ai-api/internal/workflow/node"
	workflowport "z-song-ai-api/internal/workflow/port"
	workflowprompt "z-song-ai-api/internal/workflow/prompt"
)

// 检索摘要长度上限（rune）
const maxResearchTextRunes = 4000

// ResearchCollector 可选的检索增强调用，产出摘要与引用来源
type ResearchCollector struct {
	factory workflowport.ChatModelFactory
	role    wfmodel.Role
}

func NewResearchCollector(factory workflowport.ChatModelFactory, role wfmodel.Role) *ResearchCollector {
	return &ResearchCollector{factory: factory, role: role}
}

func (c *ResearchCollector) Collect(ctx context.Context, in *wfmodel.ResearchInput) (entity.ResearchContext, error) {
	if c == nil || c.factory == nil {
		return entity.ResearchContext{}, fmt.Errorf("llm factory not configured")
	}
	if in == nil || strings.TrimSpace(in.Prompt) == "" {
		return entity.ResearchContext{}, fmt.Errorf("prompt is required")
	}

	ctx = llmctx.WithWorkflowProvider(ctx, "song_research", c.role.Provider)
	ctx, cancel := withTimeout(ctx, c.role.Timeout)
	defer cancel()

	chatModel, err := c.factory.Get(ctx, c.role.Provider)
	if err != nil {
		return entity.ResearchContext{}, err
	}
	msgs, err := defaultPromptRegistry.Format(ctx, workflowprompt.PromptResearchV1, map[string]any{
		"prompt": strings.TrimSpace(in.Prompt),
	})
	if err != nil {
		return entity.ResearchContext{}, err
	}

	outMsg, err := generateStructured(ctx, chatModel, msgs, callSpec{
		Model:      c.role.Model,
		SchemaName: "research_context",
		Schema:     researchJSONSchema(),
	})
	if err != nil {
		return entity.ResearchContext{}, wfnode.WrapLLMError(err)
	}
	resp, err := wfnode.AdaptMessage(outMsg)
	if err != nil {
		return entity.ResearchContext{}, err
	}
	return ParseResearchContext(resp), nil
}

// ParseResearchContext 合并正文 JSON 与消息元数据中的来源；正文不是 JSON 时整体作为摘要
func ParseResearchContext(resp *wfnode.BackendResponse) entity.ResearchContext {
	if resp == nil {
		return entity.ResearchContext{}
	}
	out := entity.ResearchContext{}
	sources := append([]entity.ResearchSource(nil), resp.Sources...)

	fields, err := wfnode.StrictParseJSON(resp.Text)
	if err == nil {
		out.Text = stringValue(fields["text"])
		sources = append(sources, wfnode.ParseSources(fields["sources"])...)
	} else {
		out.Text = strings.TrimSpace(resp.Text)
	}
	out.Text = wfnode.TruncateByRunes(out.Text, maxResearchTextRunes)
	out.Sources = wfnode.DedupSources(sources)
	return out
}
