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
	"z-song-ai-api/internal/workflow/resilience"
	apperrors "z-song-ai-api/pkg/errors"
	"z-song-ai-api/pkg/logger"
	"z-song-ai-api/pkg/metrics"
)

const (
	criticNotePrefix   = "[critic] refined after review: "
	maxCriticNoteRunes = 400
)

// ReviewOutcome 审校结果。Recovered 非空表示审校失败，Artifact 为原稿。
type ReviewOutcome struct {
	Artifact      *entity.SongArtifact        `json:"-"`
	Refined       bool                        `json:"refined"`
	Issues        []string                    `json:"issues,omitempty"`
	ChangedFields []string                    `json:"changed_fields,omitempty"`
	Recovered     *apperrors.RecoverableError `json:"-"`
}

// Degraded 审校是否被跳过
func (o ReviewOutcome) Degraded() bool {
	return o.Recovered != nil
}

// CriticLoop 单轮审校：先批评，不通过则修订一次。整个过程受熔断保护，
// 任何失败都退回原稿，不向上传播。
type CriticLoop struct {
	factory workflowport.ChatModelFactory
	role    wfmodel.Role
	breaker *resilience.Breaker
}

func NewCriticLoop(factory workflowport.ChatModelFactory, role wfmodel.Role, breaker *resilience.Breaker) *CriticLoop {
	return &CriticLoop{factory: factory, role: role, breaker: breaker}
}

// Review 审校草稿。通过时返回同一指针。
func (c *CriticLoop) Review(ctx context.Context, draft *entity.SongArtifact) ReviewOutcome {
	if draft == nil {
		draft = &entity.SongArtifact{}
	}
	if c == nil || c.factory == nil {
		return degrade(ctx, draft, fmt.Errorf("critic not configured"))
	}

	var out ReviewOutcome
	run := func(ctx context.Context) error {
		crit, err := c.critique(ctx, draft)
		if err != nil {
			return err
		}
		if crit.Pass {
			out = ReviewOutcome{Artifact: draft}
			return nil
		}

		issues := crit.Issues
		if len(issues) == 0 {
			issues = []string{"checklist violation reported without details"}
		}
		patch, err := c.refine(ctx, draft, issues)
		if err != nil {
			return err
		}
		merged, changed := wfnode.MergeArtifact(draft, patch)
		merged.Rationale = appendCriticNote(merged.Rationale, issues)
		out = ReviewOutcome{Artifact: merged, Refined: true, Issues: issues, ChangedFields: changed}
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return degrade(ctx, draft, err)
	}

	if out.Refined {
		metrics.CritiqueOutcomeTotal.WithLabelValues("refined").Inc()
		logger.Info(ctx, "draft refined by critic",
			"issues", len(out.Issues),
			"changed_fields", strings.Join(out.ChangedFields, ","),
		)
	} else {
		metrics.CritiqueOutcomeTotal.WithLabelValues("pass").Inc()
	}
	return out
}

func degrade(ctx context.Context, draft *entity.SongArtifact, err error) ReviewOutcome {
	metrics.CritiqueOutcomeTotal.WithLabelValues("degraded").Inc()
	logger.Warn(ctx, "critic loop degraded, returning unreviewed draft", "error", err.Error())
	return ReviewOutcome{Artifact: draft, Recovered: apperrors.Recover("critic.review", err)}
}

func (c *CriticLoop) critique(ctx context.Context, draft *entity.SongArtifact) (*wfmodel.Critique, error) {
	ctx = llmctx.WithWorkflowProvider(ctx, "song_critique", c.role.Provider)
	ctx, cancel := withTimeout(ctx, c.role.Timeout)
	defer cancel()

	chatModel, err := c.factory.Get(ctx, c.role.Provider)
	if err != nil {
		return nil, err
	}
	msgs, err := defaultPromptRegistry.Format(ctx, workflowprompt.PromptCritiqueV1, draftVars(draft))
	if err != nil {
		return nil, err
	}
	outMsg, err := generateStructured(ctx, chatModel, msgs, callSpec{
		Model:      c.role.Model,
		SchemaName: "critique",
		Schema:     critiqueJSONSchema(),
	})
	if err != nil {
		return nil, wfnode.WrapLLMError(err)
	}
	resp, err := wfnode.AdaptMessage(outMsg)
	if err != nil {
		return nil, err
	}
	return ParseCritique(resp.Text)
}

func (c *CriticLoop) refine(ctx context.Context, draft *entity.SongArtifact, issues []string) (map[string]any, error) {
	ctx = llmctx.WithWorkflowProvider(ctx, "song_refine", c.role.Provider)
	ctx, cancel := withTimeout(ctx, c.role.Timeout)
	defer cancel()

	chatModel, err := c.factory.Get(ctx, c.role.Provider)
	if err != nil {
		return nil, err
	}
	vars := draftVars(draft)
	vars["rationale"] = draft.Rationale
	vars["issues"] = "- " + strings.Join(issues, "\n- ")
	msgs, err := defaultPromptRegistry.Format(ctx, workflowprompt.PromptRefineV1, vars)
	if err != nil {
		return nil, err
	}
	outMsg, err := generateStructured(ctx, chatModel, msgs, callSpec{
		Model:      c.role.Model,
		SchemaName: "refined_fields",
		Schema:     refineJSONSchema(),
	})
	if err != nil {
		return nil, wfnode.WrapLLMError(err)
	}
	resp, err := wfnode.AdaptMessage(outMsg)
	if err != nil {
		return nil, err
	}
	fields := wfnode.RepairJSON(resp.Text)
	if wfnode.CountArtifactFields(fields) == 0 {
		return nil, apperrors.ErrParseFailed.WithDetail("refine")
	}
	return fields, nil
}

// ParseCritique 解析审校输出；缺少 pass 字段视为失败
func ParseCritique(text string) (*wfmodel.Critique, error) {
	fields, err := wfnode.StrictParseJSON(text)
	if err != nil {
		fields = wfnode.RepairJSON(text)
	}
	rawPass, ok := fields["pass"]
	if !ok {
		return nil, apperrors.ErrParseFailed.WithDetail("critique output has no pass field")
	}
	out := &wfmodel.Critique{Pass: boolValue(rawPass)}
	if list, ok := fields["issues"].([]any); ok {
		for _, it := range list {
			if s := stringValue(it); s != "" {
				out.Issues = append(out.Issues, s)
			}
		}
	}
	return out, nil
}

func draftVars(a *entity.SongArtifact) map[string]any {
	return map[string]any{
		"title":             a.Title,
		"tag_summary":       a.TagSummary,
		"style_description": a.StyleDescription,
		"body":              a.Body,
	}
}

// appendCriticNote 在 rationale 末尾追加诊断说明；必要时截断原文以保证说明完整保留
func appendCriticNote(rationale string, issues []string) string {
	note := wfnode.TruncateByRunes(criticNotePrefix+strings.Join(issues, "; "), maxCriticNoteRunes)
	room := entity.MaxRationaleRunes - len([]rune(note)) - 1
	base := strings.TrimSpace(wfnode.TruncateByRunes(rationale, room))
	if base == "" {
		return note
	}
	return base + "\n" + note
}
