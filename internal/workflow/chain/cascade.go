package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-song-ai-api/internal/domain/entity"
	llmctx "z-song-ai-api/internal/domain/service"
	wfmodel "z-song-ai-api/internal/workflow/model"
	wfnode "z-song-ai-api/internal/workflow/node"
	workflowport "z-song-ai-api/internal/workflow/port"
	"z-song-ai-api/internal/workflow/resilience"
	apperrors "z-song-ai-api/pkg/errors"
	"z-song-ai-api/pkg/logger"
	"z-song-ai-api/pkg/metrics"
	"z-song-ai-api/pkg/tracer"
)

// 各复杂度对应的基础推理预算（token），再乘以 tier 倍率
var complexityBudgets = map[entity.Complexity]int{
	entity.ComplexitySimple:   1024,
	entity.ComplexityModerate: 4096,
	entity.ComplexityComplex:  12288,
}

// ReasoningBudget 计算某 tier 的推理预算
func ReasoningBudget(c entity.Complexity, multiplier float64) int {
	base, ok := complexityBudgets[c]
	if !ok {
		base = complexityBudgets[entity.ComplexityModerate]
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	return int(math.Round(float64(base) * multiplier))
}

// Tier 级联中的一个候选后端
type Tier struct {
	Name             string
	Provider         string
	Model            string
	BudgetMultiplier float64
	Stream           bool
	// Thinking 下发推理预算；仅在后端声明支持时开启
	Thinking bool
	// SafetySettings 下发审核配置；仅在后端声明支持时开启
	SafetySettings bool
	Timeout        time.Duration
}

// CascadeOptions 级联依赖
type CascadeOptions struct {
	Tiers []Tier
	// Retry 包裹除最后一个以外的 tier
	Retry *resilience.Policy
	// Breaker 包裹最后一个 tier
	Breaker  *resilience.Breaker
	Repairer wfnode.Repairer
	// PreviewEvery 每累计多少个非空 chunk 做一次预览修复
	PreviewEvery int
	Safety       []wfmodel.SafetySetting
}

// GenerationCascade 按 tier 顺序尝试生成，失败则下探到下一个 tier
type GenerationCascade struct {
	factory      workflowport.ChatModelFactory
	tiers        []Tier
	retry        *resilience.Policy
	breaker      *resilience.Breaker
	repairer     wfnode.Repairer
	previewEvery int
	safety       []wfmodel.SafetySetting
}

func NewGenerationCascade(factory workflowport.ChatModelFactory, opts CascadeOptions) (*GenerationCascade, error) {
	if factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if len(opts.Tiers) == 0 {
		return nil, fmt.Errorf("at least one generation tier is required")
	}
	c := &GenerationCascade{
		factory:      factory,
		tiers:        append([]Tier(nil), opts.Tiers...),
		retry:        opts.Retry,
		breaker:      opts.Breaker,
		repairer:     opts.Repairer,
		previewEvery: opts.PreviewEvery,
		safety:       opts.Safety,
	}
	if c.repairer == nil {
		c.repairer = wfnode.InlineRepairer{}
	}
	if c.previewEvery <= 0 {
		c.previewEvery = 1
	}
	return c, nil
}

// Tiers 返回配置的 tier 名称
func (c *GenerationCascade) Tiers() []string {
	names := make([]string, 0, len(c.tiers))
	for _, t := range c.tiers {
		names = append(names, t.Name)
	}
	return names
}

// Generate 依次尝试各 tier；全部失败时返回 CodeCascadeExhausted 并携带最后一个错误
func (c *GenerationCascade) Generate(ctx context.Context, in *wfmodel.GenerationInput) (*wfmodel.GenerationOutput, error) {
	if c == nil {
		return nil, fmt.Errorf("generation cascade is nil")
	}
	if in == nil || len(in.Messages) == 0 {
		return nil, fmt.Errorf("generation messages are required")
	}

	ctx, span := tracer.Start(ctx, "cascade.generate",
		trace.WithAttributes(attribute.String("complexity", string(in.Complexity))))
	defer span.End()

	attempts := make([]wfmodel.CascadeAttempt, 0, len(c.tiers))
	var lastErr error
	for i, tier := range c.tiers {
		last := i == len(c.tiers)-1
		start := time.Now()
		res, err := c.runTier(ctx, tier, last, in)
		attempts = append(attempts, wfmodel.CascadeAttempt{
			Tier:     tier.Name,
			Streamed: tier.Stream,
			Err:      err,
			Duration: time.Since(start),
		})

		if err == nil {
			metrics.CascadeTierAttempts.WithLabelValues(tier.Name, "success").Inc()
			wfnode.SetBackendUsed(res.artifact, tier.Name)
			span.SetAttributes(attribute.String("tier", tier.Name), attribute.Int("attempts", len(attempts)))
			logger.Info(ctx, "cascade tier succeeded",
				"tier", tier.Name,
				"provider", tier.Provider,
				"attempted_tiers", len(attempts),
			)
			return &wfmodel.GenerationOutput{
				Artifact: res.artifact,
				Tier:     tier.Name,
				Attempts: attempts,
				Meta:     res.meta,
			}, nil
		}

		if resilience.IsBreakerOpen(err) {
			metrics.CascadeTierAttempts.WithLabelValues(tier.Name, "rejected").Inc()
		} else {
			metrics.CascadeTierAttempts.WithLabelValues(tier.Name, "failure").Inc()
		}
		lastErr = err

		// 调用方已放弃，不再下探
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.RecordError(ctxErr)
			return nil, ctxErr
		}
		// 内容审核拒绝与后端无关，换 tier 也不会通过
		if wfnode.ClassifyLLMError(err) == wfnode.LLMErrorContentBlocked {
			span.RecordError(err)
			return nil, err
		}
		logger.Warn(ctx, "generation tier failed",
			"tier", tier.Name,
			"provider", tier.Provider,
			"last_tier", last,
			"error", err.Error(),
		)
	}

	lastTier := c.tiers[len(c.tiers)-1].Name
	err := apperrors.ErrCascadeExhausted.
		WithDetail(fmt.Sprintf("%d tiers attempted, last tier %s", len(attempts), lastTier)).
		WithError(fmt.Errorf("last error from tier %s: %w", lastTier, lastErr))
	span.RecordError(err)
	return nil, err
}

type tierResult struct {
	artifact *entity.SongArtifact
	meta     wfmodel.LLMUsageMeta
}

func (c *GenerationCascade) runTier(ctx context.Context, tier Tier, last bool, in *wfmodel.GenerationInput) (*tierResult, error) {
	call := func(ctx context.Context) (*tierResult, error) {
		return c.attempt(ctx, tier, in)
	}
	if last && c.breaker != nil {
		var res *tierResult
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			res, err = call(ctx)
			return err
		})
		return res, err
	}
	return resilience.Retry(ctx, c.retry, call)
}

func (c *GenerationCascade) attempt(ctx context.Context, tier Tier, in *wfmodel.GenerationInput) (*tierResult, error) {
	ctx = llmctx.WithWorkflowProvider(ctx, "song_generate", tier.Provider)
	ctx = llmctx.WithTier(ctx, tier.Name)
	ctx, cancel := withTimeout(ctx, tier.Timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "cascade.tier", trace.WithAttributes(
		attribute.String("tier", tier.Name),
		attribute.String("provider", tier.Provider),
		attribute.Bool("stream", tier.Stream),
	))
	var err error
	defer func() { tracer.EndWithError(span, err) }()

	chatModel, err := c.factory.Get(ctx, tier.Provider)
	if err != nil {
		return nil, err
	}

	spec := c.callSpec(tier, in)
	var outMsg *schema.Message
	if tier.Stream {
		outMsg, err = c.stream(ctx, chatModel, tier, in, spec)
	} else {
		outMsg, err = generateStructured(ctx, chatModel, in.Messages, spec)
	}
	if err != nil {
		err = wfnode.WrapLLMError(err)
		return nil, err
	}

	resp, err := wfnode.AdaptMessage(outMsg)
	if err != nil {
		return nil, err
	}
	if wfnode.IsBlockedFinishReason(resp.FinishReason) {
		err = apperrors.New(apperrors.CodeContentBlocked, "content blocked by LLM backend").
			WithDetail("finish_reason=" + resp.FinishReason)
		return nil, err
	}
	artifact, err := c.finalize(ctx, tier, resp.Text)
	if err != nil {
		return nil, err
	}
	return &tierResult{artifact: artifact, meta: usageMeta(tier.Provider, tier.Model, resp)}, nil
}

func (c *GenerationCascade) callSpec(tier Tier, in *wfmodel.GenerationInput) callSpec {
	extra := make(map[string]any, 2)
	if tier.Thinking {
		extra["thinking"] = map[string]any{
			"type":          "enabled",
			"budget_tokens": ReasoningBudget(in.Complexity, tier.BudgetMultiplier),
		}
	}
	if tier.SafetySettings && len(c.safety) > 0 {
		extra["safety_settings"] = c.safety
	}
	name := in.SchemaName
	if name == "" {
		name = "song_brief"
	}
	return callSpec{
		Model:      tier.Model,
		SchemaName: name,
		Schema:     in.Schema,
		Extra:      extra,
	}
}

// stream 逐 chunk 累积文本；每 previewEvery 个 chunk 经 Repairer 修复一次并回调部分结果。
// chunk 处理严格串行。
func (c *GenerationCascade) stream(ctx context.Context, cm model.BaseChatModel, tier Tier, in *wfmodel.GenerationInput, spec callSpec) (*schema.Message, error) {
	reader, err := streamStructured(ctx, cm, in.Messages, spec)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var (
		buf    strings.Builder
		chunks []*schema.Message
		n      int
	)
	for {
		chunk, recvErr := reader.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, recvErr
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content == "" {
			continue
		}
		buf.WriteString(chunk.Content)
		n++

		if in.OnPartial == nil || n%c.previewEvery != 0 {
			continue
		}
		resp, err := wfnode.AwaitRepair(ctx, c.repairer.Submit(ctx, wfnode.RepairRequest{
			Operation: wfnode.RepairOpRepair,
			Payload:   buf.String(),
		}))
		if err != nil {
			return nil, err
		}
		if !resp.Success || wfnode.CountArtifactFields(resp.Result) == 0 {
			continue
		}
		partial := wfnode.CoerceArtifact(resp.Result)
		wfnode.SetBackendUsed(partial, tier.Name)
		in.OnPartial(ctx, partial)
	}

	if buf.Len() == 0 {
		return nil, fmt.Errorf("empty llm stream")
	}
	msg, err := wfnode.ConcatChunks(chunks)
	if err != nil || msg == nil {
		logger.Debug(ctx, "concat stream chunks failed, using accumulated text", "tier", tier.Name)
		return &schema.Message{Role: schema.Assistant, Content: buf.String()}, nil
	}
	return msg, nil
}

// finalize 严格解析完整输出；失败时走修复链，一个字段都恢复不出来才算解析失败
func (c *GenerationCascade) finalize(ctx context.Context, tier Tier, text string) (*entity.SongArtifact, error) {
	resp, err := wfnode.AwaitRepair(ctx, c.repairer.Submit(ctx, wfnode.RepairRequest{
		Operation: wfnode.RepairOpStrictParse,
		Payload:   text,
	}))
	if err != nil {
		return nil, err
	}
	fields := resp.Result
	if !resp.Success {
		logger.Warn(ctx, "strict parse of model output failed, repairing",
			"tier", tier.Name,
			"error", resp.Error,
		)
		repaired, err := wfnode.AwaitRepair(ctx, c.repairer.Submit(ctx, wfnode.RepairRequest{
			Operation: wfnode.RepairOpRepair,
			Payload:   text,
		}))
		if err != nil {
			return nil, err
		}
		fields = repaired.Result
	}
	if wfnode.CountArtifactFields(fields) == 0 {
		return nil, apperrors.ErrParseFailed.WithDetail(tier.Name)
	}
	return wfnode.CoerceArtifact(fields), nil
}
