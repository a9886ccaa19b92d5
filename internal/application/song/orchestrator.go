// Package song 歌曲简报生成编排
package song

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"z-song-ai-api/internal/domain/entity"
	"z-song-ai-api/internal/workflow/chain"
	wfmodel "z-song-ai-api/internal/workflow/model"
	workflowprompt "z-song-ai-api/internal/workflow/prompt"
	apperrors "z-song-ai-api/pkg/errors"
	"z-song-ai-api/pkg/logger"
	"z-song-ai-api/pkg/metrics"
	"z-song-ai-api/pkg/tracer"
)

const (
	MaxPromptRunes = 4000

	intentCacheNS   = "intent"
	researchCacheNS = "research"
)

// IntentClassifier 意图分类
type IntentClassifier interface {
	Classify(ctx context.Context, in *wfmodel.IntentInput) (entity.IntentProfile, error)
}

// ResearchCollector 检索增强
type ResearchCollector interface {
	Collect(ctx context.Context, in *wfmodel.ResearchInput) (entity.ResearchContext, error)
}

// Generator 级联生成
type Generator interface {
	Generate(ctx context.Context, in *wfmodel.GenerationInput) (*wfmodel.GenerationOutput, error)
}

// Reviewer 审校
type Reviewer interface {
	Review(ctx context.Context, draft *entity.SongArtifact) chain.ReviewOutcome
}

// Validator 评分
type Validator interface {
	Validate(ctx context.Context, a *entity.SongArtifact) entity.ValidationResult
}

// Cache 读穿缓存，由 redis.Cache 实现
type Cache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error)
}

// Options 编排开关
type Options struct {
	ResearchEnabled bool
	CriticEnabled   bool
	IntentTTL       time.Duration
	ResearchTTL     time.Duration
}

// Deps 编排依赖；Critic/Research/Cache 可为空
type Deps struct {
	Classifier IntentClassifier
	Research   ResearchCollector
	Cascade    Generator
	Critic     Reviewer
	Validator  Validator
	Cache      Cache
}

// GenerateRequest 一次生成请求
type GenerateRequest struct {
	ClientID string
	Prompt   string
	// Research 显式开关；为空时由意图分类决定
	Research *bool
	// OnIntent 意图与检索完成后回调
	OnIntent func(ctx context.Context, intent entity.IntentProfile, research entity.ResearchContext)
	// OnPartial 流式预览回调
	OnPartial wfmodel.PartialFunc
}

// GenerateResult 生成结果
type GenerateResult struct {
	GenerationID string                  `json:"generation_id"`
	Artifact     *entity.SongArtifact    `json:"artifact"`
	Intent       entity.IntentProfile    `json:"intent"`
	Research     entity.ResearchContext  `json:"research"`
	Review       chain.ReviewOutcome     `json:"review"`
	Validation   entity.ValidationResult `json:"validation"`
	Tier         string                  `json:"tier"`
	// Recovered 被内部吸收的失败（意图/检索/审校），仅用于诊断
	Recovered []*apperrors.RecoverableError `json:"-"`
}

// Orchestrator 意图+检索（并发）→ 级联生成 → 审校 → 评分
type Orchestrator struct {
	deps    Deps
	opts    Options
	prompts *workflowprompt.Registry
}

func NewOrchestrator(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Cascade == nil {
		return nil, fmt.Errorf("generation cascade is required")
	}
	if deps.Classifier == nil {
		return nil, fmt.Errorf("intent classifier is required")
	}
	return &Orchestrator{deps: deps, opts: opts, prompts: workflowprompt.NewRegistry()}, nil
}

// Generate 执行完整生成流程。只有级联耗尽（或调用方取消）会返回错误。
func (o *Orchestrator) Generate(ctx context.Context, req *GenerateRequest) (result *GenerateResult, err error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("prompt is required")
	}
	if n := len([]rune(req.Prompt)); n > MaxPromptRunes {
		return nil, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("prompt exceeds %d characters", MaxPromptRunes))
	}

	genID := uuid.NewString()
	ctx = logger.WithContext(ctx, logger.GenerationIDKey, genID)
	if req.ClientID != "" {
		ctx = logger.WithContext(ctx, logger.ClientIDKey, req.ClientID)
	}
	ctx, span := tracer.Start(ctx, "song.generate")
	defer func() { tracer.EndWithError(span, err) }()

	start := time.Now()
	res := &GenerateResult{GenerationID: genID}

	intent, research := o.prepare(ctx, req, res)
	res.Intent, res.Research = intent, research
	if req.OnIntent != nil {
		req.OnIntent(ctx, intent, research)
	}

	msgs, err := o.prompts.Format(ctx, workflowprompt.PromptSongV1, map[string]any{
		"prompt":     req.Prompt,
		"tone":       string(intent.Tone),
		"complexity": string(intent.Complexity),
		"research":   formatResearch(research),
	})
	if err != nil {
		metrics.SongGenerationTotal.WithLabelValues("failed").Inc()
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to build generation prompt")
	}

	out, err := o.deps.Cascade.Generate(ctx, &wfmodel.GenerationInput{
		Messages:   msgs,
		SchemaName: "song_brief",
		Schema:     chain.SongJSONSchema(),
		Complexity: intent.Complexity,
		OnPartial:  req.OnPartial,
	})
	if err != nil {
		metrics.SongGenerationTotal.WithLabelValues("failed").Inc()
		logger.Error(ctx, "song generation failed", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	res.Tier = out.Tier

	draft := out.Artifact
	if draft == nil {
		draft = &entity.SongArtifact{BackendUsed: out.Tier}
	}
	res.Review = chain.ReviewOutcome{Artifact: draft}
	if o.opts.CriticEnabled && o.deps.Critic != nil {
		res.Review = o.deps.Critic.Review(ctx, draft)
		if res.Review.Recovered != nil {
			res.Recovered = append(res.Recovered, res.Review.Recovered)
		}
	}
	res.Artifact = res.Review.Artifact
	if res.Artifact == nil {
		res.Artifact = draft
	}

	if o.deps.Validator != nil {
		res.Validation = o.deps.Validator.Validate(ctx, res.Artifact)
	}

	status := "success"
	if len(res.Recovered) > 0 {
		status = "degraded"
	}
	metrics.SongGenerationTotal.WithLabelValues(status).Inc()
	metrics.SongGenerationDuration.WithLabelValues(res.Tier).Observe(time.Since(start).Seconds())
	logger.Info(ctx, "song generated",
		"tier", res.Tier,
		"refined", res.Review.Refined,
		"score", res.Validation.Score,
		"recovered", len(res.Recovered),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Score 对任意简报评分
func (o *Orchestrator) Score(ctx context.Context, a *entity.SongArtifact) entity.ValidationResult {
	if o.deps.Validator == nil {
		return entity.ValidationResult{}
	}
	return o.deps.Validator.Validate(ctx, a)
}

// prepare 并发执行意图分类与检索；两者的失败都降级为默认值，不中断生成
func (o *Orchestrator) prepare(ctx context.Context, req *GenerateRequest, res *GenerateResult) (entity.IntentProfile, entity.ResearchContext) {
	intent := entity.DefaultIntentProfile()
	var research entity.ResearchContext
	var intentErr, researchErr error

	wantResearch := o.opts.ResearchEnabled && o.deps.Research != nil
	if req.Research != nil {
		wantResearch = wantResearch && *req.Research
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		intent, intentErr = o.classify(gctx, req.Prompt)
		return nil
	})
	if wantResearch {
		g.Go(func() error {
			research, researchErr = o.collect(gctx, req.Prompt)
			return nil
		})
	}
	_ = g.Wait()

	if intentErr != nil {
		intent = entity.DefaultIntentProfile()
		res.Recovered = append(res.Recovered, apperrors.Recover("intent.classify", intentErr))
		logger.Warn(ctx, "intent classification degraded to defaults", "error", intentErr.Error())
	}
	if researchErr != nil {
		research = entity.ResearchContext{}
		res.Recovered = append(res.Recovered, apperrors.Recover("research.collect", researchErr))
		logger.Warn(ctx, "research degraded to empty context", "error", researchErr.Error())
	}
	// 显式开关为空时，分类认为不需要检索则丢弃检索结果
	if req.Research == nil && !intent.NeedsResearch && intentErr == nil {
		research = entity.ResearchContext{}
	}
	return intent, research
}

func (o *Orchestrator) classify(ctx context.Context, prompt string) (entity.IntentProfile, error) {
	load := func() (entity.IntentProfile, error) {
		return o.deps.Classifier.Classify(ctx, &wfmodel.IntentInput{Prompt: prompt})
	}
	return cached(ctx, o.deps.Cache, intentCacheNS, prompt, o.opts.IntentTTL, load)
}

func (o *Orchestrator) collect(ctx context.Context, prompt string) (entity.ResearchContext, error) {
	load := func() (entity.ResearchContext, error) {
		return o.deps.Research.Collect(ctx, &wfmodel.ResearchInput{Prompt: prompt})
	}
	return cached(ctx, o.deps.Cache, researchCacheNS, prompt, o.opts.ResearchTTL, load)
}

// loadError 标记来自 loader 的错误；singleflight 的跟随者拿到的是同一个值
type loadError struct {
	err error
}

func (e *loadError) Error() string { return e.err.Error() }

func (e *loadError) Unwrap() error { return e.err }

// cached 读穿缓存；缓存不可用时直接调用 loader，loader 自身的错误原样返回
func cached[T any](ctx context.Context, cache Cache, ns, prompt string, ttl time.Duration, load func() (T, error)) (T, error) {
	if cache == nil || ttl <= 0 {
		return load()
	}

	var loaded bool
	raw, err := cache.GetOrLoadSafe(ctx, cacheKey(ns, prompt), ttl, func() (interface{}, error) {
		loaded = true
		v, err := load()
		if err != nil {
			return nil, &loadError{err: err}
		}
		return v, nil
	})
	if err != nil {
		var le *loadError
		if errors.As(err, &le) {
			return *new(T), le.err
		}
		metrics.CacheRequests.WithLabelValues(ns, "error").Inc()
		logger.Warn(ctx, "cache lookup failed, calling backend directly", "namespace", ns, "error", err.Error())
		return load()
	}

	result := "hit"
	if loaded {
		result = "miss"
	}
	metrics.CacheRequests.WithLabelValues(ns, result).Inc()

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return load()
	}
	return out, nil
}

func cacheKey(ns, prompt string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(prompt)))
	return "song:" + ns + ":" + hex.EncodeToString(sum[:16])
}

// formatResearch 把检索上下文渲染为提示词片段
func formatResearch(r entity.ResearchContext) string {
	if r.IsEmpty() {
		return "(none)"
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(r.Text))
	if len(r.Sources) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Sources:")
		for _, s := range r.Sources {
			b.WriteString("\n- ")
			if s.Title != "" {
				b.WriteString(s.Title + " ")
			}
			b.WriteString("<" + s.URI + ">")
		}
	}
	return b.String()
}
