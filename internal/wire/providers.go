// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"z-song-ai-api/internal/application/quota"
	"z-song-ai-api/internal/application/song"
	"z-song-ai-api/internal/application/validation"
	"z-song-ai-api/internal/config"
	"z-song-ai-api/internal/domain/repository"
	"z-song-ai-api/internal/domain/service"
	"z-song-ai-api/internal/infrastructure/persistence/postgres"
	"z-song-ai-api/internal/infrastructure/persistence/redis"
	"z-song-ai-api/internal/interfaces/http/handler"
	"z-song-ai-api/internal/interfaces/http/middleware"
	"z-song-ai-api/internal/interfaces/http/router"
	"z-song-ai-api/internal/workflow/chain"
	wfmodel "z-song-ai-api/internal/workflow/model"
	wfnode "z-song-ai-api/internal/workflow/node"
	workflowport "z-song-ai-api/internal/workflow/port"
	"z-song-ai-api/internal/workflow/resilience"
	"z-song-ai-api/pkg/logger"
)

// App 应用依赖容器
type App struct {
	Router *router.Router
	// UsageRecorder 交给 eino 全局回调；未启用用量流水时为 nil
	UsageRecorder service.LLMUsageRecorder
}

// Breakers 级联与审校各自的熔断器
type Breakers struct {
	Cascade *resilience.Breaker
	Critic  *resilience.Breaker
}

// ProvideDBClient 按 database.driver 打开数据库；未配置时返回 nil
func ProvideDBClient(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	if cfg.Database.Driver == "" {
		return nil, func() {}, nil
	}
	client, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(ctx, "database connected", "driver", cfg.Database.Driver)
	return client, func() { _ = client.Close() }, nil
}

// ProvideUsageRepository 数据库未启用时返回 nil 接口
func ProvideUsageRepository(client *postgres.Client) repository.LLMUsageEventRepository {
	if client == nil {
		return nil
	}
	return postgres.NewLLMUsageEventRepository(client)
}

// ProvideUsageRecorder 需同时启用 usage_recording 与数据库
func ProvideUsageRecorder(cfg *config.Config, repo repository.LLMUsageEventRepository) service.LLMUsageRecorder {
	if !cfg.Features.UsageRecording.Enabled || repo == nil {
		return nil
	}
	return quota.NewLLMUsageRecorder(repo)
}

// ProvideQuotaChecker 未配置日配额或无用量流水时不检查
func ProvideQuotaChecker(cfg *config.Config, repo repository.LLMUsageEventRepository) handler.QuotaChecker {
	if repo == nil || cfg.Security.Quota.MaxTokensPerDay <= 0 {
		return nil
	}
	return quota.NewTokenQuotaChecker(repo, cfg.Security.Quota.MaxTokensPerDay)
}

// ProvideRedisClient Redis 未启用或不可达时返回 nil，缓存与分布式限流随之降级
func ProvideRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis not available, cache and distributed rate limit disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideCache(client *redis.Client) song.Cache {
	if client == nil {
		return nil
	}
	return redis.NewCache(client)
}

func ProvideRateLimiter(client *redis.Client) middleware.RateLimiter {
	if client == nil {
		return nil
	}
	return redis.NewRateLimiter(client)
}

// ProvideBreakers 级联熔断不统计内容审核拒绝
func ProvideBreakers(cfg *config.Config) Breakers {
	rc := cfg.Resilience
	return Breakers{
		Cascade: resilience.NewBreaker("cascade", rc.CascadeBreaker.Threshold, rc.CascadeBreaker.Cooldown,
			resilience.WithFailureFilter(func(err error) bool {
				return wfnode.ClassifyLLMError(err) != wfnode.LLMErrorContentBlocked
			})),
		Critic: resilience.NewBreaker("critic", rc.CriticBreaker.Threshold, rc.CriticBreaker.Cooldown),
	}
}

// ProvideRepairer workers 为 0 时内联修复
func ProvideRepairer(cfg *config.Config) (wfnode.Repairer, func()) {
	rc := cfg.Resilience.Repair
	if rc.Workers <= 0 {
		return wfnode.InlineRepairer{}, func() {}
	}
	w := wfnode.NewRepairWorker(rc.Workers, rc.QueueSize)
	return w, func() { _ = w.Close() }
}

func ProvideCascade(cfg *config.Config, factory workflowport.ChatModelFactory, breakers Breakers, repairer wfnode.Repairer) (*chain.GenerationCascade, error) {
	tiers := make([]chain.Tier, 0, len(cfg.LLM.Tiers))
	for _, t := range cfg.LLM.Tiers {
		tiers = append(tiers, tierOf(cfg.LLM, t))
	}
	safety := make([]wfmodel.SafetySetting, 0, len(cfg.LLM.Safety))
	for _, s := range cfg.LLM.Safety {
		safety = append(safety, wfmodel.SafetySetting{Category: s.Category, Threshold: s.Threshold})
	}
	rc := cfg.Resilience
	return chain.NewGenerationCascade(factory, chain.CascadeOptions{
		Tiers:        tiers,
		Retry:        resilience.NewPolicy("cascade", rc.Retry.MaxRetries, rc.Retry.InitialDelay, wfnode.IsTransientLLMError),
		Breaker:      breakers.Cascade,
		Repairer:     repairer,
		PreviewEvery: rc.Repair.PreviewEvery,
		Safety:       safety,
	})
}

// tierOf 扩展请求字段只下发给声明了对应能力的提供商
func tierOf(llm config.LLMConfig, t config.TierConfig) chain.Tier {
	provider := llm.Providers[t.Provider]
	thinking := t.Thinking && provider.Supports(config.CapabilityThinking)
	if t.Thinking && !thinking {
		logger.Warn(context.Background(), "tier requests thinking but provider does not declare it, dropping",
			"tier", t.Name,
			"provider", t.Provider,
		)
	}
	return chain.Tier{
		Name:             t.Name,
		Provider:         t.Provider,
		Model:            t.Model,
		BudgetMultiplier: t.BudgetMultiplier,
		Stream:           t.Stream,
		Thinking:         thinking,
		SafetySettings:   provider.Supports(config.CapabilitySafetySettings),
		Timeout:          t.Timeout,
	}
}

func roleOf(rc config.RoleConfig) wfmodel.Role {
	return wfmodel.Role{Provider: rc.Provider, Model: rc.Model, Timeout: rc.Timeout}
}

// ProvideValidator 配置了词表文件时使用自定义词表
func ProvideValidator(cfg *config.Config) (*validation.Service, error) {
	if cfg.Validation.VocabularyPath == "" {
		return validation.NewService(nil), nil
	}
	vocab, err := validation.LoadVocabularyFile(cfg.Validation.VocabularyPath)
	if err != nil {
		return nil, err
	}
	scorer, err := validation.NewScorer(vocab)
	if err != nil {
		return nil, err
	}
	return validation.NewService(scorer), nil
}

func ProvideOrchestrator(
	cfg *config.Config,
	factory workflowport.ChatModelFactory,
	cascade *chain.GenerationCascade,
	breakers Breakers,
	validator *validation.Service,
	cache song.Cache,
) (*song.Orchestrator, error) {
	roles := cfg.LLM.Roles
	deps := song.Deps{
		Classifier: chain.NewIntentClassifier(factory, roleOf(roles.Intent)),
		Cascade:    cascade,
		Validator:  validator,
		Cache:      cache,
	}
	if cfg.Features.Research.Enabled {
		deps.Research = chain.NewResearchCollector(factory, roleOf(roles.Research))
	}
	if cfg.Features.Critic.Enabled {
		deps.Critic = chain.NewCriticLoop(factory, roleOf(roles.Critic), breakers.Critic)
	}
	return song.NewOrchestrator(deps, song.Options{
		ResearchEnabled: cfg.Features.Research.Enabled,
		CriticEnabled:   cfg.Features.Critic.Enabled,
		IntentTTL:       cfg.Cache.IntentTTL,
		ResearchTTL:     cfg.Cache.ResearchTTL,
	})
}

func ProvideSongHandler(orch *song.Orchestrator, quotaChecker handler.QuotaChecker, breakers Breakers) *handler.SongHandler {
	return handler.NewSongHandler(orch, quotaChecker, breakers.Cascade, breakers.Critic)
}

// ProvideHealthHandler 未启用的依赖在就绪检查中显示为 disabled
func ProvideHealthHandler(cfg *config.Config, db *postgres.Client, redisClient *redis.Client) *handler.HealthHandler {
	checks := map[string]handler.HealthChecker{"database": nil, "redis": nil}
	if db != nil {
		checks["database"] = db
	}
	if redisClient != nil {
		checks["redis"] = redisClient
	}
	return handler.NewHealthHandler(cfg.App.Version, checks)
}
