//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"z-song-ai-api/internal/config"
	"z-song-ai-api/internal/infrastructure/llm"
	"z-song-ai-api/internal/interfaces/http/router"
	workflowport "z-song-ai-api/internal/workflow/port"
)

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		DataSet,
		LLMSet,
		SongSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// DataSet 数据库与 Redis，均为可选
var DataSet = wire.NewSet(
	ProvideDBClient,
	ProvideUsageRepository,
	ProvideUsageRecorder,
	ProvideQuotaChecker,
	ProvideRedisClient,
	ProvideCache,
	ProvideRateLimiter,
)

// LLMSet 模型工厂
var LLMSet = wire.NewSet(
	llm.NewEinoFactory,
	wire.Bind(new(workflowport.ChatModelFactory), new(*llm.EinoFactory)),
)

// SongSet 生成链路
var SongSet = wire.NewSet(
	ProvideBreakers,
	ProvideRepairer,
	ProvideCascade,
	ProvideValidator,
	ProvideOrchestrator,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideSongHandler,
	ProvideHealthHandler,
	router.New,
)
