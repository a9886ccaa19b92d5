// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"z-song-ai-api/internal/application/quota"
	"z-song-ai-api/internal/application/song"
	"z-song-ai-api/internal/domain/entity"
	"z-song-ai-api/internal/interfaces/http/dto"
	"z-song-ai-api/internal/interfaces/http/middleware"
	wfnode "z-song-ai-api/internal/workflow/node"
	"z-song-ai-api/internal/workflow/resilience"
	apperrors "z-song-ai-api/pkg/errors"
	"z-song-ai-api/pkg/logger"
)

// SongService 歌曲生成与评分
type SongService interface {
	Generate(ctx context.Context, req *song.GenerateRequest) (*song.GenerateResult, error)
	Score(ctx context.Context, a *entity.SongArtifact) entity.ValidationResult
}

// QuotaChecker 每日 token 配额检查
type QuotaChecker interface {
	CheckDailyTokens(ctx context.Context, clientID string) (used int64, max int64, err error)
}

// SongHandler 歌曲简报处理器
type SongHandler struct {
	songs    SongService
	quota    QuotaChecker
	breakers []*resilience.Breaker
}

// NewSongHandler 创建歌曲简报处理器；quota 可为空
func NewSongHandler(songs SongService, quotaChecker QuotaChecker, breakers ...*resilience.Breaker) *SongHandler {
	return &SongHandler{songs: songs, quota: quotaChecker, breakers: breakers}
}

// Generate 生成歌曲简报
// @Summary 生成歌曲简报
// @Tags Songs
// @Accept json
// @Produce json
// @Param body body dto.GenerateSongRequest true "生成请求"
// @Success 200 {object} dto.Response[song.GenerateResult]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/songs/generate [post]
func (h *SongHandler) Generate(c *gin.Context) {
	var req dto.GenerateSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if !h.checkQuota(c) {
		return
	}

	res, err := h.songs.Generate(c.Request.Context(), &song.GenerateRequest{
		ClientID: middleware.ClientID(c),
		Prompt:   req.Prompt,
		Research: req.Research,
	})
	if err != nil {
		dto.AppError(c, wfnode.WrapLLMError(err))
		return
	}
	dto.Success(c, res)
}

// GenerateStream 以 SSE 推送生成过程
// @Summary 流式生成歌曲简报
// @Description 事件依次为 intent、若干 partial、artifact、validation；失败时为 error
// @Tags Songs
// @Accept json
// @Produce text/event-stream
// @Param body body dto.GenerateSongRequest true "生成请求"
// @Success 200 "SSE stream"
// @Router /v1/songs/generate/stream [post]
func (h *SongHandler) GenerateStream(c *gin.Context) {
	var req dto.GenerateSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if !h.checkQuota(c) {
		return
	}

	ctx := c.Request.Context()
	clientID := middleware.ClientID(c)
	events := make(chan sseEvent, 16)
	go func() {
		defer close(events)
		res, err := h.songs.Generate(ctx, &song.GenerateRequest{
			ClientID: clientID,
			Prompt:   req.Prompt,
			Research: req.Research,
			OnIntent: func(ctx context.Context, intent entity.IntentProfile, research entity.ResearchContext) {
				emit(ctx, events, "intent", dto.IntentEvent{Intent: intent, Research: research})
			},
			OnPartial: func(ctx context.Context, partial *entity.SongArtifact) {
				snapshot := *partial
				emit(ctx, events, "partial", &snapshot)
			},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			appErr := apperrors.AsAppError(wfnode.WrapLLMError(err))
			emit(ctx, events, "error", dto.StreamError{
				ErrorCode: string(appErr.Code),
				Message:   apperrors.UserMessage(appErr),
			})
			return
		}
		emit(ctx, events, "artifact", dto.ArtifactEvent{
			GenerationID: res.GenerationID,
			Tier:         res.Tier,
			Refined:      res.Review.Refined,
			Artifact:     res.Artifact,
		})
		emit(ctx, events, "validation", res.Validation)
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.name, ev.data)
			return true
		case <-ctx.Done():
			logger.Info(ctx, "client disconnected from song stream")
			return false
		}
	})
}

// Score 对提交的简报评分
// @Summary 评分
// @Tags Songs
// @Accept json
// @Produce json
// @Param body body dto.ScoreSongRequest true "简报"
// @Success 200 {object} dto.Response[entity.ValidationResult]
// @Router /v1/songs/score [post]
func (h *SongHandler) Score(c *gin.Context) {
	var req dto.ScoreSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	dto.Success(c, h.songs.Score(c.Request.Context(), req.Artifact))
}

// Breakers 返回熔断器状态
// @Summary 熔断器状态
// @Tags Resilience
// @Produce json
// @Success 200 {object} dto.Response[[]resilience.BreakerState]
// @Router /v1/resilience/breakers [get]
func (h *SongHandler) Breakers(c *gin.Context) {
	states := make([]resilience.BreakerState, 0, len(h.breakers))
	for _, b := range h.breakers {
		if b != nil {
			states = append(states, b.State())
		}
	}
	dto.Success(c, states)
}

// checkQuota 配额耗尽时写入 429 并返回 false；配额存储故障时放行
func (h *SongHandler) checkQuota(c *gin.Context) bool {
	if h.quota == nil {
		return true
	}
	ctx := c.Request.Context()
	clientID := middleware.ClientID(c)

	used, max, err := h.quota.CheckDailyTokens(ctx, clientID)
	if err == nil {
		return true
	}
	var exceeded quota.TokenQuotaExceededError
	if errors.As(err, &exceeded) {
		dto.TooManyRequests(c, "daily token quota exceeded", &dto.ErrorDetail{
			ErrorCode:   string(apperrors.CodeTooManyRequests),
			Details:     err.Error(),
			Suggestions: []string{"Retry after the quota resets at 00:00 UTC."},
		})
		return false
	}
	logger.Warn(ctx, "token quota check failed, allowing request",
		"used", used,
		"max", max,
		"error", err.Error(),
	)
	return true
}

type sseEvent struct {
	name string
	data any
}

func emit(ctx context.Context, ch chan<- sseEvent, name string, data any) {
	select {
	case ch <- sseEvent{name: name, data: data}:
	case <-ctx.Done():
	}
}
