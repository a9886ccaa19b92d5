package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-song-ai-api/internal/application/quota"
	"z-song-ai-api/internal/application/song"
	"z-song-ai-api/internal/domain/entity"
	"z-song-ai-api/internal/interfaces/http/middleware"
	"z-song-ai-api/internal/workflow/chain"
	"z-song-ai-api/internal/workflow/resilience"
	apperrors "z-song-ai-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSongs struct {
	err      error
	calls    int
	clientID string
}

func (s *stubSongs) Generate(ctx context.Context, req *song.GenerateRequest) (*song.GenerateResult, error) {
	s.calls++
	s.clientID = req.ClientID
	if s.err != nil {
		return nil, s.err
	}
	intent := entity.DefaultIntentProfile()
	if req.OnIntent != nil {
		req.OnIntent(ctx, intent, entity.ResearchContext{})
	}
	art := &entity.SongArtifact{Title: "Neon Skyline", BackendUsed: "pro"}
	if req.OnPartial != nil {
		req.OnPartial(ctx, &entity.SongArtifact{Title: "Neon"})
		req.OnPartial(ctx, art)
	}
	return &song.GenerateResult{
		GenerationID: "gen-1",
		Artifact:     art,
		Intent:       intent,
		Review:       chain.ReviewOutcome{Artifact: art},
		Validation:   entity.ValidationResult{Score: 80, Status: entity.StatusForScore(80)},
		Tier:         "pro",
	}, nil
}

func (s *stubSongs) Score(_ context.Context, a *entity.SongArtifact) entity.ValidationResult {
	return entity.ValidationResult{Score: len(a.Title), Status: entity.StatusForScore(len(a.Title))}
}

type stubQuota struct {
	err error
}

func (q stubQuota) CheckDailyTokens(context.Context, string) (int64, int64, error) {
	return 0, 0, q.err
}

func newEngine(h *SongHandler) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/v1/songs/generate", h.Generate)
	r.POST("/v1/songs/generate/stream", h.GenerateStream)
	r.POST("/v1/songs/score", h.Score)
	r.GET("/v1/resilience/breakers", h.Breakers)
	return r
}

func postJSON(t *testing.T, r http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ClientIDHeader, "studio-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSongHandler_Generate(t *testing.T) {
	svc := &stubSongs{}
	w := postJSON(t, newEngine(NewSongHandler(svc, nil)), "/v1/songs/generate", `{"prompt":"energetic anthem"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data song.GenerateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "gen-1", resp.Data.GenerationID)
	assert.Equal(t, "Neon Skyline", resp.Data.Artifact.Title)
	assert.Equal(t, "studio-7", svc.clientID)
}

func TestSongHandler_GenerateBadRequest(t *testing.T) {
	svc := &stubSongs{}
	w := postJSON(t, newEngine(NewSongHandler(svc, nil)), "/v1/songs/generate", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, svc.calls)
}

func TestSongHandler_GenerateErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   apperrors.ErrorCode
	}{
		{"exhausted", apperrors.ErrCascadeExhausted.WithDetail("3 tiers attempted"), http.StatusServiceUnavailable, apperrors.CodeCascadeExhausted},
		{"invalid", apperrors.ErrInvalidParam.WithDetail("prompt exceeds 4000 characters"), http.StatusBadRequest, apperrors.CodeInvalidParam},
		{"raw backend error", assert.AnError, http.StatusInternalServerError, apperrors.CodeLLMProviderError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(t, newEngine(NewSongHandler(&stubSongs{err: tc.err}, nil)), "/v1/songs/generate", `{"prompt":"x"}`)
			assert.Equal(t, tc.status, w.Code)

			var resp struct {
				Error struct {
					ErrorCode string `json:"error_code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, string(tc.code), resp.Error.ErrorCode)
		})
	}
}

func TestSongHandler_QuotaExceeded(t *testing.T) {
	svc := &stubSongs{}
	q := stubQuota{err: quota.TokenQuotaExceededError{ClientID: "studio-7", Max: 100, Used: 120}}
	w := postJSON(t, newEngine(NewSongHandler(svc, q)), "/v1/songs/generate", `{"prompt":"x"}`)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Zero(t, svc.calls)
}

func TestSongHandler_QuotaBackendFailureAllows(t *testing.T) {
	svc := &stubSongs{}
	w := postJSON(t, newEngine(NewSongHandler(svc, stubQuota{err: assert.AnError})), "/v1/songs/generate", `{"prompt":"x"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.calls)
}

// sseEvents 解析 gin SSE 输出中的事件名
func sseEvents(body string) []string {
	var names []string
	for _, line := range strings.Split(body, "\n") {
		if name, ok := strings.CutPrefix(line, "event:"); ok {
			names = append(names, strings.TrimSpace(name))
		}
	}
	return names
}

// streamRecorder adds http.CloseNotifier to httptest.ResponseRecorder, which
// gin's Context.Stream requires; gin only defines this helper in its own tests.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closeChannel chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool {
	return r.closeChannel
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{httptest.NewRecorder(), make(chan bool, 1)}
}

func serveStream(t *testing.T, h *SongHandler, body string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/songs/generate/stream", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := newStreamRecorder()
	newEngine(h).ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	return w.Body.String()
}

func TestSongHandler_GenerateStream(t *testing.T) {
	body := serveStream(t, NewSongHandler(&stubSongs{}, nil), `{"prompt":"energetic anthem"}`)

	assert.Equal(t, []string{"intent", "partial", "partial", "artifact", "validation"}, sseEvents(body))
	assert.Contains(t, body, `"generation_id":"gen-1"`)
}

func TestSongHandler_GenerateStreamError(t *testing.T) {
	svc := &stubSongs{err: apperrors.ErrCascadeExhausted}
	body := serveStream(t, NewSongHandler(svc, nil), `{"prompt":"x"}`)

	assert.Equal(t, []string{"error"}, sseEvents(body))
	assert.Contains(t, body, string(apperrors.CodeCascadeExhausted))
}

func TestSongHandler_Score(t *testing.T) {
	w := postJSON(t, newEngine(NewSongHandler(&stubSongs{}, nil)), "/v1/songs/score", `{"artifact":{"title":"abcd"}}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data entity.ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Data.Score)
}

func TestSongHandler_Breakers(t *testing.T) {
	b := resilience.NewBreaker("cascade", 1, time.Minute)
	_ = b.Execute(context.Background(), func(context.Context) error { return assert.AnError })

	r := newEngine(NewSongHandler(&stubSongs{}, nil, b, nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/resilience/breakers", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []resilience.BreakerState `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "cascade", resp.Data[0].Name)
	assert.True(t, resp.Data[0].Open)
}
