package wire

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-song-ai-api/internal/config"
	wfnode "z-song-ai-api/internal/workflow/node"
	apperrors "z-song-ai-api/pkg/errors"
)

func minimalConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "z-song-ai-api"
	cfg.LLM.DefaultProvider = "primary"
	cfg.LLM.Providers = map[string]config.ProviderConfig{
		"primary": {APIKey: "k", BaseURL: "http://127.0.0.1:1/v1", Model: "m"},
	}
	cfg.LLM.Tiers = []config.TierConfig{{Name: "pro", Provider: "primary", BudgetMultiplier: 1, Stream: true}}
	cfg.Resilience.CascadeBreaker = config.BreakerConfig{Threshold: 1, Cooldown: time.Minute}
	cfg.Resilience.CriticBreaker = config.BreakerConfig{Threshold: 1, Cooldown: time.Minute}
	cfg.Features.Critic.Enabled = true
	return cfg
}

func TestProvideBreakers_ContentBlockedNotCounted(t *testing.T) {
	b := ProvideBreakers(minimalConfig())
	ctx := context.Background()

	blocked := apperrors.Wrap(errors.New("prompt flagged"), apperrors.CodeContentBlocked, "content blocked")
	_ = b.Cascade.Execute(ctx, func(context.Context) error { return blocked })
	assert.False(t, b.Cascade.State().Open)

	_ = b.Cascade.Execute(ctx, func(context.Context) error { return errors.New("503 service unavailable") })
	assert.True(t, b.Cascade.State().Open)
}

func TestTierOf_ExtraFieldsRequireCapability(t *testing.T) {
	llm := config.LLMConfig{Providers: map[string]config.ProviderConfig{
		"openai":  {},
		"gateway": {Capabilities: []string{config.CapabilityThinking, config.CapabilitySafetySettings}},
	}}

	plain := tierOf(llm, config.TierConfig{Name: "pro", Provider: "openai", Thinking: true})
	assert.False(t, plain.Thinking)
	assert.False(t, plain.SafetySettings)

	full := tierOf(llm, config.TierConfig{Name: "pro", Provider: "gateway", Thinking: true})
	assert.True(t, full.Thinking)
	assert.True(t, full.SafetySettings)

	noThinking := tierOf(llm, config.TierConfig{Name: "lite", Provider: "gateway"})
	assert.False(t, noThinking.Thinking)
	assert.True(t, noThinking.SafetySettings)
}

func TestOptionalDependencies(t *testing.T) {
	cfg := minimalConfig()

	assert.Nil(t, ProvideUsageRepository(nil))
	assert.Nil(t, ProvideUsageRecorder(cfg, nil))
	assert.Nil(t, ProvideQuotaChecker(cfg, nil))
	assert.Nil(t, ProvideCache(nil))
	assert.Nil(t, ProvideRateLimiter(nil))

	repairer, cleanup := ProvideRepairer(cfg)
	defer cleanup()
	assert.IsType(t, wfnode.InlineRepairer{}, repairer)

	cfg.Resilience.Repair.Workers = 2
	pooled, cleanupPool := ProvideRepairer(cfg)
	defer cleanupPool()
	assert.IsType(t, &wfnode.RepairWorker{}, pooled)
}

func TestProvideValidator_MissingVocabulary(t *testing.T) {
	cfg := minimalConfig()
	cfg.Validation.VocabularyPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := ProvideValidator(cfg)
	assert.Error(t, err)
}

func TestInitializeApp_WithoutExternalServices(t *testing.T) {
	app, cleanup, err := InitializeApp(context.Background(), minimalConfig())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, app.UsageRecorder)

	w := httptest.NewRecorder()
	app.Router.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"disabled"`)

	w = httptest.NewRecorder()
	app.Router.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/resilience/breakers", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cascade"`)
	assert.Contains(t, w.Body.String(), `"critic"`)
}
