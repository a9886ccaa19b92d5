package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-song-ai-api/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{LLM: config.LLMConfig{
		DefaultProvider: "primary",
		Providers: map[string]config.ProviderConfig{
			"primary":  {APIKey: "k", BaseURL: "http://127.0.0.1:1/v1", Model: "m", MaxTokens: 512, Temperature: 0.7, Timeout: time.Second},
			"fallback": {APIKey: "k", BaseURL: "http://127.0.0.1:1/v1", Model: "m-lite"},
		},
	}}
}

func TestEinoFactory_GetCachesPerProvider(t *testing.T) {
	f := NewEinoFactory(testConfig())
	ctx := context.Background()

	a, err := f.Get(ctx, "primary")
	require.NoError(t, err)
	b, err := f.Get(ctx, "primary")
	require.NoError(t, err)
	assert.Same(t, a, b)

	def, err := f.Get(ctx, "")
	require.NoError(t, err)
	assert.Same(t, a, def, "empty name resolves to the default provider")

	other, err := f.Get(ctx, "fallback")
	require.NoError(t, err)
	assert.NotSame(t, a, other)
}

func TestEinoFactory_UnknownProvider(t *testing.T) {
	f := NewEinoFactory(testConfig())
	_, err := f.Get(context.Background(), "missing")
	assert.ErrorContains(t, err, "provider missing not found")
	assert.Equal(t, []string{"fallback", "primary"}, f.Providers())
}
