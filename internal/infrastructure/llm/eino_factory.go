// Package llm 提供基于 eino 的 ChatModel 工厂
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"z-song-ai-api/internal/config"
)

// EinoFactory 管理多个 Eino ChatModel 客户端实例，按提供商名惰性创建
type EinoFactory struct {
	config *config.LLMConfig
	models map[string]model.BaseChatModel
	mu     sync.RWMutex
}

// NewEinoFactory 创建 Eino LLM 工厂
func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{
		config: &cfg.LLM,
		models: make(map[string]model.BaseChatModel),
	}
}

// Get 获取指定名称的 ChatModel，如果未指定则返回默认客户端
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	if name == "" {
		name = f.config.DefaultProvider
	}

	f.mu.RLock()
	m, ok := f.models[name]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok = f.models[name]; ok {
		return m, nil
	}

	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not found in LLM config", name)
	}

	cfg := &openai.ChatModelConfig{
		APIKey:  providerCfg.APIKey,
		BaseURL: providerCfg.BaseURL,
		Model:   providerCfg.Model,
		Timeout: providerCfg.Timeout,
	}
	if providerCfg.MaxTokens > 0 {
		cfg.MaxTokens = ptr(providerCfg.MaxTokens)
	}
	if providerCfg.Temperature > 0 {
		cfg.Temperature = ptr(float32(providerCfg.Temperature))
	}

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", name, err)
	}

	f.models[name] = chatModel
	return chatModel, nil
}

// Providers 返回已配置的提供商名
func (f *EinoFactory) Providers() []string {
	names := make([]string, 0, len(f.config.Providers))
	for name := range f.config.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ptr[T any](v T) *T {
	return &v
}
