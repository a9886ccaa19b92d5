package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// 提供商可声明的扩展请求字段
const (
	CapabilityThinking       = "thinking"
	CapabilitySafetySettings = "safety_settings"
)

// Validate 校验并补全配置中的派生字段
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	llm := &c.LLM
	if len(llm.Tiers) == 0 && strings.TrimSpace(llm.DefaultProvider) != "" {
		llm.Tiers = []TierConfig{{
			Name:             llm.DefaultProvider,
			Provider:         llm.DefaultProvider,
			BudgetMultiplier: 1,
			Stream:           true,
		}}
	}

	for name, p := range llm.Providers {
		for _, capability := range p.Capabilities {
			switch capability {
			case CapabilityThinking, CapabilitySafetySettings:
			default:
				return fmt.Errorf("llm provider %s declares unknown capability %q", name, capability)
			}
		}
	}

	seen := make(map[string]struct{}, len(llm.Tiers))
	for i := range llm.Tiers {
		t := &llm.Tiers[i]
		t.Name = strings.TrimSpace(t.Name)
		t.Provider = strings.TrimSpace(t.Provider)
		if t.Provider == "" {
			t.Provider = llm.DefaultProvider
		}
		if t.Name == "" {
			t.Name = fmt.Sprintf("tier-%d", i+1)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("duplicate llm tier name: %s", t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.BudgetMultiplier <= 0 {
			t.BudgetMultiplier = 1
		}
		if len(llm.Providers) > 0 {
			if _, ok := llm.Providers[t.Provider]; !ok {
				return fmt.Errorf("llm tier %s references unknown provider %s", t.Name, t.Provider)
			}
		}
	}

	llm.Roles.Intent = llm.Roles.Intent.withDefaults(llm.DefaultProvider, 20*time.Second)
	llm.Roles.Research = llm.Roles.Research.withDefaults(llm.DefaultProvider, 45*time.Second)
	llm.Roles.Critic = llm.Roles.Critic.withDefaults(llm.DefaultProvider, 60*time.Second)

	switch c.Database.Driver {
	case "", DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Resilience.Retry.MaxRetries < 0 {
		return fmt.Errorf("resilience.retry.max_retries must be >= 0")
	}
	if c.Resilience.CascadeBreaker.Threshold <= 0 || c.Resilience.CriticBreaker.Threshold <= 0 {
		return fmt.Errorf("resilience breaker threshold must be > 0")
	}
	return nil
}

func (r RoleConfig) withDefaults(provider string, timeout time.Duration) RoleConfig {
	if strings.TrimSpace(r.Provider) == "" {
		r.Provider = provider
	}
	if r.Timeout <= 0 {
		r.Timeout = timeout
	}
	return r
}
