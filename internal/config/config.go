// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Resilience    ResilienceConfig    `yaml:"resilience" mapstructure:"resilience"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
	Features      FeaturesConfig      `yaml:"features" mapstructure:"features"`
	Validation    ValidationConfig    `yaml:"validation" mapstructure:"validation"`
}

// ValidationConfig 评分配置
type ValidationConfig struct {
	// VocabularyPath 自定义词表 YAML，为空时使用内置词表
	VocabularyPath string `yaml:"vocabulary_path" mapstructure:"vocabulary_path"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Driver 为 postgres 或 sqlite；为空时不持久化用量流水
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite" mapstructure:"sqlite"`
}

// SQLiteConfig 本地开发用的 SQLite 配置
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
	// IntentTTL 意图分类结果缓存时长，0 表示不缓存
	IntentTTL time.Duration `yaml:"intent_ttl" mapstructure:"intent_ttl"`
	// ResearchTTL 检索结果缓存时长，0 表示不缓存
	ResearchTTL time.Duration `yaml:"research_ttl" mapstructure:"research_ttl"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`

	// Tiers 生成级联，按能力/成本从高到低排列
	Tiers []TierConfig `yaml:"tiers" mapstructure:"tiers"`

	// Roles 辅助调用（意图/检索/审校）使用的提供商与模型
	Roles RolesConfig `yaml:"roles" mapstructure:"roles"`

	// Safety 内容审核配置，随每次生成调用下发
	Safety []SafetySetting `yaml:"safety" mapstructure:"safety"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Capabilities 后端接受的扩展请求字段：thinking、safety_settings
	Capabilities []string `yaml:"capabilities" mapstructure:"capabilities"`
}

// Supports 提供商是否声明了某项能力
func (p ProviderConfig) Supports(capability string) bool {
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// TierConfig 级联中的一个候选后端
type TierConfig struct {
	Name     string `yaml:"name" mapstructure:"name"`
	Provider string `yaml:"provider" mapstructure:"provider"`
	Model    string `yaml:"model" mapstructure:"model"`
	// BudgetMultiplier 推理预算倍率
	BudgetMultiplier float64 `yaml:"budget_multiplier" mapstructure:"budget_multiplier"`
	// Stream 是否流式调用
	Stream bool `yaml:"stream" mapstructure:"stream"`
	// Thinking 请求推理预算；提供商未声明 thinking 能力时忽略
	Thinking bool `yaml:"thinking" mapstructure:"thinking"`
	// Timeout 单次调用截止时间
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RolesConfig 辅助调用角色
type RolesConfig struct {
	Intent   RoleConfig `yaml:"intent" mapstructure:"intent"`
	Research RoleConfig `yaml:"research" mapstructure:"research"`
	Critic   RoleConfig `yaml:"critic" mapstructure:"critic"`
}

// RoleConfig 单个角色的调用配置
type RoleConfig struct {
	Provider string        `yaml:"provider" mapstructure:"provider"`
	Model    string        `yaml:"model" mapstructure:"model"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SafetySetting 内容审核阈值
type SafetySetting struct {
	Category  string `yaml:"category" mapstructure:"category" json:"category"`
	Threshold string `yaml:"threshold" mapstructure:"threshold" json:"threshold"`
}

// ResilienceConfig 弹性配置
type ResilienceConfig struct {
	Retry          RetryConfig   `yaml:"retry" mapstructure:"retry"`
	CascadeBreaker BreakerConfig `yaml:"cascade_breaker" mapstructure:"cascade_breaker"`
	CriticBreaker  BreakerConfig `yaml:"critic_breaker" mapstructure:"critic_breaker"`
	Repair         RepairConfig  `yaml:"repair" mapstructure:"repair"`
}

// RetryConfig 重试配置
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay" mapstructure:"initial_delay"`
}

// BreakerConfig 熔断配置
type BreakerConfig struct {
	Threshold int           `yaml:"threshold" mapstructure:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
}

// RepairConfig 流式 JSON 修复配置
type RepairConfig struct {
	// Workers 修复 worker 数量，0 表示在调用方 goroutine 内联执行
	Workers   int `yaml:"workers" mapstructure:"workers"`
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
	// PreviewEvery 每累计多少个 chunk 做一次预览修复
	PreviewEvery int `yaml:"preview_every" mapstructure:"preview_every"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Quota     QuotaConfig     `yaml:"quota" mapstructure:"quota"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// QuotaConfig 调用方配额，按 X-Client-ID 统计
type QuotaConfig struct {
	// MaxTokensPerDay 每日 token 上限，0 表示不限
	MaxTokensPerDay int64 `yaml:"max_tokens_per_day" mapstructure:"max_tokens_per_day"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// FeaturesConfig 功能开关配置
type FeaturesConfig struct {
	Research       FeatureToggle `yaml:"research" mapstructure:"research"`
	Critic         FeatureToggle `yaml:"critic" mapstructure:"critic"`
	UsageRecording FeatureToggle `yaml:"usage_recording" mapstructure:"usage_recording"`
}

// FeatureToggle 通用开关
type FeatureToggle struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}
