// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "z_song"
)

var (
	// HTTP 请求指标；mode 区分普通请求（unary）与 SSE 流（stream）
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status", "mode"},
	)

	// HTTPRequestDuration 仅统计普通请求，SSE 流另记
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Non-streaming HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Non-streaming HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "route"},
	)

	// SSEStreamDuration 一次生成流从建立到结束的时长；outcome 为 completed 或 client_gone
	SSEStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "sse_stream_duration_seconds",
			Help:      "Song generation SSE stream duration in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320},
		},
		[]string{"route", "outcome"},
	)

	// 业务指标 - 歌曲生成
	SongGenerationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "song",
			Name:      "generation_total",
			Help:      "Total number of song generations",
		},
		[]string{"status"},
	)

	SongGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "song",
			Name:      "generation_duration_seconds",
			Help:      "Song generation duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"backend"},
	)

	// LLM 指标
	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total tokens used for LLM calls",
		},
		[]string{"workflow", "provider", "model", "type"}, // type: prompt/completion
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM call duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120},
		},
		[]string{"workflow", "provider", "model"},
	)

	LLMCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_total",
			Help:      "Total number of LLM calls",
		},
		[]string{"workflow", "provider", "model", "status"},
	)

	// 级联生成指标
	CascadeTierAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "tier_attempts_total",
			Help:      "Total number of generation attempts per tier",
		},
		[]string{"tier", "status"}, // status: success/failure/rejected
	)

	StreamRepairTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "stream_repair_total",
			Help:      "Partial JSON repair outcomes by stage",
		},
		[]string{"stage"}, // stage: strict/structural/regex/empty
	)

	// 弹性指标
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Total number of retries performed",
		},
		[]string{"operation"},
	)

	BreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "Whether the circuit breaker is open (1) or closed (0)",
		},
		[]string{"breaker"},
	)

	BreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_rejections_total",
			Help:      "Calls rejected while the circuit breaker was open",
		},
		[]string{"breaker"},
	)

	// 审校指标
	CritiqueOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "critic",
			Name:      "outcome_total",
			Help:      "Critique loop outcomes",
		},
		[]string{"outcome"}, // outcome: pass/refined/degraded
	)

	// 校验指标
	ValidationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "total",
			Help:      "Total number of validations",
		},
		[]string{"status"},
	)

	ValidationScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "score",
			Help:      "Distribution of validation scores",
			Buckets:   []float64{25, 50, 60, 75, 80, 90, 95, 100},
		},
	)

	// 缓存指标
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by namespace and result",
		},
		[]string{"namespace", "result"}, // result: hit/miss/error
	)
)
