package model

import "time"

// Role 辅助调用（意图/检索/审校）的后端选择
type Role struct {
	Provider string
	Model    string
	Timeout  time.Duration
}

// SafetySetting 内容审核阈值，随生成调用下发
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type LLMUsageMeta struct {
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Temperature      float64
	GeneratedAt      time.Time
}
