package entity

import "strings"

// Tone 情绪基调
type Tone string

const (
	ToneNeutral     Tone = "neutral"
	ToneUplifting   Tone = "uplifting"
	ToneMelancholic Tone = "melancholic"
	ToneEnergetic   Tone = "energetic"
	ToneDark        Tone = "dark"
	ToneRomantic    Tone = "romantic"
	TonePlayful     Tone = "playful"
)

var knownTones = map[Tone]struct{}{
	ToneNeutral: {}, ToneUplifting: {}, ToneMelancholic: {}, ToneEnergetic: {},
	ToneDark: {}, ToneRomantic: {}, TonePlayful: {},
}

// ParseTone 解析基调，未知值归为 neutral
func ParseTone(s string) Tone {
	t := Tone(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownTones[t]; ok {
		return t
	}
	return ToneNeutral
}

// Complexity 请求复杂度，决定推理预算
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// ParseComplexity 解析复杂度，未知值归为 moderate
func ParseComplexity(s string) Complexity {
	switch Complexity(strings.ToLower(strings.TrimSpace(s))) {
	case ComplexitySimple:
		return ComplexitySimple
	case ComplexityComplex:
		return ComplexityComplex
	default:
		return ComplexityModerate
	}
}

// IntentProfile 意图分类结果，产出后不可变
type IntentProfile struct {
	Tone          Tone       `json:"tone"`
	Complexity    Complexity `json:"complexity"`
	NeedsResearch bool       `json:"needs_research"`
}

// DefaultIntentProfile 分类失败时使用的兜底画像
func DefaultIntentProfile() IntentProfile {
	return IntentProfile{Tone: ToneNeutral, Complexity: ComplexityModerate}
}
