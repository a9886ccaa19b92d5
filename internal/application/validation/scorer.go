package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"z-song-ai-api/internal/domain/entity"
)

// 分项满分
const (
	CompletenessMax = 30
	SpecificityMax  = 30
	BalanceMax      = 20
	CoherenceMax    = 20
)

const (
	pointsPerHighImpact = 6
	conflictPenalty     = 5

	minKeywordWords      = 8
	maxKeywordWords      = 120
	wordBandPenalty      = 6
	maxTags              = 12
	tagOverflowPenalty   = 4
	frontLoadWindow      = 6
	frontLoadPenalty     = 4
	missingMarkerPenalty = 2

	slowBPM = 80
	fastBPM = 130
)

var bpmPattern = regexp.MustCompile(`(\d{2,3})\s*-?\s*bpm`)

type compiledCategory struct {
	name       string
	suggestion string
	matcher    termMatcher
}

type compiledConflict struct {
	a, b   string
	aTerms termMatcher
	bTerms termMatcher
}

// Scorer 基于词表的规则评分器。创建后只读，可并发使用。
type Scorer struct {
	categories  []compiledCategory
	highImpact  termMatcher
	conflicts   []compiledConflict
	frontLoad   termMatcher
	perCategory int
}

// NewScorer 编译词表
func NewScorer(v *Vocabulary) (*Scorer, error) {
	if v == nil {
		return nil, fmt.Errorf("vocabulary is nil")
	}
	if err := v.validate(); err != nil {
		return nil, err
	}

	s := &Scorer{
		highImpact:  newTermMatcher(v.HighImpact),
		perCategory: CompletenessMax / len(v.Categories),
	}
	var front []string
	for _, c := range v.Categories {
		s.categories = append(s.categories, compiledCategory{
			name:       c.Name,
			suggestion: c.Suggestion,
			matcher:    newTermMatcher(c.Terms),
		})
		if c.Name == "genre" || c.Name == "vocal" {
			front = append(front, c.Terms...)
		}
	}
	s.frontLoad = newTermMatcher(front)
	for _, p := range v.Conflicts {
		s.conflicts = append(s.conflicts, compiledConflict{
			a:      p.A.Label,
			b:      p.B.Label,
			aTerms: newTermMatcher(append([]string{p.A.Label}, p.A.Terms...)),
			bTerms: newTermMatcher(append([]string{p.B.Label}, p.B.Terms...)),
		})
	}
	return s, nil
}

var defaultScorer = sync.OnceValues(func() (*Scorer, error) {
	v, err := DefaultVocabulary()
	if err != nil {
		return nil, err
	}
	return NewScorer(v)
})

// Default 使用内置词表的评分器
func Default() *Scorer {
	s, err := defaultScorer()
	if err != nil {
		panic(fmt.Sprintf("validation: embedded vocabulary is invalid: %v", err))
	}
	return s
}

// Score 评分。纯函数，对任意形状的简报（包括 nil 与零值）都返回结果。
func (s *Scorer) Score(a *entity.SongArtifact) entity.ValidationResult {
	if a == nil {
		a = &entity.SongArtifact{}
	}
	res := entity.ValidationResult{
		Issues:      []string{},
		Suggestions: []string{},
		Conflicts:   []string{},
	}

	text := keywordText(a)
	bpm, hasBPM := detectBPM(text)

	res.Breakdown.Completeness = s.completeness(text, hasBPM, &res)
	res.Breakdown.Specificity = s.specificity(text, &res)
	res.Breakdown.Balance = s.balance(a, text, &res)
	res.Breakdown.Coherence = s.coherence(text+tempoMarkers(bpm, hasBPM), &res)

	res.Score = clamp(res.Breakdown.Total(), 0, 100)
	res.Status = entity.StatusForScore(res.Score)
	return res
}

// keywordText 参与关键词匹配的描述性字段（小写）
func keywordText(a *entity.SongArtifact) string {
	return strings.ToLower(strings.TrimSpace(a.TagSummary + "\n" + a.StyleDescription))
}

func detectBPM(text string) (int, bool) {
	m := bpmPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// tempoMarkers 把 bpm 数值转换为可参与冲突检测的速度标签
func tempoMarkers(bpm int, ok bool) string {
	switch {
	case !ok:
		return ""
	case bpm <= slowBPM:
		return "\nslow-tempo"
	case bpm >= fastBPM:
		return "\nfast-tempo"
	default:
		return ""
	}
}

func (s *Scorer) completeness(text string, hasBPM bool, res *entity.ValidationResult) int {
	score := 0
	for _, c := range s.categories {
		present := c.matcher.found(text)
		if c.name == "tempo" && hasBPM {
			present = true
		}
		if present {
			score += s.perCategory
			continue
		}
		res.Issues = append(res.Issues, fmt.Sprintf("missing %s descriptor", c.name))
		if c.suggestion != "" {
			res.Suggestions = append(res.Suggestions, c.suggestion)
		}
	}
	return score
}

func (s *Scorer) specificity(text string, res *entity.ValidationResult) int {
	hits := s.highImpact.matches(text)
	if len(hits) == 0 {
		res.Suggestions = append(res.Suggestions,
			"Add production-specific detail such as 'sidechained synth bass' or 'gated reverb drums'.")
		return 0
	}
	return min(len(hits)*pointsPerHighImpact, SpecificityMax)
}

func (s *Scorer) balance(a *entity.SongArtifact, text string, res *entity.ValidationResult) int {
	score := BalanceMax

	words := len(strings.Fields(text))
	switch {
	case words < minKeywordWords:
		score -= wordBandPenalty
		res.Suggestions = append(res.Suggestions,
			fmt.Sprintf("Descriptors are thin (%d words); expand the tags and style description.", words))
	case words > maxKeywordWords:
		score -= wordBandPenalty
		res.Suggestions = append(res.Suggestions,
			fmt.Sprintf("Descriptors are long (%d words); trim them to the strongest %d.", words, maxKeywordWords))
	}

	if tags := countTags(a.TagSummary); tags > maxTags {
		score -= tagOverflowPenalty
		res.Suggestions = append(res.Suggestions,
			fmt.Sprintf("Tag list has %d entries; keep it to %d or fewer.", tags, maxTags))
	}

	if !s.frontLoad.found(leadingWords(a.StyleDescription, frontLoadWindow)) {
		score -= frontLoadPenalty
		res.Suggestions = append(res.Suggestions,
			"Open the style description with the genre or vocal type.")
	}

	if !strings.Contains(a.Body, entity.TerminalMarker) {
		score -= missingMarkerPenalty
		res.Issues = append(res.Issues, fmt.Sprintf("body is missing the closing %s marker", entity.TerminalMarker))
	}
	return max(score, 0)
}

func (s *Scorer) coherence(text string, res *entity.ValidationResult) int {
	score := CoherenceMax
	for _, c := range s.conflicts {
		if c.aTerms.found(text) && c.bTerms.found(text) {
			score -= conflictPenalty
			res.Conflicts = append(res.Conflicts, c.a+" vs "+c.b)
		}
	}
	return max(score, 0)
}

func countTags(summary string) int {
	n := 0
	for _, t := range strings.Split(summary, ",") {
		if strings.TrimSpace(t) != "" {
			n++
		}
	}
	return n
}

func leadingWords(s string, n int) string {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
