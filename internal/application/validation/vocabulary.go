// Package validation 歌曲简报的确定性评分
package validation

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

// Category 完整度类别
type Category struct {
	Name       string   `yaml:"name"`
	Terms      []string `yaml:"terms"`
	Suggestion string   `yaml:"suggestion"`
}

// ConceptSide 互斥概念的一侧
type ConceptSide struct {
	Label string   `yaml:"label"`
	Terms []string `yaml:"terms"`
}

// ConflictPair 互斥概念对
type ConflictPair struct {
	A ConceptSide `yaml:"a"`
	B ConceptSide `yaml:"b"`
}

// Vocabulary 评分词表，属于外部静态配置
type Vocabulary struct {
	Categories []Category     `yaml:"categories"`
	HighImpact []string       `yaml:"high_impact"`
	Conflicts  []ConflictPair `yaml:"conflicts"`
}

// DefaultVocabulary 返回内置词表
func DefaultVocabulary() (*Vocabulary, error) {
	return ParseVocabulary(defaultVocabularyYAML)
}

// LoadVocabularyFile 从 YAML 文件加载词表
func LoadVocabularyFile(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary: %w", err)
	}
	defer f.Close()
	return ReadVocabulary(f)
}

// ReadVocabulary 从 reader 读取 YAML 词表
func ReadVocabulary(r io.Reader) (*Vocabulary, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	return ParseVocabulary(raw)
}

// ParseVocabulary 解析并校验 YAML 词表
func ParseVocabulary(raw []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
	}
	if err := v.validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

func (v *Vocabulary) validate() error {
	if len(v.Categories) == 0 {
		return fmt.Errorf("vocabulary: at least one category is required")
	}
	seen := make(map[string]struct{}, len(v.Categories))
	for i, c := range v.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return fmt.Errorf("vocabulary: categories[%d].name is required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("vocabulary: duplicate category %q", name)
		}
		seen[name] = struct{}{}
		if len(c.Terms) == 0 {
			return fmt.Errorf("vocabulary: category %q has no terms", name)
		}
	}
	for i, p := range v.Conflicts {
		if p.A.Label == "" || p.B.Label == "" {
			return fmt.Errorf("vocabulary: conflicts[%d] needs labels on both sides", i)
		}
		if len(p.A.Terms) == 0 || len(p.B.Terms) == 0 {
			return fmt.Errorf("vocabulary: conflicts[%d] needs terms on both sides", i)
		}
	}
	return nil
}

// termMatcher 对一组词做整词匹配（大小写不敏感）
type termMatcher struct {
	terms    []string
	patterns []*regexp.Regexp
}

func newTermMatcher(terms []string) termMatcher {
	m := termMatcher{}
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		m.terms = append(m.terms, t)
		m.patterns = append(m.patterns, regexp.MustCompile(`(?:^|[^a-z0-9])`+regexp.QuoteMeta(t)+`(?:$|[^a-z0-9])`))
	}
	return m
}

// found 文本（已小写）中是否出现任一词
func (m termMatcher) found(text string) bool {
	for _, p := range m.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// matches 返回出现过的不同词
func (m termMatcher) matches(text string) []string {
	var out []string
	for i, p := range m.patterns {
		if p.MatchString(text) {
			out = append(out, m.terms[i])
		}
	}
	return out
}
