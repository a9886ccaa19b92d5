package node

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"z-song-ai-api/internal/domain/entity"
	"z-song-ai-api/pkg/metrics"
)

// RepairStage 修复结果来自哪一层
type RepairStage string

const (
	RepairStageStrict     RepairStage = "strict"
	RepairStageStructural RepairStage = "structural"
	RepairStageRegex      RepairStage = "regex"
	RepairStageEmpty      RepairStage = "empty"
)

// 结构补全失败后，最多回退到前几个逗号位置重试
const maxStructuralCuts = 4

// StrictParseJSON 严格解析模型输出为 JSON 对象；允许外层代码块与前后杂文本
func StrictParseJSON(text string) (map[string]any, error) {
	raw := ExtractJSONObject(text)
	if raw == "" {
		return nil, fmt.Errorf("empty json payload")
	}
	return decodeObject(raw)
}

// RepairJSON 尽力从可能被截断的 JSON 片段中恢复对象，永不失败；
// 最坏情况返回空 map。
func RepairJSON(fragment string) map[string]any {
	out, _ := RepairJSONWithStage(fragment)
	return out
}

// RepairJSONWithStage 同 RepairJSON，并返回命中的修复阶段
func RepairJSONWithStage(fragment string) (map[string]any, RepairStage) {
	out, stage := repairJSON(fragment)
	metrics.StreamRepairTotal.WithLabelValues(string(stage)).Inc()
	return out, stage
}

func repairJSON(fragment string) (map[string]any, RepairStage) {
	raw := StripCodeFence(fragment)
	if start := strings.IndexByte(raw, '{'); start > 0 {
		raw = raw[start:]
	}
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, RepairStageEmpty
	}

	if out, err := decodeObject(raw); err == nil {
		return out, RepairStageStrict
	}
	if out, ok := repairStructural(raw); ok {
		return out, RepairStageStructural
	}
	if out := extractKnownFields(raw); len(out) > 0 {
		return out, RepairStageRegex
	}
	return map[string]any{}, RepairStageEmpty
}

func decodeObject(raw string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("json payload is not an object")
	}
	return out, nil
}

// fragmentScan 记录一次逐字符扫描的结果
type fragmentScan struct {
	inString bool
	escaped  bool
	stack    []byte
	// 字符串外的逗号位置，补全失败时作为截断点
	commas []int
}

func scanFragment(s string) fragmentScan {
	var st fragmentScan
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.inString {
			switch {
			case st.escaped:
				st.escaped = false
			case c == '\\':
				st.escaped = true
			case c == '"':
				st.inString = false
			}
			continue
		}
		switch c {
		case '"':
			st.inString = true
		case '{':
			st.stack = append(st.stack, '}')
		case '[':
			st.stack = append(st.stack, ']')
		case '}', ']':
			if n := len(st.stack); n > 0 && st.stack[n-1] == c {
				st.stack = st.stack[:n-1]
			}
		case ',':
			st.commas = append(st.commas, i)
		}
	}
	return st
}

// closeFragment 为片段补上缺失的引号与闭合括号
func closeFragment(s string) string {
	st := scanFragment(s)

	var b strings.Builder
	b.Grow(len(s) + len(st.stack) + 2)
	if st.inString {
		if st.escaped {
			s = s[:len(s)-1]
		}
		b.WriteString(s)
		b.WriteByte('"')
	} else {
		trimmed := strings.TrimRight(s, " \t\r\n")
		trimmed = strings.TrimSuffix(trimmed, ",")
		b.WriteString(trimmed)
		if strings.HasSuffix(trimmed, ":") {
			b.WriteString("null")
		}
	}
	for i := len(st.stack) - 1; i >= 0; i-- {
		b.WriteByte(st.stack[i])
	}
	return b.String()
}

func repairStructural(raw string) (map[string]any, bool) {
	if out, err := decodeObject(closeFragment(raw)); err == nil {
		return out, true
	}

	// 末尾可能停在半个 key 或半个字面量上，逐个回退到更早的逗号
	commas := scanFragment(raw).commas
	for i, cuts := len(commas)-1, 0; i >= 0 && cuts < maxStructuralCuts; i, cuts = i-1, cuts+1 {
		if out, err := decodeObject(closeFragment(raw[:commas[i]])); err == nil {
			return out, true
		}
	}
	return nil, false
}

var knownFieldPatterns = buildFieldPatterns(entity.ArtifactFields)

func buildFieldPatterns(fields []string) map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(fields))
	for _, f := range fields {
		out[f] = regexp.MustCompile(`"` + regexp.QuoteMeta(f) + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	}
	return out
}

// extractKnownFields 逐个字段正则提取，返回能定位到的子集
func extractKnownFields(raw string) map[string]any {
	out := make(map[string]any)
	for _, f := range entity.ArtifactFields {
		m := knownFieldPatterns[f].FindStringSubmatch(raw)
		if len(m) < 2 {
			continue
		}
		out[f] = unescapeJSONString(m[1])
	}
	return out
}

func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
