package node

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"z-song-ai-api/internal/domain/entity"
)

// CoerceArtifact 将修复/解析得到的对象按字段契约转为歌曲简报：
// 缺失字段为空串，数组以 ", " 连接，超长按 rune 截断。
func CoerceArtifact(fields map[string]any) *entity.SongArtifact {
	a := &entity.SongArtifact{}
	for _, name := range entity.ArtifactFields {
		v, ok := fields[name]
		if !ok {
			continue
		}
		a.SetField(name, TruncateByRunes(coerceString(v), entity.FieldLimits[name]))
	}
	return a
}

// CountArtifactFields 返回对象中出现的已知字段数
func CountArtifactFields(fields map[string]any) int {
	n := 0
	for _, name := range entity.ArtifactFields {
		if v, ok := fields[name]; ok && v != nil {
			n++
		}
	}
	return n
}

// MergeArtifact 将部分字段覆盖到 base 的副本上，未出现或为空的字段保留原值。
// 返回合并结果与实际变化的字段名。
func MergeArtifact(base *entity.SongArtifact, patch map[string]any) (*entity.SongArtifact, []string) {
	out := base.Clone()
	var changed []string
	for _, name := range entity.ArtifactFields {
		v, ok := patch[name]
		if !ok || v == nil {
			continue
		}
		next := TruncateByRunes(coerceString(v), entity.FieldLimits[name])
		if strings.TrimSpace(next) == "" || next == out.Field(name) {
			continue
		}
		out.SetField(name, next)
		changed = append(changed, name)
	}
	return out, changed
}

// SetBackendUsed 写入诊断字段
func SetBackendUsed(a *entity.SongArtifact, backend string) {
	if a == nil {
		return
	}
	a.BackendUsed = TruncateByRunes(strings.TrimSpace(backend), entity.MaxBackendUsedRunes)
}

func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, it := range t {
			parts = append(parts, coerceString(it))
		}
		return JoinNonEmpty(parts, ", ")
	case []string:
		return JoinNonEmpty(t, ", ")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
