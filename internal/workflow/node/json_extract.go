package node

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// StripCodeFence 去掉模型输出外层的 ``` 代码块标记（含 ```json 语言标注）。
// 流式片段可能只有开头的 fence，此时只去掉开头。
func StripCodeFence(s string) string {
	raw := strings.TrimSpace(s)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```")
	if nl := strings.IndexByte(raw, '\n'); nl >= 0 {
		lang := strings.TrimSpace(raw[:nl])
		if lang == "" || isFenceLang(lang) {
			raw = raw[nl+1:]
		}
	} else if isFenceLang(strings.TrimSpace(raw)) {
		return ""
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}

func isFenceLang(s string) bool {
	switch strings.ToLower(s) {
	case "json", "jsonc", "json5", "javascript", "js":
		return true
	default:
		return false
	}
}

// ExtractJSONObject 尝试从模型输出中截取“第一个完整 JSON 对象/数组”。
// 模型可能会在 JSON 前后夹杂多余文本或代码块标记。
func ExtractJSONObject(s string) string {
	raw := StripCodeFence(s)
	if raw == "" {
		return raw
	}

	objStart := strings.Index(raw, "{")
	arrStart := strings.Index(raw, "[")
	start := -1
	end := -1
	switch {
	case objStart >= 0 && (arrStart < 0 || objStart < arrStart):
		start = objStart
		end = strings.LastIndex(raw, "}")
	case arrStart >= 0:
		start = arrStart
		end = strings.LastIndex(raw, "]")
	}
	if start >= 0 && end > start {
		raw = raw[start : end+1]
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err == nil {
		if d, ok := tok.(json.Delim); ok && (d == '{' || d == '[') {
			return raw
		}
	}

	// 兜底：能被完整消费则原样返回，否则退回原始输入
	dec = json.NewDecoder(strings.NewReader(raw))
	for {
		_, e := dec.Token()
		if e != nil {
			if errors.Is(e, io.EOF) {
				break
			}
			return strings.TrimSpace(s)
		}
	}
	return raw
}
