package node

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"z-song-ai-api/internal/domain/entity"
)

// 模型消息 Extra 中可能携带检索来源的键
var sourceExtraKeys = []string{"sources", "citations", "grounding_sources", "annotations"}

// TokenUsage token 用量
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// BackendResponse 后端响应的显式结构。Text 必有；其余字段可选，缺省为零值。
type BackendResponse struct {
	Text         string
	Reasoning    string
	FinishReason string
	Usage        *TokenUsage
	Sources      []entity.ResearchSource
}

// AdaptMessage 将 eino 消息一次性映射为 BackendResponse
func AdaptMessage(msg *schema.Message) (*BackendResponse, error) {
	if msg == nil {
		return nil, fmt.Errorf("empty llm response")
	}
	out := &BackendResponse{
		Text:      msg.Content,
		Reasoning: msg.ReasoningContent,
	}
	if msg.ResponseMeta != nil {
		out.FinishReason = msg.ResponseMeta.FinishReason
		if u := msg.ResponseMeta.Usage; u != nil {
			out.Usage = &TokenUsage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens}
		}
	}
	for _, key := range sourceExtraKeys {
		if raw, ok := msg.Extra[key]; ok {
			out.Sources = append(out.Sources, parseSources(raw)...)
		}
	}
	out.Sources = DedupSources(out.Sources)
	return out, nil
}

// ConcatChunks 将流式分片合并为一条消息
func ConcatChunks(chunks []*schema.Message) (*schema.Message, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("empty llm stream")
	}
	return schema.ConcatMessages(chunks)
}

// DedupSources 按 URI 去重，保留首次出现的顺序
func DedupSources(in []entity.ResearchSource) []entity.ResearchSource {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]entity.ResearchSource, 0, len(in))
	for _, s := range in {
		uri := strings.TrimSpace(s.URI)
		if uri == "" {
			continue
		}
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		out = append(out, entity.ResearchSource{URI: uri, Title: strings.TrimSpace(s.Title)})
	}
	return out
}

// ParseSources 解析 [{uri,title}] / [{url,title}] / ["uri"] 等形态
func ParseSources(raw any) []entity.ResearchSource {
	return DedupSources(parseSources(raw))
}

func parseSources(raw any) []entity.ResearchSource {
	switch t := raw.(type) {
	case []entity.ResearchSource:
		return t
	case []string:
		out := make([]entity.ResearchSource, 0, len(t))
		for _, s := range t {
			out = append(out, entity.ResearchSource{URI: s})
		}
		return out
	case []any:
		out := make([]entity.ResearchSource, 0, len(t))
		for _, it := range t {
			out = append(out, parseSources(it)...)
		}
		return out
	case string:
		return []entity.ResearchSource{{URI: t}}
	case map[string]any:
		// OpenAI annotations: {"type":"url_citation","url_citation":{"url":..,"title":..}}
		if inner, ok := t["url_citation"]; ok {
			return parseSources(inner)
		}
		if inner, ok := t["web"]; ok {
			return parseSources(inner)
		}
		uri := firstString(t, "uri", "url", "link")
		if uri == "" {
			return nil
		}
		return []entity.ResearchSource{{URI: uri, Title: firstString(t, "title", "name")}}
	default:
		return nil
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
