// Package entity 定义领域实体
package entity

// 歌曲简报字段名（同时也是模型输出 JSON 的键名）
const (
	FieldTitle            = "title"
	FieldTagSummary       = "tag_summary"
	FieldStyleDescription = "style_description"
	FieldBody             = "body"
	FieldRationale        = "rationale"
)

// ArtifactFields 模型需要产出的字段，按输出顺序排列
var ArtifactFields = []string{
	FieldTitle,
	FieldTagSummary,
	FieldStyleDescription,
	FieldBody,
	FieldRationale,
}

// 字段长度上限（按 rune 计），超长截断而非拒绝
const (
	MaxTitleRunes       = 120
	MaxTagSummaryRunes  = 300
	MaxStyleRunes       = 1000
	MaxBodyRunes        = 5000
	MaxRationaleRunes   = 2000
	MaxBackendUsedRunes = 64
)

// FieldLimits 字段名到长度上限的映射
var FieldLimits = map[string]int{
	FieldTitle:            MaxTitleRunes,
	FieldTagSummary:       MaxTagSummaryRunes,
	FieldStyleDescription: MaxStyleRunes,
	FieldBody:             MaxBodyRunes,
	FieldRationale:        MaxRationaleRunes,
}

// TerminalMarker 歌词正文的结束标记
const TerminalMarker = "[End]"

// SongArtifact 生成的歌曲简报。
// 所有字段总是存在（可能为空串），由级联生成创建，仅由审校环节整体替换字段。
type SongArtifact struct {
	Title            string `json:"title"`
	TagSummary       string `json:"tag_summary"`
	StyleDescription string `json:"style_description"`
	Body             string `json:"body"`
	Rationale        string `json:"rationale"`
	BackendUsed      string `json:"backend_used"`
}

// Field 按字段名读取
func (a *SongArtifact) Field(name string) string {
	if a == nil {
		return ""
	}
	switch name {
	case FieldTitle:
		return a.Title
	case FieldTagSummary:
		return a.TagSummary
	case FieldStyleDescription:
		return a.StyleDescription
	case FieldBody:
		return a.Body
	case FieldRationale:
		return a.Rationale
	default:
		return ""
	}
}

// SetField 按字段名写入，未知字段忽略
func (a *SongArtifact) SetField(name, value string) {
	if a == nil {
		return
	}
	switch name {
	case FieldTitle:
		a.Title = value
	case FieldTagSummary:
		a.TagSummary = value
	case FieldStyleDescription:
		a.StyleDescription = value
	case FieldBody:
		a.Body = value
	case FieldRationale:
		a.Rationale = value
	}
}

// Clone 返回浅拷贝
func (a *SongArtifact) Clone() *SongArtifact {
	if a == nil {
		return &SongArtifact{}
	}
	cp := *a
	return &cp
}
