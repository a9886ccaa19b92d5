package entity

// ResearchSource 检索引用
type ResearchSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// ResearchContext 检索增强上下文；零值是合法且惰性的
type ResearchContext struct {
	Text    string           `json:"text"`
	Sources []ResearchSource `json:"sources"`
}

// IsEmpty 是否没有任何可用内容
func (r ResearchContext) IsEmpty() bool {
	return r.Text == "" && len(r.Sources) == 0
}
