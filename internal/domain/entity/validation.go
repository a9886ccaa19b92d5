package entity

// ValidationStatus 评分等级
type ValidationStatus string

const (
	ValidationCritical ValidationStatus = "critical"
	ValidationWarning  ValidationStatus = "warning"
	ValidationGood     ValidationStatus = "good"
	ValidationOptimal  ValidationStatus = "optimal"
)

// StatusForScore 按固定阈值把总分映射为等级
func StatusForScore(score int) ValidationStatus {
	switch {
	case score < 50:
		return ValidationCritical
	case score < 75:
		return ValidationWarning
	case score < 90:
		return ValidationGood
	default:
		return ValidationOptimal
	}
}

// ScoreBreakdown 分项得分
type ScoreBreakdown struct {
	Completeness int `json:"completeness"`
	Specificity  int `json:"specificity"`
	Balance      int `json:"balance"`
	Coherence    int `json:"coherence"`
}

// Total 分项求和
func (b ScoreBreakdown) Total() int {
	return b.Completeness + b.Specificity + b.Balance + b.Coherence
}

// ValidationResult 校验结果，纯函数输出，不落库
type ValidationResult struct {
	Score       int              `json:"score"`
	Status      ValidationStatus `json:"status"`
	Issues      []string         `json:"issues"`
	Suggestions []string         `json:"suggestions"`
	Conflicts   []string         `json:"conflicts"`
	Breakdown   ScoreBreakdown   `json:"breakdown"`
}
