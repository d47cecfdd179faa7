package model

// Importability verdicts.
const (
	ImportExcellent = "excellent"
	ImportGood      = "good"
	ImportFixable   = "fixable"
	ImportRejected  = "rejected"
)

// QualityDimensionResult is the outcome of one quality dimension: a score in
// [0,1], the fixed weight it contributes to the overall score, and
// dimension-specific details for the operator.
type QualityDimensionResult struct {
	Score   float64        `json:"score"`
	Weight  float64        `json:"weight"`
	Details map[string]any `json:"details,omitempty"`
}

// QualityIssue is one reported problem, traceable to a field and, where
// applicable, example values. Blocking issues force rejection; fixable issues
// may be auto-corrected before load.
type QualityIssue struct {
	Dimension   string   `json:"dimension"`
	Field       string   `json:"field,omitempty"`
	Description string   `json:"description"`
	AutoFixable bool     `json:"auto_fixable"`
	Examples    []string `json:"examples,omitempty"`
	Count       int      `json:"count,omitempty"`
}

// QualityVerdict is the assessor's final judgment on a batch.
type QualityVerdict struct {
	OverallScore    float64                           `json:"overall_score"`
	Importability   string                            `json:"importability"`
	Dimensions      map[string]QualityDimensionResult `json:"dimensions"`
	BlockingIssues  []QualityIssue                    `json:"blocking_issues"`
	FixableIssues   []QualityIssue                    `json:"fixable_issues"`
	Recommendations []string                          `json:"recommendations"`
}
