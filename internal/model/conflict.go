package model

// Conflict severities, derived from the relative difference between expected
// and actual values.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Conflict records one arithmetic mismatch: a row whose actual value for a
// calculated field disagrees with the value its calculation rule produces.
type Conflict struct {
	RowIndex      int      `json:"row_index"`
	Field         string   `json:"field"`
	ExpectedValue string   `json:"expected_value"`
	ActualValue   string   `json:"actual_value"`
	Difference    string   `json:"difference"`
	Severity      string   `json:"severity"`
	AutoFixable   bool     `json:"auto_fixable"`
	CascadeFields []string `json:"cascade_fields,omitempty"`
	CascadeImpact int      `json:"cascade_impact"`
}
