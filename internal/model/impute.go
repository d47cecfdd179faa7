package model

// ImputationLogEntry is the audit record for one filled cell. Every fill is
// traceable to a row/field pair, the method that produced it, and a
// method-fixed confidence, and is revertible by restoring the original null.
type ImputationLogEntry struct {
	RowIndex         int     `json:"row_index"`
	Field            string  `json:"field"`
	OriginalValue    any     `json:"original_value"`
	ImputedValue     any     `json:"imputed_value"`
	Method           string  `json:"method"`
	Confidence       float64 `json:"confidence"`
	RiskLevel        string  `json:"risk_level"`
	BusinessCritical bool    `json:"business_critical"`
	Revertible       bool    `json:"revertible"`
}

// BlockedField reports a field the risk gate excluded from imputation and
// why.
type BlockedField struct {
	Field        string `json:"field"`
	Reason       string `json:"reason"`
	MissingCount int    `json:"missing_count"`
}
