package model

// MasterEntity is one row of a tenant's master-data table, read through the
// schema/master-data gateway. Immutable within a resolution call.
type MasterEntity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Code  string `json:"code,omitempty"`
	Alias string `json:"alias,omitempty"`
}

// MatchCandidate is an ephemeral scored pairing of an incoming record with a
// master entity, produced during entity resolution.
type MatchCandidate struct {
	MasterID       string  `json:"master_id"`
	MasterName     string  `json:"master_name"`
	NameSimilarity float64 `json:"name_similarity"`
	CodeSimilarity float64 `json:"code_similarity"`
	CompositeScore float64 `json:"composite_score"`
}

// Column describes one column of a warehouse table, as reported by the
// schema gateway.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}
