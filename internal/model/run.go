package model

import (
	"encoding/json"
	"time"
)

// Run is the persisted audit record of one enhancement run: which tenant and
// batch it covered, the verdict reached, and the full result payload for
// later review.
type Run struct {
	ID               string          `json:"id"`
	Tenant           string          `json:"tenant"`
	Table            string          `json:"table"`
	RecordCount      int             `json:"record_count"`
	Decision         string          `json:"decision"`
	RequiresApproval bool            `json:"requires_approval"`
	Result           json.RawMessage `json:"result,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}
