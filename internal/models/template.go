package models

import (
	"time"

	"github.com/google/uuid"
)

// ActionTemplate is an org-scoped config baseline for one action type.
// Caller overrides are merged on top of the template config at schedule time;
// the override delta is retained separately so later updates can re-merge
// without losing the template baseline.
type ActionTemplate struct {
	ID         uuid.UUID      `json:"id"`
	OrgID      uuid.UUID      `json:"org_id"`
	Name       string         `json:"name"`
	ActionType string         `json:"action_type"`
	Config     map[string]any `json:"config"`
	IsDefault  bool           `json:"is_default"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// MergeConfigs layers overrides on top of base, shallow per key. Neither input
// is mutated.
func MergeConfigs(base, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
