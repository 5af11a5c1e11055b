package dto

import "time"

type ExchangeAPIKeyRequest struct {
	APIKey string `json:"api_key"`
}

type ScheduleActionRequest struct {
	ActionType string `json:"action_type"`

	UserID              *string `json:"user_id,omitempty"`
	TargetEmail         *string `json:"target_email,omitempty"`
	TargetFirstName     *string `json:"target_first_name,omitempty"`
	TargetLastName      *string `json:"target_last_name,omitempty"`
	TargetPersonalEmail *string `json:"target_personal_email,omitempty"`

	TemplateID      *string        `json:"template_id,omitempty"`
	ConfigOverrides map[string]any `json:"config_overrides,omitempty"`

	ScheduledFor       time.Time  `json:"scheduled_for"`
	IsRecurring        bool       `json:"is_recurring"`
	RecurrenceInterval *string    `json:"recurrence_interval,omitempty"` // daily / weekly / monthly
	RecurrenceUntil    *time.Time `json:"recurrence_until,omitempty"`

	RequiresApproval  bool    `json:"requires_approval"`
	MaxRetries        *int    `json:"max_retries,omitempty"`
	DependsOnActionID *string `json:"depends_on_action_id,omitempty"`
}

type UpdateActionRequest struct {
	ScheduledFor       *time.Time     `json:"scheduled_for,omitempty"`
	ConfigOverrides    map[string]any `json:"config_overrides,omitempty"`
	RequiresApproval   *bool          `json:"requires_approval,omitempty"`
	MaxRetries         *int           `json:"max_retries,omitempty"`
	IsRecurring        *bool          `json:"is_recurring,omitempty"`
	RecurrenceInterval *string        `json:"recurrence_interval,omitempty"`
	RecurrenceUntil    *time.Time     `json:"recurrence_until,omitempty"`
	DependsOnActionID  *string        `json:"depends_on_action_id,omitempty"`
}

type ApproveActionRequest struct {
	Notes *string `json:"notes,omitempty"`
}

type RejectActionRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type CancelActionRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	UserID string `json:"user_id"`
}

type CreateOrgUserRequest struct {
	Email         string  `json:"email"`
	FirstName     *string `json:"first_name,omitempty"`
	LastName      *string `json:"last_name,omitempty"`
	PersonalEmail *string `json:"personal_email,omitempty"`
}

type CreateTemplateRequest struct {
	Name       string         `json:"name"`
	ActionType string         `json:"action_type"`
	Config     map[string]any `json:"config,omitempty"`
	IsDefault  bool           `json:"is_default"`
}

type ParseSignatureRequest struct {
	HTML string `json:"html"`
}

type VerifyBannerRequest struct {
	BannerURL string `json:"banner_url"`
}
