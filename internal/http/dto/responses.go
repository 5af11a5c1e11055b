package dto

import "time"

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	OrgID     string    `json:"org_id"`
	Role      string    `json:"role"`
}

// CreateAPIKeyResponse carries the plaintext key exactly once, at creation.
type CreateAPIKeyResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type ListResponse struct {
	OK    bool `json:"ok"`
	Data  any  `json:"data"`
	Total int  `json:"total"`
}

type VerifyBannerResponse struct {
	BannerURL string `json:"banner_url"`
	Live      bool   `json:"live"`
}
