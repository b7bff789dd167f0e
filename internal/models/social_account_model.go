package models

import (
	"encoding/json"
	"time"
)

const (
	AccountTypeProfile  = "profile"
	AccountTypePage     = "page"
	AccountTypeBusiness = "business"
	AccountTypeChannel  = "channel"
)

type SocialAccount struct {
	ID                int64           `db:"id" json:"id"`
	UserID            int64           `db:"user_id" json:"user_id"`
	Platform          string          `db:"platform" json:"platform"`
	PlatformAccountID string          `db:"platform_account_id" json:"platform_account_id"`
	AccountName       string          `db:"account_name" json:"account_name"`
	AccountType       string          `db:"account_type" json:"account_type"`
	AccessToken       string          `db:"access_token" json:"-"`
	RefreshToken      string          `db:"refresh_token" json:"-"`
	TokenExpiresAt    *time.Time      `db:"token_expires_at" json:"token_expires_at,omitempty"`
	LastUsedAt        time.Time       `db:"last_used_at" json:"last_used_at"`
	Metadata          json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}
