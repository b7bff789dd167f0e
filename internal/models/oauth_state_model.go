package models

import "time"

type OAuthState struct {
	UserID       int64     `db:"user_id" json:"user_id"`
	Platform     string    `db:"platform" json:"platform"`
	State        string    `db:"state" json:"state"`
	CodeVerifier string    `db:"code_verifier" json:"code_verifier,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
