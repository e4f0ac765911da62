package token

import "time"

// Record is one stored OAuth token pair. Rows are append-only; the client
// always works off the most recently created one.
type Record struct {
	ID           int64     `json:"id" db:"id"`
	AccessToken  string    `json:"access_token" db:"access_token"`
	RefreshToken string    `json:"refresh_token" db:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
