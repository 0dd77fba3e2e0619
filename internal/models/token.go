package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceToken is a short-lived, single-use credential a student device presents to a kiosk.
type AttendanceToken struct {
	ID        uuid.UUID `json:"id"`
	Value     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"is_used"`
	IssuedIP  string    `json:"issued_ip,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether now is past the token's expiry.
func (t *AttendanceToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TokenStats summarizes the token table for maintenance reporting.
type TokenStats struct {
	Total         int64 `json:"total"`
	Used          int64 `json:"used"`
	Unused        int64 `json:"unused"`
	ExpiredUnused int64 `json:"expired_unused"`
}
