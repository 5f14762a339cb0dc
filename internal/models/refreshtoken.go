package models

import (
	"time"

	"github.com/google/uuid"
)

// Stored refresh token record
// Raw token is never persisted, only its hash
type RefreshToken struct {
	ID         string
	Owner      string
	Family     uuid.UUID
	TokenHash  string
	DeviceInfo string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Revoked    bool
}

// Live reports whether the token still may be exchanged at the given moment
func (t RefreshToken) Live(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
