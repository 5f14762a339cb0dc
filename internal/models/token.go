package models

import (
	"time"

	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Decoded and verified token claims
type TokenPayload struct {
	ID        string
	Subject   string
	Type      TokenType
	Family    uuid.UUID // uuid.Nil for access tokens
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued on login and on every refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
	Family  uuid.UUID
}
