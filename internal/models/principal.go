package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleEmployee    Role = "employee"
	RoleCorpsMember Role = "corps_member"
)

// IsEmployeeRole reports whether the role belongs to password-authenticated staff
func (r Role) IsEmployeeRole() bool {
	return r == RoleAdmin || r == RoleEmployee
}

// Principal is either *Employee or *CorpsMember. The set is closed
type Principal interface {
	Subject() string
	PrincipalRole() Role

	principal()
}

type Employee struct {
	ID                 uuid.UUID
	CreatedAt          time.Time
	Name               string
	Department         string
	Role               Role
	PasswordHash       string
	LastPasswordChange time.Time
}

func (e *Employee) Subject() string     { return e.ID.String() }
func (e *Employee) PrincipalRole() Role { return e.Role }
func (*Employee) principal()            {}

// PasswordExpiresAt returns the moment the password stops being accepted
func (e *Employee) PasswordExpiresAt(months int) time.Time {
	return e.LastPasswordChange.AddDate(0, months, 0)
}

// Corps members register themselves on first contact and have no password
type CorpsMember struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	Name       string
	Department string
}

func (c *CorpsMember) Subject() string   { return c.ID.String() }
func (*CorpsMember) PrincipalRole() Role { return RoleCorpsMember }
func (*CorpsMember) principal()          {}
