package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/clearance/internal/models"
)

// Employee repository interface
type EmployeeRepo interface {
	// Create employee
	// If employee with the same name (case-insensitive) exists must return apperrors.ErrEmployeeAlreadyExists
	CreateEmployee(ctx context.Context, employee models.Employee) (models.Employee, error)

	// Get employee by id or by name (case-insensitive)
	// If employee not found must return apperrors.ErrEmployeeNotFound
	GetEmployeeByID(ctx context.Context, id uuid.UUID) (models.Employee, error)
	GetEmployeeByName(ctx context.Context, name string) (models.Employee, error)

	// Replace password hash and set last password change moment
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, changedAt time.Time) error
}

// CorpsMember repository interface
type CorpsMemberRepo interface {
	// Return the member with the given name and department (case-insensitive) creating it if needed
	// created is true only when the row was inserted by this call
	GetOrCreateCorpsMember(ctx context.Context, name string, department string) (member models.CorpsMember, created bool, err error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	Create(ctx context.Context, token models.RefreshToken) error

	// Not revoked tokens of the (owner, family) pair
	// Rows are locked until the transaction ends when called inside one
	ListActiveByFamily(ctx context.Context, owner string, family uuid.UUID) ([]models.RefreshToken, error)

	// Revoke token if it is not revoked yet
	// Reports whether this call flipped the flag
	Revoke(ctx context.Context, id string) (bool, error)

	// Revoke every not revoked token of the family or of the owner. Idempotent
	RevokeFamily(ctx context.Context, family uuid.UUID) (int64, error)
	RevokeAllForOwner(ctx context.Context, owner string) (int64, error)

	// Count not revoked tokens of the owner that expire after now
	CountActive(ctx context.Context, owner string, now time.Time) (int64, error)

	// Delete at most limit tokens that are revoked or expired before now
	DeleteExpiredAndRevoked(ctx context.Context, now time.Time, limit int) (int64, error)
}

// Storage groups repositories and runs them in a transaction
type Storage interface {
	Employee() EmployeeRepo
	CorpsMember() CorpsMemberRepo
	Refresh() RefreshTokenRepo

	// Run fn in transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
