package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/repository"
)

type ChangePasswordParams struct {
	Name        string
	Department  string
	OldPassword string
	NewPassword string

	// Rate limiting key, shared with login
	ClientID string
}

// ChangePassword replaces employee password and revokes every session of the employee
// Works with an expired password, so it is the way out of *apperrors.PasswordExpiredError
//
// Errors:
//   - *apperrors.RateLimitError if client made too many failed attempts
//   - apperrors.ErrPasswordRequired if old or new password is empty
//   - *apperrors.CredentialsError for unknown employee, wrong old password or department
//   - apperrors.ErrPasswordUnchanged if new password equals the old one
//   - apperrors.ErrStoreUnavailable if storage failed
func (s *AuthService) ChangePassword(ctx context.Context, p ChangePasswordParams) error {
	if p.OldPassword == "" || p.NewPassword == "" {
		return apperrors.ErrPasswordRequired
	}

	slot, ok := s.limiter.Reserve(p.ClientID)
	if !ok {
		return &apperrors.RateLimitError{RetryAfter: s.limiter.RetryAfter(p.ClientID)}
	}
	defer slot.Release()

	employee, err := s.checkCredentials(ctx, LoginParams{Name: p.Name, Department: p.Department, Password: p.OldPassword})
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		slot.Fail()
		return &apperrors.CredentialsError{RemainingAttempts: s.limiter.RemainingAttempts(p.ClientID)}
	case err != nil:
		return err
	}
	slot.Succeed()

	if p.NewPassword == p.OldPassword {
		return apperrors.ErrPasswordUnchanged
	}

	hash, err := s.hasher.Hash(p.NewPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password, Err: %w", err)
	}

	var revoked int64
	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		if err := tx.Employee().UpdatePassword(ctx, employee.ID, hash, s.clock.Now()); err != nil {
			return err
		}
		revoked, err = s.credentials.Within(tx.Refresh()).RevokeAllForOwner(ctx, employee.Subject())
		return err
	})
	if err != nil {
		return storeError(err)
	}

	s.metrics.Revoked(revoked)
	s.log.Info("employee password changed", "employee", employee.Subject(), "revoked", revoked)

	return nil
}
