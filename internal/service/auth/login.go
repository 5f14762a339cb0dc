package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/metrics"
	"github.com/nkiryanov/clearance/internal/models"
	"github.com/nkiryanov/clearance/internal/service/credentials"
)

type LoginParams struct {
	Name       string
	Department string

	// Optional. When set for employee login it must match the stored one
	Role models.Role

	// Empty password means corps member contact
	Password string

	// Rate limiting key, usually client IP
	ClientID string

	DeviceInfo string
}

type LoginResult struct {
	// *models.Employee or *models.CorpsMember
	Principal models.Principal

	// True if corps member was registered by this login
	Created bool

	// Issued for employees only
	Tokens models.TokenPair
}

// Login authenticates employee by password or registers corps member on first contact
//
// Errors:
//   - *apperrors.RateLimitError if client made too many failed attempts
//   - apperrors.ErrPasswordRequired if password is missing for employee
//   - apperrors.ErrDepartmentRequired if corps member contact has no department
//   - *apperrors.CredentialsError for unknown employee, wrong password, department or role
//   - *apperrors.PasswordExpiredError if credentials are valid but password is too old
//   - apperrors.ErrStoreUnavailable if storage failed
func (s *AuthService) Login(ctx context.Context, p LoginParams) (LoginResult, error) {
	// Slot is held while credentials are checked, so parallel guesses count before they finish
	slot, ok := s.limiter.Reserve(p.ClientID)
	if !ok {
		s.metrics.Login(metrics.LoginRateLimited)
		return LoginResult{}, &apperrors.RateLimitError{RetryAfter: s.limiter.RetryAfter(p.ClientID)}
	}
	defer slot.Release()

	if p.Password == "" {
		return s.contact(ctx, p)
	}

	employee, err := s.checkCredentials(ctx, p)
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		slot.Fail()
		s.metrics.Login(metrics.LoginInvalid)
		return LoginResult{}, &apperrors.CredentialsError{RemainingAttempts: s.limiter.RemainingAttempts(p.ClientID)}
	case err != nil:
		return LoginResult{}, err
	}

	// Credentials are valid even if the password has to be changed now
	slot.Succeed()

	expiresAt := employee.PasswordExpiresAt(s.passwordExpiryMonths)
	if !s.clock.Now().Before(expiresAt) {
		s.metrics.Login(metrics.LoginPasswordExpired)
		return LoginResult{}, &apperrors.PasswordExpiredError{ExpiredAt: expiresAt}
	}

	pair, err := s.issuePair(ctx, s.credentials, employee.Subject(), uuid.New(), p.DeviceInfo)
	if err != nil {
		return LoginResult{}, err
	}

	s.metrics.Login(metrics.LoginSucceeded)
	s.log.Info("employee logged in", "employee", employee.Subject(), "family", pair.Family)

	return LoginResult{Principal: &employee, Tokens: pair}, nil
}

// contact handles login without password
func (s *AuthService) contact(ctx context.Context, p LoginParams) (LoginResult, error) {
	if p.Role.IsEmployeeRole() {
		s.metrics.Login(metrics.LoginPasswordMissing)
		return LoginResult{}, apperrors.ErrPasswordRequired
	}

	_, err := s.storage.Employee().GetEmployeeByName(ctx, p.Name)
	switch {
	case err == nil:
		s.metrics.Login(metrics.LoginPasswordMissing)
		return LoginResult{}, apperrors.ErrPasswordRequired
	case !errors.Is(err, apperrors.ErrEmployeeNotFound):
		return LoginResult{}, storeError(err)
	}

	if strings.TrimSpace(p.Department) == "" {
		return LoginResult{}, apperrors.ErrDepartmentRequired
	}

	member, created, err := s.storage.CorpsMember().GetOrCreateCorpsMember(ctx, p.Name, p.Department)
	if err != nil {
		return LoginResult{}, storeError(err)
	}

	s.metrics.Login(metrics.LoginProvisioned)
	if created {
		s.log.Info("corps member registered", "member", member.Subject(), "department", member.Department)
	}

	return LoginResult{Principal: &member, Created: created}, nil
}

// checkCredentials returns apperrors.ErrInvalidCredentials for every mismatch without telling which one
func (s *AuthService) checkCredentials(ctx context.Context, p LoginParams) (models.Employee, error) {
	employee, err := s.storage.Employee().GetEmployeeByName(ctx, p.Name)
	switch {
	case errors.Is(err, apperrors.ErrEmployeeNotFound):
		_ = s.hasher.Compare(s.dummyHash, p.Password)
		return models.Employee{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.Employee{}, storeError(err)
	}

	if s.hasher.Compare(employee.PasswordHash, p.Password) != nil {
		return models.Employee{}, apperrors.ErrInvalidCredentials
	}
	if !strings.EqualFold(strings.TrimSpace(employee.Department), strings.TrimSpace(p.Department)) {
		return models.Employee{}, apperrors.ErrInvalidCredentials
	}
	if p.Role != "" && p.Role != employee.Role {
		return models.Employee{}, apperrors.ErrInvalidCredentials
	}

	return employee, nil
}

// issuePair signs access and refresh tokens and stores the refresh one in the family
func (s *AuthService) issuePair(ctx context.Context, store *credentials.Store, subject string, family uuid.UUID, deviceInfo string) (models.TokenPair, error) {
	access, err := s.tokens.IssueAccess(subject)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("access token could not be issued. Err: %w", err)
	}

	refresh, err := s.tokens.IssueRefresh(subject, family)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("refresh token could not be issued. Err: %w", err)
	}

	if _, err := store.Create(ctx, subject, family, refresh.Value, deviceInfo, s.tokens.RefreshTTL()); err != nil {
		return models.TokenPair{}, storeError(err)
	}

	return models.TokenPair{Access: access, Refresh: refresh, Family: family}, nil
}
