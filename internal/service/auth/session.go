package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/metrics"
	"github.com/nkiryanov/clearance/internal/models"
	"github.com/nkiryanov/clearance/internal/repository"
)

// Refresh exchanges refresh token for a new pair in the same family
//
// Presenting a token that is not the single live one of its family (replayed, unknown or raced)
// revokes the whole family. Every failure is reported as apperrors.ErrInvalidRefreshToken,
// except storage failures which are apperrors.ErrStoreUnavailable.
func (s *AuthService) Refresh(ctx context.Context, raw string, deviceInfo string) (models.TokenPair, error) {
	payload, err := s.tokens.Decode(raw)
	if err != nil || payload.Type != models.TokenTypeRefresh {
		s.metrics.Refresh(metrics.RefreshInvalid)
		return models.TokenPair{}, apperrors.ErrInvalidRefreshToken
	}

	var (
		pair    models.TokenPair
		reused  bool
		revoked int64
	)

	err = s.storage.InTx(ctx, func(tx repository.Storage) error {
		store := s.credentials.Within(tx.Refresh())

		candidates, err := store.FindCandidates(ctx, payload.Subject, payload.Family)
		if err != nil {
			return err
		}

		// More than one live record means someone rotated concurrently. Do not guess which one is legit
		var (
			match models.RefreshToken
			found bool
		)
		if len(candidates) == 1 {
			match, found = store.MatchRaw(raw, candidates)
		}

		if found && match.Live(s.clock.Now()) {
			err = store.Revoke(ctx, match)
			switch {
			case err == nil:
				pair, err = s.issuePair(ctx, store, payload.Subject, payload.Family, deviceInfo)
				return err
			case !errors.Is(err, apperrors.ErrRefreshTokenIsUsed):
				return err
			}
		}

		// Revocation has to be committed, so the error is returned after the transaction
		reused = true
		revoked, err = store.RevokeFamily(ctx, payload.Family)
		return err
	})
	if err != nil {
		s.metrics.Refresh(metrics.RefreshFailed)
		return models.TokenPair{}, storeError(err)
	}

	if reused {
		s.metrics.Refresh(metrics.RefreshReuse)
		s.metrics.Revoked(revoked)
		s.log.Warn("refresh token reuse detected, family revoked",
			"owner", payload.Subject, "family", payload.Family, "revoked", revoked)
		return models.TokenPair{}, apperrors.ErrInvalidRefreshToken
	}

	s.metrics.Refresh(metrics.RefreshRotated)
	s.metrics.Revoked(1)

	return pair, nil
}

// LogoutOne revokes the family of the refresh token. Expired token is accepted
// Returns apperrors.ErrInvalidRefreshToken if token can't be decoded
func (s *AuthService) LogoutOne(ctx context.Context, raw string) (int64, error) {
	payload, err := s.decodeRefreshForLogout(raw)
	if err != nil {
		return 0, err
	}

	revoked, err := s.credentials.RevokeFamily(ctx, payload.Family)
	if err != nil {
		return 0, storeError(err)
	}

	s.metrics.Revoked(revoked)
	return revoked, nil
}

// LogoutAll revokes every family of the owner
func (s *AuthService) LogoutAll(ctx context.Context, owner string) (int64, error) {
	revoked, err := s.credentials.RevokeAllForOwner(ctx, owner)
	if err != nil {
		return 0, storeError(err)
	}

	s.metrics.Revoked(revoked)
	s.log.Info("all sessions revoked", "owner", owner, "revoked", revoked)
	return revoked, nil
}

// Logout revokes the refresh token family or, with allDevices, every family of its owner
func (s *AuthService) Logout(ctx context.Context, raw string, allDevices bool) (int64, error) {
	if !allDevices {
		return s.LogoutOne(ctx, raw)
	}

	payload, err := s.decodeRefreshForLogout(raw)
	if err != nil {
		return 0, err
	}
	return s.LogoutAll(ctx, payload.Subject)
}

func (s *AuthService) decodeRefreshForLogout(raw string) (models.TokenPayload, error) {
	payload, err := s.tokens.Decode(raw)
	if err != nil && !errors.Is(err, apperrors.ErrExpiredToken) {
		return payload, apperrors.ErrInvalidRefreshToken
	}
	if payload.Type != models.TokenTypeRefresh {
		return payload, apperrors.ErrInvalidRefreshToken
	}
	return payload, nil
}

// ActiveSessionCount counts live refresh tokens of the owner across families
func (s *AuthService) ActiveSessionCount(ctx context.Context, owner string) (int64, error) {
	count, err := s.credentials.ActiveCount(ctx, owner)
	if err != nil {
		return 0, storeError(err)
	}
	return count, nil
}

// RateLimitStatus reports attempts left and wait time for client
func (s *AuthService) RateLimitStatus(clientID string) (remaining int, retryAfter time.Duration) {
	return s.limiter.RemainingAttempts(clientID), s.limiter.RetryAfter(clientID)
}

// AccessTokenLifetime returns how long access token is still valid
func (s *AuthService) AccessTokenLifetime(access string) time.Duration {
	return s.tokens.RemainingLifetime(access)
}

// Authenticate resolves access token to employee
// Returns apperrors.ErrMalformedToken or apperrors.ErrExpiredToken for bad tokens
func (s *AuthService) Authenticate(ctx context.Context, access string) (models.Employee, error) {
	payload, err := s.tokens.Decode(access)
	if err != nil {
		return models.Employee{}, err
	}
	if payload.Type != models.TokenTypeAccess {
		return models.Employee{}, fmt.Errorf("%w: %s token used as access", apperrors.ErrMalformedToken, payload.Type)
	}

	id, err := uuid.Parse(payload.Subject)
	if err != nil {
		return models.Employee{}, fmt.Errorf("%w: subject is not employee id", apperrors.ErrMalformedToken)
	}

	employee, err := s.storage.Employee().GetEmployeeByID(ctx, id)
	switch {
	case err == nil:
		return employee, nil
	case errors.Is(err, apperrors.ErrEmployeeNotFound):
		return models.Employee{}, err
	default:
		return models.Employee{}, storeError(err)
	}
}
