// Package credentials keeps refresh token records: hashed, grouped by (owner, family) and revocable.
//
// Raw tokens are never stored. Lookup goes through the cheap, signed claims first (owner and family),
// so the slow hash comparison runs against a handful of candidates and never against the whole table.
package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/clock"
	"github.com/nkiryanov/clearance/internal/models"
	"github.com/nkiryanov/clearance/internal/repository"
)

const defaultSweepBatch = 500

type hasher interface {
	Hash(value string) (string, error)
	Compare(hashed string, value string) error
}

type Store struct {
	repo   repository.RefreshTokenRepo
	hasher hasher
	clock  clock.Clock
}

func New(repo repository.RefreshTokenRepo, h hasher, c clock.Clock) *Store {
	if c == nil {
		c = clock.System{}
	}
	return &Store{repo: repo, hasher: h, clock: c}
}

// Within returns the store bound to other repository, the transactional one usually
func (s *Store) Within(repo repository.RefreshTokenRepo) *Store {
	return &Store{repo: repo, hasher: s.hasher, clock: s.clock}
}

// Create hashes raw token and persists new live record
func (s *Store) Create(ctx context.Context, owner string, family uuid.UUID, raw string, deviceInfo string, ttl time.Duration) (models.RefreshToken, error) {
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("error while hashing refresh token. Err: %w", err)
	}

	now := s.clock.Now()
	record := models.RefreshToken{
		ID:         ulid.Make().String(),
		Owner:      owner,
		Family:     family,
		TokenHash:  hash,
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return models.RefreshToken{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return record, nil
}

// FindCandidates returns not revoked records of the exact (owner, family) pair
func (s *Store) FindCandidates(ctx context.Context, owner string, family uuid.UUID) ([]models.RefreshToken, error) {
	return s.repo.ListActiveByFamily(ctx, owner, family)
}

// MatchRaw compares raw token against candidates hashes and returns the first match
func (s *Store) MatchRaw(raw string, candidates []models.RefreshToken) (models.RefreshToken, bool) {
	for _, c := range candidates {
		if s.hasher.Compare(c.TokenHash, raw) == nil {
			return c, true
		}
	}
	return models.RefreshToken{}, false
}

// Revoke flips the record to revoked
// Returns apperrors.ErrRefreshTokenIsUsed if someone revoked it first
func (s *Store) Revoke(ctx context.Context, record models.RefreshToken) error {
	flipped, err := s.repo.Revoke(ctx, record.ID)
	if err != nil {
		return err
	}
	if !flipped {
		return apperrors.ErrRefreshTokenIsUsed
	}
	return nil
}

func (s *Store) RevokeFamily(ctx context.Context, family uuid.UUID) (int64, error) {
	return s.repo.RevokeFamily(ctx, family)
}

func (s *Store) RevokeAllForOwner(ctx context.Context, owner string) (int64, error) {
	return s.repo.RevokeAllForOwner(ctx, owner)
}

// ActiveCount counts live records of the owner across all families
func (s *Store) ActiveCount(ctx context.Context, owner string) (int64, error) {
	return s.repo.CountActive(ctx, owner, s.clock.Now())
}

// SweepExpiredAndRevoked deletes dead records batch by batch until a short batch is seen
// Zero or negative batch means default one
func (s *Store) SweepExpiredAndRevoked(ctx context.Context, now time.Time, batch int) (int64, error) {
	if batch <= 0 {
		batch = defaultSweepBatch
	}

	var total int64
	for {
		deleted, err := s.repo.DeleteExpiredAndRevoked(ctx, now, batch)
		total += deleted
		if err != nil {
			return total, err
		}
		if deleted < int64(batch) {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}
