package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/clearance/internal/models"
)

type RefreshTokenRepo struct {
	s *Storage
}

func (r *RefreshTokenRepo) Create(ctx context.Context, token models.RefreshToken) error {
	st, unlock, err := r.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	put(st, st.tokens, token.ID, token)
	return nil
}

// ListActiveByFamily returns tokens ordered by creation time
// Rows are not locked: InTx holds the storage lock for the whole transaction instead
func (r *RefreshTokenRepo) ListActiveByFamily(ctx context.Context, owner string, family uuid.UUID) ([]models.RefreshToken, error) {
	st, unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var tokens []models.RefreshToken
	for _, t := range st.tokens {
		if t.Owner == owner && t.Family == family && !t.Revoked {
			tokens = append(tokens, t)
		}
	}
	slices.SortFunc(tokens, func(a, b models.RefreshToken) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	return tokens, nil
}

func (r *RefreshTokenRepo) Revoke(ctx context.Context, id string) (bool, error) {
	st, unlock, err := r.s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	t, ok := st.tokens[id]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	put(st, st.tokens, id, t)

	return true, nil
}

func (r *RefreshTokenRepo) RevokeFamily(ctx context.Context, family uuid.UUID) (int64, error) {
	return r.revokeWhere(ctx, func(t models.RefreshToken) bool { return t.Family == family })
}

func (r *RefreshTokenRepo) RevokeAllForOwner(ctx context.Context, owner string) (int64, error) {
	return r.revokeWhere(ctx, func(t models.RefreshToken) bool { return t.Owner == owner })
}

func (r *RefreshTokenRepo) revokeWhere(ctx context.Context, match func(models.RefreshToken) bool) (int64, error) {
	st, unlock, err := r.s.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var count int64
	for id, t := range st.tokens {
		if t.Revoked || !match(t) {
			continue
		}
		t.Revoked = true
		put(st, st.tokens, id, t)
		count++
	}

	return count, nil
}

func (r *RefreshTokenRepo) CountActive(ctx context.Context, owner string, now time.Time) (int64, error) {
	st, unlock, err := r.s.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var count int64
	for _, t := range st.tokens {
		if t.Owner == owner && t.Live(now) {
			count++
		}
	}

	return count, nil
}

func (r *RefreshTokenRepo) DeleteExpiredAndRevoked(ctx context.Context, now time.Time, limit int) (int64, error) {
	st, unlock, err := r.s.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var deleted int64
	for id, t := range st.tokens {
		if deleted >= int64(limit) {
			break
		}
		if t.Revoked || t.ExpiresAt.Before(now) {
			del(st, st.tokens, id)
			deleted++
		}
	}

	return deleted, nil
}
