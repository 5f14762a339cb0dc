package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/models"
	"github.com/nkiryanov/clearance/internal/repository"
)

var now = time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC)

func newToken(owner string, family uuid.UUID) models.RefreshToken {
	return models.RefreshToken{
		ID:        ulid.Make().String(),
		Owner:     owner,
		Family:    family,
		TokenHash: "hash",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestStorage_InTx(t *testing.T) {
	t.Run("commit keeps changes", func(t *testing.T) {
		s := NewStorage()

		err := s.InTx(t.Context(), func(tx repository.Storage) error {
			_, err := tx.Employee().CreateEmployee(t.Context(), models.Employee{Name: "alice", Role: models.RoleEmployee})
			return err
		})
		require.NoError(t, err)

		_, err = s.Employee().GetEmployeeByName(t.Context(), "alice")
		assert.NoError(t, err)
	})

	t.Run("error discards changes", func(t *testing.T) {
		s := NewStorage()
		token := newToken("owner", uuid.New())
		require.NoError(t, s.Refresh().Create(t.Context(), token))
		errBoom := errors.New("boom")

		err := s.InTx(t.Context(), func(tx repository.Storage) error {
			_, err := tx.Refresh().Revoke(t.Context(), token.ID)
			require.NoError(t, err)
			require.NoError(t, tx.Refresh().Create(t.Context(), newToken("owner", token.Family)))
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)

		got, err := s.Refresh().ListActiveByFamily(t.Context(), "owner", token.Family)
		require.NoError(t, err)
		require.Len(t, got, 1, "rolled back create must not be visible")
		assert.Equal(t, token.ID, got[0].ID, "rolled back revoke must not be visible")
	})

	t.Run("error restores updated and deleted entries", func(t *testing.T) {
		s := NewStorage()
		e, err := s.Employee().CreateEmployee(t.Context(), models.Employee{Name: "alice", Role: models.RoleEmployee, PasswordHash: "old"})
		require.NoError(t, err)
		expired := newToken("owner", uuid.New())
		expired.ExpiresAt = now.Add(-time.Minute)
		require.NoError(t, s.Refresh().Create(t.Context(), expired))

		err = s.InTx(t.Context(), func(tx repository.Storage) error {
			require.NoError(t, tx.Employee().UpdatePassword(t.Context(), e.ID, "first", now))
			require.NoError(t, tx.Employee().UpdatePassword(t.Context(), e.ID, "second", now))
			deleted, err := tx.Refresh().DeleteExpiredAndRevoked(t.Context(), now, 10)
			require.NoError(t, err)
			require.Equal(t, int64(1), deleted)
			_, _, err = tx.CorpsMember().GetOrCreateCorpsMember(t.Context(), "Juan", "Alpha")
			require.NoError(t, err)
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		got, err := s.Employee().GetEmployeeByID(t.Context(), e.ID)
		require.NoError(t, err)
		assert.Equal(t, "old", got.PasswordHash, "value before the first write must be restored")
		assert.Contains(t, s.st.tokens, expired.ID, "deleted token must be restored")
		assert.Empty(t, s.st.members, "created member must be removed")
		assert.Empty(t, s.st.undo, "journal is dropped after transaction")
		assert.False(t, s.st.inTx)
	})

	t.Run("nested error discards only inner changes", func(t *testing.T) {
		s := NewStorage()

		err := s.InTx(t.Context(), func(tx repository.Storage) error {
			_, err := tx.Employee().CreateEmployee(t.Context(), models.Employee{Name: "alice", Role: models.RoleEmployee})
			require.NoError(t, err)

			err = tx.InTx(t.Context(), func(inner repository.Storage) error {
				_, err := inner.Employee().CreateEmployee(t.Context(), models.Employee{Name: "bob", Role: models.RoleEmployee})
				require.NoError(t, err)
				return assert.AnError
			})
			require.ErrorIs(t, err, assert.AnError)
			return nil
		})
		require.NoError(t, err)

		_, err = s.Employee().GetEmployeeByName(t.Context(), "alice")
		assert.NoError(t, err)
		_, err = s.Employee().GetEmployeeByName(t.Context(), "bob")
		assert.ErrorIs(t, err, apperrors.ErrEmployeeNotFound)
	})

	t.Run("writes outside transaction are not journaled", func(t *testing.T) {
		s := NewStorage()

		require.NoError(t, s.Refresh().Create(t.Context(), newToken("owner", uuid.New())))

		assert.Empty(t, s.st.undo)
	})

	t.Run("transactions are serialized", func(t *testing.T) {
		s := NewStorage()
		token := newToken("owner", uuid.New())
		require.NoError(t, s.Refresh().Create(t.Context(), token))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			flipped int
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.InTx(context.Background(), func(tx repository.Storage) error {
					got, err := tx.Refresh().ListActiveByFamily(context.Background(), "owner", token.Family)
					if err != nil || len(got) == 0 {
						return err
					}
					ok, err := tx.Refresh().Revoke(context.Background(), got[0].ID)
					if ok {
						mu.Lock()
						flipped++
						mu.Unlock()
					}
					return err
				})
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, flipped, "only one transaction may see the token live")
	})

	t.Run("canceled context", func(t *testing.T) {
		s := NewStorage()
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		err := s.InTx(ctx, func(repository.Storage) error { return nil })
		assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)

		_, err = s.Employee().GetEmployeeByName(ctx, "alice")
		assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	})
}

func TestEmployeeRepo(t *testing.T) {
	s := NewStorage()
	r := s.Employee()

	created, err := r.CreateEmployee(t.Context(), models.Employee{Name: "Alice", Department: "HR", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	_, err = r.CreateEmployee(t.Context(), models.Employee{Name: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrEmployeeAlreadyExists)

	got, err := r.GetEmployeeByName(t.Context(), "ALICE")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	require.NoError(t, r.UpdatePassword(t.Context(), created.ID, "new", now))
	got, err = r.GetEmployeeByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)
	assert.Equal(t, now, got.LastPasswordChange)

	_, err = r.GetEmployeeByID(t.Context(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrEmployeeNotFound)
	assert.ErrorIs(t, r.UpdatePassword(t.Context(), uuid.New(), "x", now), apperrors.ErrEmployeeNotFound)
}

func TestCorpsMemberRepo(t *testing.T) {
	s := NewStorage()
	r := s.CorpsMember()

	first, created, err := r.GetOrCreateCorpsMember(t.Context(), "Juan", "Alpha")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := r.GetOrCreateCorpsMember(t.Context(), "JUAN", "alpha")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, again)
}

func TestRefreshTokenRepo(t *testing.T) {
	t.Run("revoke family and owner", func(t *testing.T) {
		r := NewStorage().Refresh()
		family := uuid.New()
		require.NoError(t, r.Create(t.Context(), newToken("owner-1", family)))
		require.NoError(t, r.Create(t.Context(), newToken("owner-1", family)))
		require.NoError(t, r.Create(t.Context(), newToken("owner-1", uuid.New())))
		require.NoError(t, r.Create(t.Context(), newToken("owner-2", uuid.New())))

		count, err := r.RevokeFamily(t.Context(), family)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		count, err = r.RevokeFamily(t.Context(), family)
		require.NoError(t, err)
		assert.Zero(t, count)

		count, err = r.RevokeAllForOwner(t.Context(), "owner-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		active, err := r.CountActive(t.Context(), "owner-2", now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), active)
	})

	t.Run("list ordered by creation", func(t *testing.T) {
		r := NewStorage().Refresh()
		family := uuid.New()
		later := newToken("owner", family)
		later.CreatedAt = now.Add(time.Minute)
		earlier := newToken("owner", family)
		require.NoError(t, r.Create(t.Context(), later))
		require.NoError(t, r.Create(t.Context(), earlier))

		got, err := r.ListActiveByFamily(t.Context(), "owner", family)

		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, earlier.ID, got[0].ID)
		assert.Equal(t, later.ID, got[1].ID)
	})

	t.Run("delete expired and revoked", func(t *testing.T) {
		r := NewStorage().Refresh()
		live := newToken("owner", uuid.New())
		expired := newToken("owner", uuid.New())
		expired.ExpiresAt = now.Add(-time.Second)
		revoked := newToken("owner", uuid.New())
		revoked.Revoked = true
		for _, tok := range []models.RefreshToken{live, expired, revoked} {
			require.NoError(t, r.Create(t.Context(), tok))
		}

		deleted, err := r.DeleteExpiredAndRevoked(t.Context(), now, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted, "limit must bound the batch")

		deleted, err = r.DeleteExpiredAndRevoked(t.Context(), now, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		active, err := r.CountActive(t.Context(), "owner", now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), active)
	})
}
