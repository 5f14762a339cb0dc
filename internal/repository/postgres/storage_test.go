package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/repository"
	"github.com/nkiryanov/clearance/internal/testutil"
)

func Test_Storage(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	storage := NewStorage(pg.Pool)

	t.Run("in tx commits on success", func(t *testing.T) {
		t.Cleanup(func() { testutil.Truncate(t, pg.Pool) })

		err := storage.InTx(t.Context(), func(s repository.Storage) error {
			_, err := s.Employee().CreateEmployee(t.Context(), newEmployee("committed"))
			return err
		})
		require.NoError(t, err)

		_, err = storage.Employee().GetEmployeeByName(t.Context(), "committed")
		assert.NoError(t, err, "employee must be visible after commit")
	})

	t.Run("in tx rolls back on error", func(t *testing.T) {
		t.Cleanup(func() { testutil.Truncate(t, pg.Pool) })
		errBoom := errors.New("boom")

		err := storage.InTx(t.Context(), func(s repository.Storage) error {
			_, err := s.Employee().CreateEmployee(t.Context(), newEmployee("rolledback"))
			require.NoError(t, err)
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)

		_, err = storage.Employee().GetEmployeeByName(t.Context(), "rolledback")
		assert.ErrorIs(t, err, apperrors.ErrEmployeeNotFound)
	})

	t.Run("locked family blocks concurrent reader", func(t *testing.T) {
		t.Cleanup(func() { testutil.Truncate(t, pg.Pool) })
		token := newToken("owner-1", uuid.New())
		require.NoError(t, storage.Refresh().Create(t.Context(), token))

		locked := make(chan struct{})
		release := make(chan struct{})
		firstDone := make(chan error, 1)

		go func() {
			firstDone <- storage.InTx(t.Context(), func(s repository.Storage) error {
				got, err := s.Refresh().ListActiveByFamily(t.Context(), token.Owner, token.Family)
				if err != nil {
					return err
				}
				if len(got) != 1 {
					return errors.New("expected one candidate")
				}
				close(locked)
				<-release
				_, err = s.Refresh().Revoke(t.Context(), got[0].ID)
				return err
			})
		}()

		<-locked
		secondDone := make(chan []int, 1)
		go func() {
			var found []int
			_ = storage.InTx(t.Context(), func(s repository.Storage) error {
				got, err := s.Refresh().ListActiveByFamily(t.Context(), token.Owner, token.Family)
				found = append(found, len(got))
				return err
			})
			secondDone <- found
		}()

		select {
		case <-secondDone:
			t.Fatal("second reader must wait for the lock")
		case <-time.After(200 * time.Millisecond):
		}

		close(release)
		require.NoError(t, <-firstDone)
		assert.Equal(t, []int{0}, <-secondDone, "second reader must see the token revoked")
	})
}
