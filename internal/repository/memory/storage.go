// Package memory is a process local repository.Storage for development runs without a database and for tests.
// Every operation is serialized by one mutex; InTx holds it for the whole transaction.
// Writes inside a transaction are journaled, so rollback costs as much as the writes it undoes.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/models"
	"github.com/nkiryanov/clearance/internal/repository"
)

type state struct {
	employees map[uuid.UUID]models.Employee
	members   map[uuid.UUID]models.CorpsMember
	tokens    map[string]models.RefreshToken

	// Restores overwritten entries, newest last. Filled only inside InTx
	undo []func()
	inTx bool
}

// put stores v under k, remembering the previous entry when in transaction
func put[K comparable, V any](st *state, m map[K]V, k K, v V) {
	journal(st, m, k)
	m[k] = v
}

// del removes k, remembering the previous entry when in transaction
func del[K comparable, V any](st *state, m map[K]V, k K) {
	journal(st, m, k)
	delete(m, k)
}

func journal[K comparable, V any](st *state, m map[K]V, k K) {
	if !st.inTx {
		return
	}
	old, existed := m[k]
	st.undo = append(st.undo, func() {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

// rollback undoes writes made after the undo log had mark entries
func (st *state) rollback(mark int) {
	for i := len(st.undo) - 1; i >= mark; i-- {
		st.undo[i]()
	}
	st.undo = st.undo[:mark]
}

type Storage struct {
	mu *sync.Mutex
	st *state
	tx bool // mu is held by the enclosing InTx
}

func NewStorage() *Storage {
	st := &state{
		employees: make(map[uuid.UUID]models.Employee),
		members:   make(map[uuid.UUID]models.CorpsMember),
		tokens:    make(map[string]models.RefreshToken),
	}
	return &Storage{mu: &sync.Mutex{}, st: st}
}

func (s *Storage) Employee() repository.EmployeeRepo {
	return &EmployeeRepo{s: s}
}

func (s *Storage) CorpsMember() repository.CorpsMemberRepo {
	return &CorpsMemberRepo{s: s}
}

func (s *Storage) Refresh() repository.RefreshTokenRepo {
	return &RefreshTokenRepo{s: s}
}

// InTx runs fn holding the storage lock
// Changes made by fn are discarded if it returns error. Nested InTx discards only its own changes
func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory tx error: %w: %w", apperrors.ErrStoreUnavailable, err)
	}

	unlock := s.lock()
	defer unlock()

	st := s.st
	if !st.inTx {
		st.inTx = true
		defer func() {
			st.inTx = false
			st.undo = nil
		}()
	}
	mark := len(st.undo)

	err := fn(&Storage{mu: s.mu, st: st, tx: true})
	if err != nil {
		st.rollback(mark)
	}
	return err
}

func (s *Storage) lock() func() {
	if s.tx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// enter locks the storage unless ctx is done already
func (s *Storage) enter(ctx context.Context) (*state, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("memory error: %w: %w", apperrors.ErrStoreUnavailable, err)
	}
	unlock := s.lock()
	return s.st, unlock, nil
}
