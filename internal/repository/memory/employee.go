package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/models"
)

type EmployeeRepo struct {
	s *Storage
}

func (r *EmployeeRepo) CreateEmployee(ctx context.Context, e models.Employee) (models.Employee, error) {
	st, unlock, err := r.s.enter(ctx)
	if err != nil {
		return models.Employee{}, err
	}
	defer unlock()

	if _, ok := findEmployee(st, e.Name); ok {
		return models.Employee{}, apperrors.ErrEmployeeAlreadyExists
	}

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	put(st, st.employees, e.ID, e)

	return e, nil
}

func (r *EmployeeRepo) GetEmployeeByID(ctx context.Context, id uuid.UUID) (models.Employee, error) {
	st, unlock, err := r.s.enter(ctx)
	if err != nil {
		return models.Employee{}, err
	}
	defer unlock()

	e, ok := st.employees[id]
	if !ok {
		return e, apperrors.ErrEmployeeNotFound
	}
	return e, nil
}

func (r *EmployeeRepo) GetEmployeeByName(ctx context.Context, name string) (models.Employee, error) {
	st, unlock, err := r.s.enter(ctx)
	if err != nil {
		return models.Employee{}, err
	}
	defer unlock()

	e, ok := findEmployee(st, name)
	if !ok {
		return e, apperrors.ErrEmployeeNotFound
	}
	return e, nil
}

func (r *EmployeeRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, changedAt time.Time) error {
	st, unlock, err := r.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	e, ok := st.employees[id]
	if !ok {
		return apperrors.ErrEmployeeNotFound
	}
	e.PasswordHash = passwordHash
	e.LastPasswordChange = changedAt
	put(st, st.employees, id, e)

	return nil
}

func findEmployee(st *state, name string) (models.Employee, bool) {
	for _, e := range st.employees {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return models.Employee{}, false
}
