package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/models"
)

type EmployeeRepo struct {
	DB DBTX
}

const employeeColumns = `id, created_at, name, department, role, password_hash, last_password_change`

const createEmployee = `-- name: CreateEmployee
INSERT INTO employees (id, name, department, role, password_hash, last_password_change)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + employeeColumns

func (r *EmployeeRepo) CreateEmployee(ctx context.Context, e models.Employee) (models.Employee, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createEmployee, e.ID, e.Name, e.Department, string(e.Role), e.PasswordHash, e.LastPasswordChange)
	employee, err := pgx.CollectOneRow(rows, rowToEmployee)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return employee, apperrors.ErrEmployeeAlreadyExists
		}

		return employee, dbError(err)
	}

	return employee, nil
}

const getEmployeeByID = `-- name: GetEmployeeByID
SELECT ` + employeeColumns + ` FROM employees
WHERE id = $1
`

func (r *EmployeeRepo) GetEmployeeByID(ctx context.Context, id uuid.UUID) (models.Employee, error) {
	rows, _ := r.DB.Query(ctx, getEmployeeByID, id)
	return collectEmployee(rows)
}

const getEmployeeByName = `-- name: GetEmployeeByName
SELECT ` + employeeColumns + ` FROM employees
WHERE lower(name) = lower($1)
`

func (r *EmployeeRepo) GetEmployeeByName(ctx context.Context, name string) (models.Employee, error) {
	rows, _ := r.DB.Query(ctx, getEmployeeByName, name)
	return collectEmployee(rows)
}

const updatePassword = `-- name: UpdatePassword
UPDATE employees
SET password_hash = $2, last_password_change = $3
WHERE id = $1
`

func (r *EmployeeRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, changedAt time.Time) error {
	tag, err := r.DB.Exec(ctx, updatePassword, id, passwordHash, changedAt)
	if err != nil {
		return dbError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrEmployeeNotFound
	}
	return nil
}

func collectEmployee(rows pgx.Rows) (models.Employee, error) {
	employee, err := pgx.CollectOneRow(rows, rowToEmployee)

	switch {
	case err == nil:
		return employee, nil
	case errors.Is(err, pgx.ErrNoRows):
		return employee, apperrors.ErrEmployeeNotFound
	default:
		return employee, dbError(err)
	}
}

func rowToEmployee(row pgx.CollectableRow) (models.Employee, error) {
	var (
		e    models.Employee
		role string
	)
	err := row.Scan(&e.ID, &e.CreatedAt, &e.Name, &e.Department, &role, &e.PasswordHash, &e.LastPasswordChange)
	e.Role = models.Role(role)
	return e, err
}
