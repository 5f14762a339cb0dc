package employee

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nkiryanov/clearance/internal/clock"
	"github.com/nkiryanov/clearance/internal/models"
	"github.com/nkiryanov/clearance/internal/repository"
	"github.com/nkiryanov/clearance/internal/service/auth"
)

type EmployeeService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage
	clock   clock.Clock
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage, c clock.Clock) *EmployeeService {
	if hasher == nil {
		hasher = auth.BcryptHasher{}
	}
	if c == nil {
		c = clock.System{}
	}

	return &EmployeeService{
		hasher:  hasher,
		storage: storage,
		clock:   c,
	}
}

type CreateParams struct {
	Name       string
	Department string
	Role       models.Role
	Password   string
}

// Create employee with password changed now
// Returns apperrors.ErrEmployeeAlreadyExists if name is taken
func (s *EmployeeService) Create(ctx context.Context, p CreateParams) (models.Employee, error) {
	if !p.Role.IsEmployeeRole() {
		return models.Employee{}, fmt.Errorf("role %q is not employee role", p.Role)
	}
	if strings.TrimSpace(p.Name) == "" || p.Password == "" {
		return models.Employee{}, errors.New("name and password must not be empty")
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return models.Employee{}, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	employee, err := s.storage.Employee().CreateEmployee(ctx, models.Employee{
		Name:               strings.TrimSpace(p.Name),
		Department:         strings.TrimSpace(p.Department),
		Role:               p.Role,
		PasswordHash:       hash,
		LastPasswordChange: s.clock.Now(),
	})
	if err != nil {
		return models.Employee{}, fmt.Errorf("can't create employee. Err: %w", err)
	}

	return employee, nil
}
