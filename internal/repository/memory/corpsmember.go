package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/clearance/internal/models"
)

type CorpsMemberRepo struct {
	s *Storage
}

func (r *CorpsMemberRepo) GetOrCreateCorpsMember(ctx context.Context, name string, department string) (models.CorpsMember, bool, error) {
	st, unlock, err := r.s.enter(ctx)
	if err != nil {
		return models.CorpsMember{}, false, err
	}
	defer unlock()

	for _, m := range st.members {
		if strings.EqualFold(m.Name, name) && strings.EqualFold(m.Department, department) {
			return m, false, nil
		}
	}

	m := models.CorpsMember{
		ID:         uuid.New(),
		CreatedAt:  time.Now().UTC(),
		Name:       name,
		Department: department,
	}
	put(st, st.members, m.ID, m)

	return m, true, nil
}
