package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/clearance/internal/models"
)

type CorpsMemberRepo struct {
	DB DBTX
}

const insertCorpsMember = `-- name: InsertCorpsMember
INSERT INTO corps_members (id, name, department)
VALUES ($1, $2, $3)
ON CONFLICT (lower(name), lower(department)) DO NOTHING
RETURNING id, created_at, name, department
`

const getCorpsMemberByName = `-- name: GetCorpsMemberByName
SELECT id, created_at, name, department FROM corps_members
WHERE lower(name) = lower($1) AND lower(department) = lower($2)
`

func (r *CorpsMemberRepo) GetOrCreateCorpsMember(ctx context.Context, name string, department string) (models.CorpsMember, bool, error) {
	rows, _ := r.DB.Query(ctx, insertCorpsMember, uuid.New(), name, department)
	member, err := pgx.CollectOneRow(rows, rowToCorpsMember)

	switch {
	case err == nil:
		return member, true, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return member, false, dbError(err)
	}

	// Conflict: the member is registered already
	rows, _ = r.DB.Query(ctx, getCorpsMemberByName, name, department)
	member, err = pgx.CollectOneRow(rows, rowToCorpsMember)
	if err != nil {
		return member, false, dbError(err)
	}

	return member, false, nil
}

func rowToCorpsMember(row pgx.CollectableRow) (models.CorpsMember, error) {
	var m models.CorpsMember
	err := row.Scan(&m.ID, &m.CreatedAt, &m.Name, &m.Department)
	return m, err
}
