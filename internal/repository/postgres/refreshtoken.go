package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/clearance/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const createToken = `-- name: CreateRefreshToken
INSERT INTO refresh_tokens (id, token_hash, owner, family, device_info, created_at, expires_at, revoked)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
`

func (r *RefreshTokenRepo) Create(ctx context.Context, token models.RefreshToken) error {
	_, err := r.DB.Exec(ctx, createToken,
		token.ID, token.TokenHash, token.Owner, token.Family, token.DeviceInfo, token.CreatedAt, token.ExpiresAt, token.Revoked,
	)
	if err != nil {
		return dbError(err)
	}
	return nil
}

const listActiveByFamily = `-- name: ListActiveByFamily
SELECT id, token_hash, owner, family, COALESCE(device_info, ''), created_at, expires_at, revoked
FROM refresh_tokens
WHERE owner = $1 AND family = $2 AND NOT revoked
ORDER BY created_at
FOR UPDATE
`

// ListActiveByFamily locks returned rows
// Concurrent rotation of the same family waits here and sees the rows revoked after the first one commits
func (r *RefreshTokenRepo) ListActiveByFamily(ctx context.Context, owner string, family uuid.UUID) ([]models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, listActiveByFamily, owner, family)
	tokens, err := pgx.CollectRows(rows, rowToRefreshToken)
	if err != nil {
		return nil, dbError(err)
	}
	return tokens, nil
}

const revokeToken = `-- name: RevokeToken if it is not revoked
UPDATE refresh_tokens
SET revoked = true
WHERE id = $1 AND NOT revoked
`

func (r *RefreshTokenRepo) Revoke(ctx context.Context, id string) (bool, error) {
	tag, err := r.DB.Exec(ctx, revokeToken, id)
	if err != nil {
		return false, dbError(err)
	}
	return tag.RowsAffected() == 1, nil
}

const revokeFamily = `-- name: RevokeFamily
UPDATE refresh_tokens
SET revoked = true
WHERE family = $1 AND NOT revoked
`

func (r *RefreshTokenRepo) RevokeFamily(ctx context.Context, family uuid.UUID) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeFamily, family)
	if err != nil {
		return 0, dbError(err)
	}
	return tag.RowsAffected(), nil
}

const revokeAllForOwner = `-- name: RevokeAllForOwner
UPDATE refresh_tokens
SET revoked = true
WHERE owner = $1 AND NOT revoked
`

func (r *RefreshTokenRepo) RevokeAllForOwner(ctx context.Context, owner string) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeAllForOwner, owner)
	if err != nil {
		return 0, dbError(err)
	}
	return tag.RowsAffected(), nil
}

const countActive = `-- name: CountActive
SELECT count(*) FROM refresh_tokens
WHERE owner = $1 AND NOT revoked AND expires_at > $2
`

func (r *RefreshTokenRepo) CountActive(ctx context.Context, owner string, now time.Time) (int64, error) {
	rows, _ := r.DB.Query(ctx, countActive, owner, now)
	count, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, dbError(err)
	}
	return count, nil
}

const deleteExpiredAndRevoked = `-- name: DeleteExpiredAndRevoked in batch
DELETE FROM refresh_tokens
WHERE id IN (
	SELECT id FROM refresh_tokens
	WHERE revoked OR expires_at < $1
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
`

// Rows locked by an in-flight rotation are skipped and picked up by the next sweep
func (r *RefreshTokenRepo) DeleteExpiredAndRevoked(ctx context.Context, now time.Time, limit int) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredAndRevoked, now, limit)
	if err != nil {
		return 0, dbError(err)
	}
	return tag.RowsAffected(), nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.TokenHash, &t.Owner, &t.Family, &t.DeviceInfo, &t.CreatedAt, &t.ExpiresAt, &t.Revoked)
	return t, err
}
