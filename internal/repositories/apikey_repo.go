package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/helios-hq/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type APIKeyRepo struct {
	pool *pgxpool.Pool
}

func NewAPIKeyRepo(pool *pgxpool.Pool) *APIKeyRepo {
	return &APIKeyRepo{pool: pool}
}

func (r *APIKeyRepo) Create(ctx context.Context, k *models.APIKey) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO api_keys (org_id, user_id, role, name, key_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, k.OrgID, k.UserID, k.Role, k.Name, k.KeyHash,
	).Scan(&k.ID, &k.CreatedAt)
}

func (r *APIKeyRepo) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	var k models.APIKey
	err := r.pool.QueryRow(ctx, `
		SELECT id, org_id, user_id, role, name, key_hash, last_used_at, revoked_at, created_at
		FROM api_keys WHERE key_hash = $1
	`, keyHash).Scan(&k.ID, &k.OrgID, &k.UserID, &k.Role, &k.Name, &k.KeyHash,
		&k.LastUsedAt, &k.RevokedAt, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *APIKeyRepo) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE api_keys SET last_used_at = now() WHERE id = $1
	`, id)
	return err
}
