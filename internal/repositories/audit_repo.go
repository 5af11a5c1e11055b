package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/helios-hq/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Log(ctx context.Context, entry models.LifecycleEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lifecycle_events (org_id, actor_user_id, actor_type, category, event_type, entity_type, entity_id, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.OrgID, entry.ActorUserID, entry.ActorType, entry.Category, entry.EventType, entry.EntityType, entry.EntityID, entry.Details)
	return err
}

func (r *AuditRepo) GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.LifecycleEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, org_id, actor_user_id, actor_type, category, event_type, entity_type, entity_id, details, created_at
		FROM lifecycle_events WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4
	`, entityType, entityID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LifecycleEvent
	for rows.Next() {
		var e models.LifecycleEvent
		if err := rows.Scan(&e.ID, &e.OrgID, &e.ActorUserID, &e.ActorType, &e.Category, &e.EventType,
			&e.EntityType, &e.EntityID, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
