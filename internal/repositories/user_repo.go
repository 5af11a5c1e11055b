package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/helios-hq/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrgUserRepo struct {
	pool *pgxpool.Pool
}

func NewOrgUserRepo(pool *pgxpool.Pool) *OrgUserRepo {
	return &OrgUserRepo{pool: pool}
}

func (r *OrgUserRepo) Create(ctx context.Context, u *models.OrgUser) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO organization_users (org_id, email, first_name, last_name, personal_email, user_status, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, u.OrgID, u.Email, u.FirstName, u.LastName, u.PersonalEmail, u.UserStatus, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

func (r *OrgUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.OrgUser, error) {
	var u models.OrgUser
	err := r.pool.QueryRow(ctx, `
		SELECT id, org_id, email, first_name, last_name, personal_email,
		       user_status, is_active, deleted_at, created_at, updated_at
		FROM organization_users WHERE id = $1
	`, id).Scan(&u.ID, &u.OrgID, &u.Email, &u.FirstName, &u.LastName, &u.PersonalEmail,
		&u.UserStatus, &u.IsActive, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *OrgUserRepo) GetByEmail(ctx context.Context, orgID uuid.UUID, email string) (*models.OrgUser, error) {
	var u models.OrgUser
	err := r.pool.QueryRow(ctx, `
		SELECT id, org_id, email, first_name, last_name, personal_email,
		       user_status, is_active, deleted_at, created_at, updated_at
		FROM organization_users WHERE org_id = $1 AND email = $2
	`, orgID, email).Scan(&u.ID, &u.OrgID, &u.Email, &u.FirstName, &u.LastName, &u.PersonalEmail,
		&u.UserStatus, &u.IsActive, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

type OrgUserFilter struct {
	OrgID      uuid.UUID
	UserStatus *string
	Limit      int
	Offset     int
}

func (r *OrgUserRepo) List(ctx context.Context, f OrgUserFilter) ([]models.OrgUser, error) {
	query := `
		SELECT id, org_id, email, first_name, last_name, personal_email,
		       user_status, is_active, deleted_at, created_at, updated_at
		FROM organization_users WHERE org_id = $1
	`
	args := []any{f.OrgID}
	argIdx := 2

	if f.UserStatus != nil {
		query += fmt.Sprintf(" AND user_status = $%d", argIdx)
		args = append(args, *f.UserStatus)
		argIdx++
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY email ASC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.OrgUser
	for rows.Next() {
		var u models.OrgUser
		if err := rows.Scan(&u.ID, &u.OrgID, &u.Email, &u.FirstName, &u.LastName, &u.PersonalEmail,
			&u.UserStatus, &u.IsActive, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetLifecycleStatus applies the suspend/unsuspend/delete/restore side effect
// as a single UPDATE.
func (r *OrgUserRepo) SetLifecycleStatus(ctx context.Context, id uuid.UUID, userStatus string, isActive bool, deletedAt *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE organization_users
		SET user_status = $2, is_active = $3, deleted_at = $4, updated_at = now()
		WHERE id = $1
	`, id, userStatus, isActive, deletedAt)
	return err
}
