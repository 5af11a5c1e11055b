package repositories

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/helios-hq/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TemplateRepo struct {
	pool *pgxpool.Pool
}

func NewTemplateRepo(pool *pgxpool.Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool}
}

func scanTemplate(row pgx.Row) (*models.ActionTemplate, error) {
	var t models.ActionTemplate
	var configBytes []byte
	err := row.Scan(&t.ID, &t.OrgID, &t.Name, &t.ActionType, &configBytes, &t.IsDefault, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(configBytes) > 0 {
		_ = json.Unmarshal(configBytes, &t.Config)
	}
	return &t, nil
}

func (r *TemplateRepo) Create(ctx context.Context, t *models.ActionTemplate) error {
	configBytes, _ := json.Marshal(t.Config)
	return r.pool.QueryRow(ctx, `
		INSERT INTO action_templates (org_id, name, action_type, config, is_default)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, t.OrgID, t.Name, t.ActionType, configBytes, t.IsDefault,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *TemplateRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ActionTemplate, error) {
	return scanTemplate(r.pool.QueryRow(ctx, `
		SELECT id, org_id, name, action_type, config, is_default, created_at, updated_at
		FROM action_templates WHERE id = $1
	`, id))
}

func (r *TemplateRepo) GetDefaultForType(ctx context.Context, orgID uuid.UUID, actionType string) (*models.ActionTemplate, error) {
	return scanTemplate(r.pool.QueryRow(ctx, `
		SELECT id, org_id, name, action_type, config, is_default, created_at, updated_at
		FROM action_templates
		WHERE org_id = $1 AND action_type = $2 AND is_default = true
		LIMIT 1
	`, orgID, actionType))
}

// ListBannerURLs returns the distinct banner URLs referenced by template
// configs, for the worker's liveness sweep.
func (r *TemplateRepo) ListBannerURLs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT config->>'banner_url'
		FROM action_templates
		WHERE config->>'banner_url' IS NOT NULL AND config->>'banner_url' <> ''
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

func (r *TemplateRepo) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]models.ActionTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, org_id, name, action_type, config, is_default, created_at, updated_at
		FROM action_templates WHERE org_id = $1
		ORDER BY action_type, name
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []models.ActionTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}
