package repository

import (
	"context"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type VariableRepository struct {
	db dbtx
}

func NewVariableRepository(pool *pgxpool.Pool) *VariableRepository {
	return &VariableRepository{db: pool}
}

func (r *VariableRepository) Upsert(ctx context.Context, v *domain.OrganizationVariable) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO organization_variables (organization_id, key, value, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (organization_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		v.OrgID, v.Key, v.Value, v.UpdatedAt,
	)
	return err
}

// ListByOrg returns the organization's variables keyed by name.
func (r *VariableRepository) ListByOrg(ctx context.Context, orgID string) (map[string]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT key, value FROM organization_variables WHERE organization_id = $1`,
		orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vars := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		vars[k] = v
	}
	return vars, rows.Err()
}
