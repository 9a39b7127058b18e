package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const productColumns = `id, organization_id, slug, name, description, price, is_active, created_at`

// ProductRepository reads the product catalog used for slug resolution and
// template variables. Products are owned by another part of the CRM.
type ProductRepository struct {
	db dbtx
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{db: pool}
}

func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.OrgID, p.Slug, p.Name, p.Description, p.Price, p.IsActive, p.CreatedAt,
	)
	return err
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	return r.getOne(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (r *ProductRepository) GetBySlug(ctx context.Context, orgID, slug string) (*domain.Product, error) {
	return r.getOne(ctx, `SELECT `+productColumns+` FROM products WHERE organization_id = $1 AND slug = $2 AND is_active`, orgID, slug)
}

func (r *ProductRepository) ListActiveByOrg(ctx context.Context, orgID string) ([]*domain.Product, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE organization_id = $1 AND is_active ORDER BY name`,
		orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Slug, &p.Name, &p.Description, &p.Price, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *ProductRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Product, error) {
	var p domain.Product
	err := r.db.QueryRow(ctx, query, args...).
		Scan(&p.ID, &p.OrgID, &p.Slug, &p.Name, &p.Description, &p.Price, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}
