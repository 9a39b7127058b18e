//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductRepository(t *testing.T) {
	ctx := context.Background()
	pool := setupTestDB(ctx, t)
	repo := NewProductRepository(pool)
	orgID := uuid.NewString()

	pro := &domain.Product{ID: uuid.NewString(), OrgID: orgID, Slug: "pro", Name: "Pro plan", Price: "49.00", IsActive: true, CreatedAt: time.Now().UTC()}
	basic := &domain.Product{ID: uuid.NewString(), OrgID: orgID, Slug: "basic", Name: "Basic plan", IsActive: true, CreatedAt: time.Now().UTC()}
	retired := &domain.Product{ID: uuid.NewString(), OrgID: orgID, Slug: "legacy", Name: "Legacy", IsActive: false, CreatedAt: time.Now().UTC()}
	for _, p := range []*domain.Product{pro, basic, retired} {
		require.NoError(t, repo.Create(ctx, p))
	}

	t.Run("slug lookup is scoped to the organization", func(t *testing.T) {
		got, err := repo.GetBySlug(ctx, orgID, "pro")
		require.NoError(t, err)
		assert.Equal(t, pro.ID, got.ID)

		_, err = repo.GetBySlug(ctx, uuid.NewString(), "pro")
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
	})

	t.Run("inactive products are hidden from slug lookup and listing", func(t *testing.T) {
		_, err := repo.GetBySlug(ctx, orgID, "legacy")
		assert.ErrorIs(t, err, domain.ErrProductNotFound)

		list, err := repo.ListActiveByOrg(ctx, orgID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Basic plan", list[0].Name)
	})

	t.Run("slugs are unique per organization", func(t *testing.T) {
		dup := &domain.Product{ID: uuid.NewString(), OrgID: orgID, Slug: "pro", Name: "Copy", IsActive: true, CreatedAt: time.Now().UTC()}
		assert.Error(t, repo.Create(ctx, dup))
	})
}

func TestVariableRepository(t *testing.T) {
	ctx := context.Background()
	pool := setupTestDB(ctx, t)
	repo := NewVariableRepository(pool)
	orgID := uuid.NewString()

	require.NoError(t, repo.Upsert(ctx, &domain.OrganizationVariable{OrgID: orgID, Key: "phone", Value: "555-0100", UpdatedAt: time.Now().UTC()}))
	require.NoError(t, repo.Upsert(ctx, &domain.OrganizationVariable{OrgID: orgID, Key: "store", Value: "Main St", UpdatedAt: time.Now().UTC()}))
	require.NoError(t, repo.Upsert(ctx, &domain.OrganizationVariable{OrgID: orgID, Key: "phone", Value: "555-0199", UpdatedAt: time.Now().UTC()}))

	vars, err := repo.ListByOrg(ctx, orgID)

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"phone": "555-0199", "store": "Main St"}, vars)

	empty, err := repo.ListByOrg(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, empty)
}
