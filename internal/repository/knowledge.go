package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/pagination"
	"github.com/cloo-solutions/kbpipe/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const itemColumns = `id, organization_id, agent_id, product_id, title, content, resolved_content, type, category,
	scope, status, source, source_url, source_file_path, is_active, needs_reindex, content_version,
	error_message, metadata, created_at, updated_at`

// staleProcessingAfter is how long an item may sit in processing before a
// sweep treats the pass that owned it as dead.
const staleProcessingAfter = 10 * time.Minute

type KnowledgeRepository struct {
	db dbtx
}

func NewKnowledgeRepository(pool *pgxpool.Pool) *KnowledgeRepository {
	return &KnowledgeRepository{db: pool}
}

func NewKnowledgeRepositoryWithTx(tx pgx.Tx) *KnowledgeRepository {
	return &KnowledgeRepository{db: tx}
}

func (r *KnowledgeRepository) Create(ctx context.Context, k *domain.KnowledgeItem) error {
	if k.Metadata == nil {
		k.Metadata = map[string]any{}
	}
	if k.ContentVersion == 0 {
		k.ContentVersion = 1
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_items (`+itemColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		k.ID, k.OrgID, nullableString(k.AgentID), nullableString(k.ProductID), k.Title, k.Content, k.ResolvedContent,
		k.Type, nullableString(k.Category), k.Scope, k.Status, k.Source, nullableString(k.SourceURL),
		nullableString(k.SourceFilePath), k.IsActive, k.NeedsReindex, k.ContentVersion,
		nullableString(k.ErrorMessage), k.Metadata, k.CreatedAt, k.UpdatedAt,
	)
	return err
}

func (r *KnowledgeRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeItem, error) {
	k, err := scanItem(r.db.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM knowledge_items WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrKnowledgeNotFound
		}
		return nil, err
	}
	return k, nil
}

func (r *KnowledgeRepository) ListByOrgWithCursor(ctx context.Context, orgID string, cursor *pagination.Cursor, limit int) (*service.KnowledgePageResult, error) {
	limit = pagination.ClampLimit(limit)

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+itemColumns+`
			 FROM knowledge_items
			 WHERE organization_id = $1 AND is_active AND (updated_at, id) < ($2, $3)
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $4`,
			orgID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+itemColumns+`
			 FROM knowledge_items
			 WHERE organization_id = $1 AND is_active
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $2`,
			orgID, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanItemRows(rows)
	if err != nil {
		return nil, err
	}

	page := pagination.Trim(items, limit, func(k *domain.KnowledgeItem) (string, time.Time) {
		return k.ID, k.UpdatedAt
	})
	return &service.KnowledgePageResult{
		Items:      page.Items,
		NextCursor: page.Cursor,
		HasMore:    page.HasMore,
	}, nil
}

// ListActiveByOrg returns the most recently updated active items, newest first.
func (r *KnowledgeRepository) ListActiveByOrg(ctx context.Context, orgID string, limit int) ([]*domain.KnowledgeItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+itemColumns+`
		 FROM knowledge_items
		 WHERE organization_id = $1 AND is_active
		 ORDER BY updated_at DESC
		 LIMIT $2`,
		orgID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItemRows(rows)
}

// ListNeedingReindex returns active items with needs_reindex set. An empty
// orgID spans every organization. Items currently owned by a live processing
// pass are skipped.
func (r *KnowledgeRepository) ListNeedingReindex(ctx context.Context, orgID string, limit int) ([]*domain.KnowledgeItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+itemColumns+`
		 FROM knowledge_items
		 WHERE is_active AND needs_reindex
		   AND ($1::text = '' OR organization_id::text = $1::text)
		   AND (status <> 'processing' OR updated_at < $2)
		 ORDER BY updated_at ASC
		 LIMIT $3`,
		orgID, time.Now().UTC().Add(-staleProcessingAfter), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItemRows(rows)
}

// ListWithOriginalContent returns active items that carry a reprocessing snapshot.
func (r *KnowledgeRepository) ListWithOriginalContent(ctx context.Context, orgID string) ([]*domain.KnowledgeItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+itemColumns+`
		 FROM knowledge_items
		 WHERE organization_id = $1 AND is_active AND metadata ? 'original_content'
		 ORDER BY created_at ASC`,
		orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItemRows(rows)
}

// ListUsingVariable returns active items whose content references {{key}}.
func (r *KnowledgeRepository) ListUsingVariable(ctx context.Context, orgID, key string) ([]*domain.KnowledgeItem, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+itemColumns+`
		 FROM knowledge_items
		 WHERE organization_id = $1 AND is_active AND content ~ ('\{\{\s*' || $2 || '\s*\}\}')`,
		orgID, key,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItemRows(rows)
}

// UpdateContent writes content and its materialized form, bumps
// content_version and flags the item for reindexing. It returns the new version.
func (r *KnowledgeRepository) UpdateContent(ctx context.Context, id string, u service.ContentUpdate) (int64, error) {
	var version int64
	err := r.db.QueryRow(ctx,
		`UPDATE knowledge_items
		 SET title = COALESCE($2, title),
		     content = $3,
		     resolved_content = $4,
		     category = COALESCE($5, category),
		     content_version = content_version + 1,
		     needs_reindex = true,
		     updated_at = $6
		 WHERE id = $1
		 RETURNING content_version`,
		id, u.Title, u.Content, u.ResolvedContent, u.Category, time.Now().UTC(),
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrKnowledgeNotFound
		}
		return 0, err
	}
	return version, nil
}

func (r *KnowledgeRepository) SetActive(ctx context.Context, id string, active bool) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_items SET is_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

func (r *KnowledgeRepository) MarkProcessing(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_items SET status = $2, error_message = NULL, updated_at = $3 WHERE id = $1`,
		id, domain.KnowledgeStatusProcessing, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

// MarkPublished finishes a processing pass. The metadata patch is merged and
// needs_reindex cleared only when the item is still at the content version the
// pass chunked; a stale pass leaves the item dirty for the next sweep.
func (r *KnowledgeRepository) MarkPublished(ctx context.Context, id string, version int64, metadataPatch map[string]any, clearReindex bool) error {
	if metadataPatch == nil {
		metadataPatch = map[string]any{}
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_items
		 SET status = $2,
		     error_message = NULL,
		     metadata = CASE WHEN content_version = $3 THEN metadata || $4::jsonb ELSE metadata END,
		     needs_reindex = CASE WHEN $5::boolean AND content_version = $3 THEN false ELSE needs_reindex END,
		     updated_at = $6
		 WHERE id = $1`,
		id, domain.KnowledgeStatusPublished, version, metadataPatch, clearReindex, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

func (r *KnowledgeRepository) MarkError(ctx context.Context, id, message string) error {
	if message == "" {
		message = "processing failed"
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_items SET status = $2, error_message = $3, updated_at = $4 WHERE id = $1`,
		id, domain.KnowledgeStatusError, message, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

func scanItem(row pgx.Row) (*domain.KnowledgeItem, error) {
	var k domain.KnowledgeItem
	var agentID, productID, category, sourceURL, sourceFile, errMsg *string
	err := row.Scan(&k.ID, &k.OrgID, &agentID, &productID, &k.Title, &k.Content, &k.ResolvedContent,
		&k.Type, &category, &k.Scope, &k.Status, &k.Source, &sourceURL, &sourceFile, &k.IsActive,
		&k.NeedsReindex, &k.ContentVersion, &errMsg, &k.Metadata, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	k.AgentID = derefString(agentID)
	k.ProductID = derefString(productID)
	k.Category = derefString(category)
	k.SourceURL = derefString(sourceURL)
	k.SourceFilePath = derefString(sourceFile)
	k.ErrorMessage = derefString(errMsg)
	if k.Metadata == nil {
		k.Metadata = map[string]any{}
	}
	return &k, nil
}

func scanItemRows(rows pgx.Rows) ([]*domain.KnowledgeItem, error) {
	var results []*domain.KnowledgeItem
	for rows.Next() {
		k, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, k)
	}
	return results, rows.Err()
}
