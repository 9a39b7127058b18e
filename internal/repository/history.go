package repository

import (
	"context"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryRepository is the append-only ledger of applied knowledge changes.
type HistoryRepository struct {
	db dbtx
}

func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{db: pool}
}

func NewHistoryRepositoryWithTx(tx pgx.Tx) *HistoryRepository {
	return &HistoryRepository{db: tx}
}

func (r *HistoryRepository) Create(ctx context.Context, h *domain.KnowledgeItemHistory) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_item_history
			(id, item_id, organization_id, edit_request_id, previous_title, previous_content, previous_resolved_content,
			 new_title, new_content, new_resolved_content, change_type, change_source, change_description, changed_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		h.ID, h.ItemID, h.OrgID, nullableString(h.EditRequestID), h.PreviousTitle, h.PreviousContent, h.PreviousResolvedContent,
		h.NewTitle, h.NewContent, h.NewResolvedContent, h.ChangeType, h.ChangeSource, nullableString(h.ChangeDescription),
		nullableString(h.ChangedBy), h.CreatedAt,
	)
	return err
}

// ListByItem returns an item's history, newest first.
func (r *HistoryRepository) ListByItem(ctx context.Context, itemID string) ([]*domain.KnowledgeItemHistory, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, item_id, organization_id, edit_request_id, previous_title, previous_content, previous_resolved_content,
		        new_title, new_content, new_resolved_content, change_type, change_source, change_description, changed_by, created_at
		 FROM knowledge_item_history WHERE item_id = $1 ORDER BY created_at DESC, id DESC`,
		itemID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.KnowledgeItemHistory
	for rows.Next() {
		var h domain.KnowledgeItemHistory
		var editRequestID, description, changedBy *string
		if err := rows.Scan(&h.ID, &h.ItemID, &h.OrgID, &editRequestID, &h.PreviousTitle, &h.PreviousContent,
			&h.PreviousResolvedContent, &h.NewTitle, &h.NewContent, &h.NewResolvedContent, &h.ChangeType,
			&h.ChangeSource, &description, &changedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.EditRequestID = derefString(editRequestID)
		h.ChangeDescription = derefString(description)
		h.ChangedBy = derefString(changedBy)
		out = append(out, &h)
	}
	return out, rows.Err()
}
