package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ImportLogRepository tracks the progress of file, URL and wizard imports.
type ImportLogRepository struct {
	db dbtx
}

func NewImportLogRepository(pool *pgxpool.Pool) *ImportLogRepository {
	return &ImportLogRepository{db: pool}
}

func (r *ImportLogRepository) Create(ctx context.Context, l *domain.ImportLog) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO import_logs (id, organization_id, knowledge_item_id, source, source_ref, status, error_message, attempts, created_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.OrgID, nullableString(l.KnowledgeItemID), l.Source, l.SourceRef, l.Status,
		nullableString(l.ErrorMessage), l.Attempts, l.CreatedAt, l.FinishedAt,
	)
	return err
}

func (r *ImportLogRepository) GetByID(ctx context.Context, id string) (*domain.ImportLog, error) {
	var l domain.ImportLog
	var itemID, errMsg *string
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, knowledge_item_id, source, source_ref, status, error_message, attempts, created_at, finished_at
		 FROM import_logs WHERE id = $1`,
		id,
	).Scan(&l.ID, &l.OrgID, &itemID, &l.Source, &l.SourceRef, &l.Status, &errMsg, &l.Attempts, &l.CreatedAt, &l.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrImportLogNotFound
		}
		return nil, err
	}
	l.KnowledgeItemID = derefString(itemID)
	l.ErrorMessage = derefString(errMsg)
	return &l, nil
}

// Start moves the log to processing and counts the attempt.
func (r *ImportLogRepository) Start(ctx context.Context, id, itemID string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE import_logs SET status = $2, knowledge_item_id = COALESCE($3, knowledge_item_id), attempts = attempts + 1
		 WHERE id = $1`,
		id, domain.ImportStatusProcessing, nullableString(itemID),
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrImportLogNotFound
	}
	return nil
}

// Finish records the terminal outcome of an import.
func (r *ImportLogRepository) Finish(ctx context.Context, id string, status domain.ImportStatus, errMsg string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE import_logs SET status = $2, error_message = $3, finished_at = $4 WHERE id = $1`,
		id, status, nullableString(errMsg), time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrImportLogNotFound
	}
	return nil
}
