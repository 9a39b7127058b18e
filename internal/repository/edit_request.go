package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EditRequestRepository struct {
	db dbtx
}

func NewEditRequestRepository(pool *pgxpool.Pool) *EditRequestRepository {
	return &EditRequestRepository{db: pool}
}

func NewEditRequestRepositoryWithTx(tx pgx.Tx) *EditRequestRepository {
	return &EditRequestRepository{db: tx}
}

func (r *EditRequestRepository) Create(ctx context.Context, req *domain.KnowledgeEditRequest) error {
	changes := req.ProposedChanges
	if changes == nil {
		changes = []domain.ProposedChange{}
	}
	warnings := req.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_edit_requests
			(id, organization_id, user_request, proposed_changes, warnings, explanation, status, expires_at, applied_at, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		req.ID, req.OrgID, req.UserRequest, changes, warnings, req.Explanation, req.Status,
		req.ExpiresAt, req.AppliedAt, nullableString(req.CreatedBy), req.CreatedAt,
	)
	return err
}

func (r *EditRequestRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeEditRequest, error) {
	var req domain.KnowledgeEditRequest
	var createdBy *string
	err := r.db.QueryRow(ctx,
		`SELECT id, organization_id, user_request, proposed_changes, warnings, explanation, status, expires_at, applied_at, claimed_at, created_by, created_at
		 FROM knowledge_edit_requests WHERE id = $1`,
		id,
	).Scan(&req.ID, &req.OrgID, &req.UserRequest, &req.ProposedChanges, &req.Warnings, &req.Explanation,
		&req.Status, &req.ExpiresAt, &req.AppliedAt, &req.ClaimedAt, &createdBy, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEditRequestNotFound
		}
		return nil, err
	}
	req.CreatedBy = derefString(createdBy)
	return &req, nil
}

// Claim reserves an open, unexpired request for a single applier. Only the
// first caller succeeds; later callers get ErrEditRequestNotApplicable.
func (r *EditRequestRepository) Claim(ctx context.Context, id string, now time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_edit_requests SET claimed_at = $2
		 WHERE id = $1 AND status IN ('pending', 'confirmed') AND claimed_at IS NULL AND expires_at > $2`,
		id, now,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEditRequestNotApplicable
	}
	return nil
}

// Transition moves a non-terminal request to status. It fails with
// ErrEditRequestNotApplicable when another caller already finished it. A
// claimed request can no longer expire.
func (r *EditRequestRepository) Transition(ctx context.Context, id string, status domain.EditRequestStatus, appliedAt *time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_edit_requests SET status = $2, applied_at = COALESCE($3, applied_at)
		 WHERE id = $1 AND status IN ('pending', 'confirmed')
		   AND ($2 <> 'expired' OR claimed_at IS NULL)`,
		id, status, appliedAt,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEditRequestNotApplicable
	}
	return nil
}

// ExpireStale marks every unclaimed pending or confirmed request past its
// deadline as expired.
func (r *EditRequestRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_edit_requests SET status = 'expired'
		 WHERE status IN ('pending', 'confirmed') AND claimed_at IS NULL AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}
