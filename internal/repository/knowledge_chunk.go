package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// KnowledgeChunkRepository handles persistence of chunked knowledge embeddings.
type KnowledgeChunkRepository struct {
	db dbtx
}

func NewKnowledgeChunkRepository(pool *pgxpool.Pool) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: pool}
}

// ReplaceChunks atomically swaps the chunk set of an item. The transaction
// holds an advisory lock keyed by the item id, so two passes over the same
// item never interleave their delete and insert. version is the
// content_version the chunks were cut from; when the item has moved past it
// the swap is abandoned with domain.ErrStalePass and the stored set is kept.
func (r *KnowledgeChunkRepository) ReplaceChunks(ctx context.Context, itemID string, version int64, chunks []domain.KnowledgeChunk) error {
	for i, c := range chunks {
		if c.ChunkIndex != i {
			return fmt.Errorf("chunk %d has index %d: indexes must be contiguous from 0", i, c.ChunkIndex)
		}
		if len(c.Embedding) != domain.EmbeddingDimensions {
			return fmt.Errorf("chunk %d embedding has %d dimensions, want %d", i, len(c.Embedding), domain.EmbeddingDimensions)
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, itemID); err != nil {
		return fmt.Errorf("failed to lock item chunks: %w", err)
	}

	var current int64
	err = tx.QueryRow(ctx, `SELECT content_version FROM knowledge_items WHERE id = $1 FOR UPDATE`, itemID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrKnowledgeNotFound
		}
		return err
	}
	if current != version {
		return domain.ErrStalePass
	}

	if _, err := tx.Exec(ctx, `DELETE FROM knowledge_chunks WHERE item_id = $1`, itemID); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO knowledge_chunks (item_id, organization_id, chunk_index, content, embedding, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			itemID,
			c.OrgID,
			c.ChunkIndex,
			c.Content,
			pgvector.NewVector(c.Embedding),
			map[string]any{"char_count": c.CharCount, "token_estimate": c.TokenEstimate},
			now,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListByItem returns an item's chunks in index order, embeddings included.
func (r *KnowledgeChunkRepository) ListByItem(ctx context.Context, itemID string) ([]domain.KnowledgeChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, item_id, organization_id, chunk_index, content, embedding,
		        COALESCE((metadata->>'char_count')::int, 0), COALESCE((metadata->>'token_estimate')::int, 0), created_at
		 FROM knowledge_chunks WHERE item_id = $1 ORDER BY chunk_index`,
		itemID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.KnowledgeChunk
	for rows.Next() {
		var c domain.KnowledgeChunk
		var vec pgvector.Vector
		if err := rows.Scan(&c.ID, &c.ItemID, &c.OrgID, &c.ChunkIndex, &c.Content, &vec, &c.CharCount, &c.TokenEstimate, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Embedding = vec.Slice()
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *KnowledgeChunkRepository) CountByItem(ctx context.Context, itemID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM knowledge_chunks WHERE item_id = $1`, itemID).Scan(&n)
	return n, err
}
