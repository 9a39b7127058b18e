package repository

import (
	"context"

	"github.com/cloo-solutions/kbpipe/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner hands out item, history and edit-request repositories bound to
// one transaction. Edit applies and direct edits use it so a change and its
// history row commit together.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// WithTx commits when fn returns nil and rolls back otherwise.
func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(txRepos{tx: tx})
	})
}

type txRepos struct {
	tx pgx.Tx
}

func (r txRepos) Items() service.KnowledgeRepositoryInterface {
	return NewKnowledgeRepositoryWithTx(r.tx)
}

func (r txRepos) History() service.HistoryRepositoryInterface {
	return NewHistoryRepositoryWithTx(r.tx)
}

func (r txRepos) EditRequests() service.EditRequestRepositoryInterface {
	return NewEditRequestRepositoryWithTx(r.tx)
}
