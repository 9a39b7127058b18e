package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/service"
	"github.com/cloo-solutions/kbpipe/internal/telemetry"
)

// Reindexer processes items flagged needs_reindex.
type Reindexer interface {
	ReindexDirty(ctx context.Context, orgID string, limit int) (*service.ReindexSummary, error)
}

// EditRequestExpirer closes edit requests past their deadline.
type EditRequestExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// ReindexSweeper drains the reindex backlog of every organization and expires
// stale edit requests. Items that fail stay flagged and are retried on the
// next sweep.
type ReindexSweeper struct {
	reindexer   Reindexer
	expirer     EditRequestExpirer
	batchSize   int
	passTimeout time.Duration
	now         func() time.Time
}

// NewReindexSweeper creates a ReindexSweeper. expirer may be nil.
func NewReindexSweeper(reindexer Reindexer, expirer EditRequestExpirer, batchSize int, passTimeout time.Duration) *ReindexSweeper {
	return &ReindexSweeper{
		reindexer:   reindexer,
		expirer:     expirer,
		batchSize:   batchSize,
		passTimeout: passTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Sweep implements Sweeper.
func (s *ReindexSweeper) Sweep(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "ReindexSweeper.Sweep", telemetry.SpanAttributes{Operation: "reindex_sweep"})
	defer span.End()

	var errs []error

	if s.expirer != nil {
		n, err := s.expirer.ExpireStale(ctx, s.now())
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to expire edit requests: %w", err))
		} else if n > 0 {
			log.Printf("Expired %d stale edit requests", n)
		}
	}

	passCtx := ctx
	if s.passTimeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, s.passTimeout)
		defer cancel()
	}

	summary, err := s.reindexer.ReindexDirty(passCtx, "", s.batchSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to reindex: %w", err))
	} else if summary.Processed > 0 || summary.Failed > 0 {
		log.Printf("Reindex sweep: %d processed, %d failed", summary.Processed, summary.Failed)
		if summary.Failed > 0 {
			telemetry.CaptureMessage(ctx, fmt.Sprintf("reindex sweep: %d items failed", summary.Failed))
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		span.SetError(err)
	}
	return err
}
