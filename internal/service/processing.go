package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/openai"
	"github.com/cloo-solutions/kbpipe/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// ProcessMode selects the embedding failure policy of a processing pass.
type ProcessMode int

const (
	// ProcessModeIngest is used for the first pass over a new item. When the
	// embedding provider is unavailable the pass stores zero vectors so the
	// item is published, and the item stays flagged for reindexing.
	ProcessModeIngest ProcessMode = iota
	// ProcessModeStrict fails the pass on any embedding error.
	ProcessModeStrict
)

func (m ProcessMode) String() string {
	if m == ProcessModeIngest {
		return "ingest"
	}
	return "strict"
}

const (
	reindexConcurrency  = 4
	defaultReindexLimit = 500
)

// Embedder generates document embeddings in batches.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, inputType openai.InputType) ([][]float32, error)
	Model() string
	Dimensions() int
}

// ProcessResult summarizes one processing pass.
type ProcessResult struct {
	ItemID     string
	ChunkCount int
	CharCount  int
	Fallback   bool
}

// ReindexSummary reports a reindex or bulk reprocess run.
type ReindexSummary struct {
	Processed int
	Failed    int
	Errors    map[string]string
}

// ProcessingService runs the chunk, embed and store pass over knowledge items.
type ProcessingService struct {
	items    KnowledgeRepositoryInterface
	chunks   ChunkRepositoryInterface
	embedder Embedder
	chunkCfg ChunkConfig
	now      func() time.Time
}

// NewProcessingService creates a ProcessingService. embedder may be nil when no
// provider is configured: ingest passes then always fall back to zero vectors
// and strict passes fail.
func NewProcessingService(items KnowledgeRepositoryInterface, chunks ChunkRepositoryInterface, embedder Embedder, chunkCfg ChunkConfig) *ProcessingService {
	return &ProcessingService{
		items:    items,
		chunks:   chunks,
		embedder: embedder,
		chunkCfg: chunkCfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Process runs a pass over the item's resolved content.
func (s *ProcessingService) Process(ctx context.Context, itemID string, mode ProcessMode) (*ProcessResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ProcessingService.Process", telemetry.SpanAttributes{
		ItemID:    itemID,
		Operation: "process_" + mode.String(),
	})
	defer span.End()

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.IsActive {
		return nil, domain.ErrKnowledgeInactive
	}

	result, err := s.run(ctx, item, item.EmbeddableContent(), mode)
	if err != nil {
		span.SetError(err)
	}
	return result, err
}

// Reprocess reruns the pipeline over the item's original_content snapshot
// without any embedding fallback. An item without a snapshot is rejected and
// left untouched. When the snapshot no longer matches the resolved content the
// item keeps needs_reindex.
func (s *ProcessingService) Reprocess(ctx context.Context, itemID string) (*ProcessResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ProcessingService.Reprocess", telemetry.SpanAttributes{
		ItemID:    itemID,
		Operation: "reprocess",
	})
	defer span.End()

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.IsActive {
		return nil, domain.ErrKnowledgeInactive
	}
	text, ok := item.OriginalContent()
	if !ok {
		return nil, domain.ErrNoOriginalContent
	}

	result, err := s.run(ctx, item, text, ProcessModeStrict)
	if err != nil {
		span.SetError(err)
	}
	return result, err
}

// ReprocessMany reprocesses items one after another and reports per-item failures.
func (s *ProcessingService) ReprocessMany(ctx context.Context, itemIDs []string) *ReindexSummary {
	summary := &ReindexSummary{Errors: map[string]string{}}
	for _, id := range itemIDs {
		if _, err := s.Reprocess(ctx, id); err != nil {
			summary.Failed++
			summary.Errors[id] = err.Error()
			continue
		}
		summary.Processed++
	}
	return summary
}

// ReprocessOrg reprocesses every active item of the organization that has a snapshot.
func (s *ProcessingService) ReprocessOrg(ctx context.Context, orgID string) (*ReindexSummary, error) {
	items, err := s.items.ListWithOriginalContent(ctx, orgID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return s.ReprocessMany(ctx, ids), nil
}

// ReindexDirty processes every active item flagged needs_reindex. An empty
// orgID sweeps all organizations. Per-item failures are logged and counted,
// never retried here; the item stays dirty for the next sweep.
func (s *ProcessingService) ReindexDirty(ctx context.Context, orgID string, limit int) (*ReindexSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "ProcessingService.ReindexDirty", telemetry.SpanAttributes{
		OrgID:     orgID,
		Operation: "reindex",
	})
	defer span.End()

	if limit <= 0 {
		limit = defaultReindexLimit
	}
	items, err := s.items.ListNeedingReindex(ctx, orgID, limit)
	if err != nil {
		return nil, err
	}

	summary := &ReindexSummary{Errors: map[string]string{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reindexConcurrency)
	for _, item := range items {
		g.Go(func() error {
			_, err := s.run(gctx, item, item.EmbeddableContent(), ProcessModeStrict)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("Reindex of item %s failed: %v", item.ID, err)
				summary.Failed++
				summary.Errors[item.ID] = err.Error()
				return nil
			}
			summary.Processed++
			return nil
		})
	}
	_ = g.Wait()

	return summary, nil
}

// run is the pass itself: chunk, embed in batches, replace chunks, publish.
// Every failure after MarkProcessing ends in MarkError, so no pass leaves the
// item in processing.
func (s *ProcessingService) run(ctx context.Context, item *domain.KnowledgeItem, text string, mode ProcessMode) (*ProcessResult, error) {
	if err := s.items.MarkProcessing(ctx, item.ID); err != nil {
		return nil, fmt.Errorf("failed to mark item processing: %w", err)
	}

	chunks := chunkText(text, s.chunkCfg)
	if len(chunks) == 0 {
		s.fail(ctx, item, domain.ErrNoChunks.Message)
		return nil, domain.ErrNoChunks
	}

	inputs := make([]string, len(chunks))
	for i, c := range chunks {
		inputs[i] = embeddingInput(item.Title, c.Content)
	}

	fallback := false
	vectors, err := s.embed(ctx, inputs)
	if err != nil {
		if mode != ProcessModeIngest || !fallbackAllowed(err) {
			s.fail(ctx, item, fmt.Sprintf("embedding failed: %v", err))
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "embedding failed", err)
		}
		log.Printf("WARNING: embeddings unavailable for item %s, storing %d zero vectors; item stays flagged for reindex: %v", item.ID, len(chunks), err)
		telemetry.CaptureMessage(ctx, fmt.Sprintf("zero-vector fallback for item %s: %v", item.ID, err))
		vectors = zeroVectors(len(chunks), domain.EmbeddingDimensions)
		fallback = true
	}

	now := s.now()
	records := make([]domain.KnowledgeChunk, len(chunks))
	chars := 0
	for i, c := range chunks {
		records[i] = domain.KnowledgeChunk{
			ItemID:        item.ID,
			OrgID:         item.OrgID,
			ChunkIndex:    c.Index,
			Content:       c.Content,
			Embedding:     vectors[i],
			CharCount:     c.CharCount,
			TokenEstimate: c.TokenEstimate,
			CreatedAt:     now,
		}
		chars += c.CharCount
	}

	if err := s.chunks.ReplaceChunks(ctx, item.ID, item.ContentVersion, records); err != nil {
		if errors.Is(err, domain.ErrStalePass) {
			s.settleStale(ctx, item)
			return nil, err
		}
		s.fail(ctx, item, fmt.Sprintf("failed to store chunks: %v", err))
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	model := ""
	if s.embedder != nil {
		model = s.embedder.Model()
	}
	patch := map[string]any{
		domain.MetaOriginalContent:    text,
		domain.MetaCharCount:          chars,
		domain.MetaChunkCount:         len(records),
		domain.MetaEmbeddingModel:     model,
		domain.MetaEmbeddingDimension: domain.EmbeddingDimensions,
		domain.MetaEmbeddingFallback:  fallback,
		domain.MetaProcessedAt:        now.Format(time.RFC3339),
	}
	// A pass over an older snapshot publishes its chunks but leaves the
	// current content to the reindex sweep.
	clearReindex := !fallback && text == item.EmbeddableContent()
	if err := s.items.MarkPublished(ctx, item.ID, item.ContentVersion, patch, clearReindex); err != nil {
		s.fail(ctx, item, fmt.Sprintf("failed to publish: %v", err))
		return nil, fmt.Errorf("failed to publish item: %w", err)
	}

	log.Printf("Processed item %s: %d chunks, %d chars, mode=%s fallback=%t", item.ID, len(records), chars, mode, fallback)
	return &ProcessResult{
		ItemID:     item.ID,
		ChunkCount: len(records),
		CharCount:  chars,
		Fallback:   fallback,
	}, nil
}

func (s *ProcessingService) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	vectors, err := s.embedder.EmbedBatch(ctx, inputs, openai.InputTypeDocument)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d, want %d", openai.ErrCountMismatch, len(vectors), len(inputs))
	}
	for _, v := range vectors {
		if len(v) != domain.EmbeddingDimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", openai.ErrWrongDimensions, len(v), domain.EmbeddingDimensions)
		}
	}
	return vectors, nil
}

// fail records the error on the item. It uses a context detached from
// cancellation so a timed-out pass still leaves the item in error.
func (s *ProcessingService) fail(ctx context.Context, item *domain.KnowledgeItem, message string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.items.MarkError(ctx, item.ID, message); err != nil && !errors.Is(err, domain.ErrKnowledgeNotFound) {
		log.Printf("Failed to mark item %s as error: %v", item.ID, err)
	}
	telemetry.CaptureError(ctx, fmt.Errorf("processing item %s: %s", item.ID, message))
}

// fallbackAllowed reports whether an ingest pass may store zero vectors: the
// provider is missing, unreachable or refusing the credentials. Rejected input
// and unusable vectors always fail the pass.
func fallbackAllowed(err error) bool {
	return errors.Is(err, domain.ErrEmbeddingUnavailable) || openai.IsUnavailable(err)
}

// settleStale releases the processing status taken by a pass whose content
// version was overtaken. Chunks, metadata and needs_reindex are left to the
// pass that owns the newer version.
func (s *ProcessingService) settleStale(ctx context.Context, item *domain.KnowledgeItem) {
	ctx = context.WithoutCancel(ctx)
	log.Printf("Discarding stale pass over item %s at content version %d", item.ID, item.ContentVersion)
	if err := s.items.MarkPublished(ctx, item.ID, item.ContentVersion, nil, false); err != nil && !errors.Is(err, domain.ErrKnowledgeNotFound) {
		log.Printf("Failed to settle stale pass over item %s: %v", item.ID, err)
	}
}

func embeddingInput(title, chunk string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return chunk
	}
	return title + "\n\n" + chunk
}

func zeroVectors(n, dims int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dims)
	}
	return out
}
