package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/domain"
)

// ObjectStore keeps the raw source artifacts of imports.
type ObjectStore interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
}

// ImportLogRepositoryInterface defines persistence for import progress records
type ImportLogRepositoryInterface interface {
	Create(ctx context.Context, l *domain.ImportLog) error
	GetByID(ctx context.Context, id string) (*domain.ImportLog, error)
	Start(ctx context.Context, id, itemID string) error
	Finish(ctx context.Context, id string, status domain.ImportStatus, errMsg string) error
}

// ImportResult is returned by every ingestion orchestrator. Item is set as
// soon as the item exists, also when the import failed afterwards.
type ImportResult struct {
	Item        *domain.KnowledgeItem
	ImportLogID string
	ChunkCount  int
	Fallback    bool
}

// importer holds the steps the file, URL and wizard orchestrators share:
// open an import log, create the item in processing, write the extracted
// text through the ContentWriter and run an ingest pass.
type importer struct {
	items     KnowledgeRepositoryInterface
	logs      ImportLogRepositoryInterface
	products  ProductRepositoryInterface
	writer    *ContentWriter
	processor ItemProcessor
	uuidGen   UUIDGenerator
	now       func() time.Time
}

func newImporter(items KnowledgeRepositoryInterface, logs ImportLogRepositoryInterface, products ProductRepositoryInterface, writer *ContentWriter, processor ItemProcessor) importer {
	return importer{
		items:     items,
		logs:      logs,
		products:  products,
		writer:    writer,
		processor: processor,
		uuidGen:   &DefaultUUIDGenerator{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (im *importer) begin(ctx context.Context, orgID string, source domain.ImportSource, ref string) (*domain.ImportLog, error) {
	l := &domain.ImportLog{
		ID:        im.uuidGen.NewString(),
		OrgID:     orgID,
		Source:    source,
		SourceRef: ref,
		Status:    domain.ImportStatusPending,
		CreatedAt: im.now(),
	}
	if err := domain.ValidateImportLog(l); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid import", err)
	}
	if err := im.logs.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to create import log: %w", err)
	}
	return l, nil
}

// newItem returns an empty item in processing. Content arrives later through
// the ContentWriter, which flags it for reindexing.
func (im *importer) newItem(orgID, title string, typ domain.KnowledgeType, source domain.KnowledgeSource) *domain.KnowledgeItem {
	now := im.now()
	if typ == "" {
		typ = domain.KnowledgeTypeGeneral
	}
	return &domain.KnowledgeItem{
		ID:        im.uuidGen.NewString(),
		OrgID:     orgID,
		Title:     title,
		Type:      typ,
		Scope:     domain.KnowledgeScopeGlobal,
		Status:    domain.KnowledgeStatusProcessing,
		Source:    source,
		IsActive:  true,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// checkProduct rejects products that do not belong to the organization.
func (im *importer) checkProduct(ctx context.Context, orgID, productID string) error {
	if productID == "" {
		return nil
	}
	if im.products == nil {
		return domain.ErrProductNotFound
	}
	p, err := im.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if p.OrgID != orgID {
		return domain.ErrProductNotFound
	}
	return nil
}

func (im *importer) create(ctx context.Context, l *domain.ImportLog, item *domain.KnowledgeItem) error {
	if item.ProductID != "" {
		item.Scope = domain.KnowledgeScopeProduct
	}
	if err := domain.ValidateKnowledgeItem(item); err != nil {
		im.finish(ctx, l, err)
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid knowledge item", err)
	}
	if err := im.items.Create(ctx, item); err != nil {
		im.finish(ctx, l, err)
		return fmt.Errorf("failed to create knowledge item: %w", err)
	}
	if err := im.logs.Start(ctx, l.ID, item.ID); err != nil {
		log.Printf("Failed to start import log %s: %v", l.ID, err)
	}
	l.KnowledgeItemID = item.ID
	return nil
}

// ingest writes text into the item and runs the first processing pass.
func (im *importer) ingest(ctx context.Context, l *domain.ImportLog, item *domain.KnowledgeItem, change ContentChange) (*ImportResult, error) {
	result := &ImportResult{Item: item, ImportLogID: l.ID}

	updated, err := im.writer.Write(ctx, im.items, item, change)
	if err != nil {
		return result, im.abort(ctx, l, item, fmt.Errorf("failed to store content: %w", err))
	}
	result.Item = updated

	processed, err := im.processor.Process(ctx, item.ID, ProcessModeIngest)
	if err != nil {
		// the pass has already put the item in error
		im.finish(ctx, l, err)
		result.Item = im.reload(ctx, updated)
		return result, err
	}

	im.finish(ctx, l, nil)
	result.ChunkCount = processed.ChunkCount
	result.Fallback = processed.Fallback
	result.Item = im.reload(ctx, updated)
	return result, nil
}

// abort puts an item that never reached a processing pass into error.
func (im *importer) abort(ctx context.Context, l *domain.ImportLog, item *domain.KnowledgeItem, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if err := im.items.MarkError(ctx, item.ID, cause.Error()); err != nil {
		log.Printf("Failed to mark item %s as error: %v", item.ID, err)
	} else {
		item.Status = domain.KnowledgeStatusError
		item.ErrorMessage = cause.Error()
	}
	im.finish(ctx, l, cause)
	return cause
}

func (im *importer) finish(ctx context.Context, l *domain.ImportLog, cause error) {
	ctx = context.WithoutCancel(ctx)
	status, msg := domain.ImportStatusCompleted, ""
	if cause != nil {
		status, msg = domain.ImportStatusFailed, cause.Error()
	}
	if err := im.logs.Finish(ctx, l.ID, status, msg); err != nil {
		log.Printf("Failed to finish import log %s: %v", l.ID, err)
		return
	}
	l.Status = status
	l.ErrorMessage = msg
}

func (im *importer) reload(ctx context.Context, fallback *domain.KnowledgeItem) *domain.KnowledgeItem {
	item, err := im.items.GetByID(context.WithoutCancel(ctx), fallback.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrKnowledgeNotFound) {
			log.Printf("Failed to reload item %s: %v", fallback.ID, err)
		}
		return fallback
	}
	return item
}

// ImportStatusService answers progress queries for imports.
type ImportStatusService struct {
	logs ImportLogRepositoryInterface
}

func NewImportStatusService(logs ImportLogRepositoryInterface) *ImportStatusService {
	return &ImportStatusService{logs: logs}
}

// Get returns an import log of the organization. Logs of other organizations
// are reported as not found.
func (s *ImportStatusService) Get(ctx context.Context, orgID, id string) (*domain.ImportLog, error) {
	if orgID == "" || id == "" {
		return nil, domain.ErrMissingRequiredField
	}
	l, err := s.logs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.OrgID != orgID {
		return nil, domain.ErrImportLogNotFound
	}
	return l, nil
}
