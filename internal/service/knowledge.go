package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/pagination"
	"github.com/cloo-solutions/kbpipe/internal/telemetry"
	"github.com/google/uuid"
)

// KnowledgeRepositoryInterface defines the repository interface for knowledge item persistence
type KnowledgeRepositoryInterface interface {
	Create(ctx context.Context, k *domain.KnowledgeItem) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeItem, error)
	ListByOrgWithCursor(ctx context.Context, orgID string, cursor *pagination.Cursor, limit int) (*KnowledgePageResult, error)
	ListActiveByOrg(ctx context.Context, orgID string, limit int) ([]*domain.KnowledgeItem, error)
	ListNeedingReindex(ctx context.Context, orgID string, limit int) ([]*domain.KnowledgeItem, error)
	ListWithOriginalContent(ctx context.Context, orgID string) ([]*domain.KnowledgeItem, error)
	ListUsingVariable(ctx context.Context, orgID, key string) ([]*domain.KnowledgeItem, error)
	UpdateContent(ctx context.Context, id string, u ContentUpdate) (int64, error)
	SetActive(ctx context.Context, id string, active bool) error
	MarkProcessing(ctx context.Context, id string) error
	MarkPublished(ctx context.Context, id string, version int64, metadataPatch map[string]any, clearReindex bool) error
	MarkError(ctx context.Context, id, message string) error
}

// ChunkRepositoryInterface defines the repository interface for chunk persistence
type ChunkRepositoryInterface interface {
	ReplaceChunks(ctx context.Context, itemID string, version int64, chunks []domain.KnowledgeChunk) error
}

// HistoryRepositoryInterface defines the append-only history ledger
type HistoryRepositoryInterface interface {
	Create(ctx context.Context, h *domain.KnowledgeItemHistory) error
	ListByItem(ctx context.Context, itemID string) ([]*domain.KnowledgeItemHistory, error)
}

// ProductRepositoryInterface reads the product catalog
type ProductRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	GetBySlug(ctx context.Context, orgID, slug string) (*domain.Product, error)
	ListActiveByOrg(ctx context.Context, orgID string) ([]*domain.Product, error)
}

// VariableRepositoryInterface stores organization template variables
type VariableRepositoryInterface interface {
	Upsert(ctx context.Context, v *domain.OrganizationVariable) error
	ListByOrg(ctx context.Context, orgID string) (map[string]string, error)
}

// ContentUpdate is one content write. Nil Title or Category keep the stored value.
type ContentUpdate struct {
	Title           *string
	Content         string
	ResolvedContent string
	Category        *string
}

type KnowledgePageResult struct {
	Items      []*domain.KnowledgeItem
	NextCursor string
	HasMore    bool
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// ItemProcessor runs the processing pass for one item.
type ItemProcessor interface {
	Process(ctx context.Context, itemID string, mode ProcessMode) (*ProcessResult, error)
}

// KnowledgeService serves direct reads and edits of knowledge items. Edits go
// through the ContentWriter and the history ledger, like edit requests do.
type KnowledgeService struct {
	items     KnowledgeRepositoryInterface
	history   HistoryRepositoryInterface
	variables VariableRepositoryInterface
	writer    *ContentWriter
	txRunner  TxRunner
	processor ItemProcessor
	uuidGen   UUIDGenerator
}

// NewKnowledgeService creates a new KnowledgeService instance. processor may be
// nil, in which case edited items wait for the reindex sweep.
func NewKnowledgeService(
	items KnowledgeRepositoryInterface,
	history HistoryRepositoryInterface,
	variables VariableRepositoryInterface,
	writer *ContentWriter,
	txRunner TxRunner,
	processor ItemProcessor,
) *KnowledgeService {
	return NewKnowledgeServiceWithUUIDGen(items, history, variables, writer, txRunner, processor, &DefaultUUIDGenerator{})
}

// NewKnowledgeServiceWithUUIDGen creates a new KnowledgeService with custom UUID generator (for testing)
func NewKnowledgeServiceWithUUIDGen(
	items KnowledgeRepositoryInterface,
	history HistoryRepositoryInterface,
	variables VariableRepositoryInterface,
	writer *ContentWriter,
	txRunner TxRunner,
	processor ItemProcessor,
	uuidGen UUIDGenerator,
) *KnowledgeService {
	return &KnowledgeService{
		items:     items,
		history:   history,
		variables: variables,
		writer:    writer,
		txRunner:  txRunner,
		processor: processor,
		uuidGen:   uuidGen,
	}
}

type ListKnowledgeInput struct {
	OrgID  string
	Cursor string
	Limit  int
}

type ListKnowledgeOutput struct {
	Items   []*domain.KnowledgeItem
	Cursor  string
	HasMore bool
}

// UpdateInput is a direct edit. Nil fields are left unchanged.
type UpdateInput struct {
	OrgID     string
	ItemID    string
	Title     *string
	Content   *string
	Category  *string
	ChangedBy string
}

// Get returns an item of the organization. Items of other organizations are
// reported as not found.
func (s *KnowledgeService) Get(ctx context.Context, orgID, id string) (*domain.KnowledgeItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Get", telemetry.SpanAttributes{
		OrgID:     orgID,
		ItemID:    id,
		Operation: "get",
	})
	defer span.End()

	return getOwnedItem(ctx, s.items, orgID, id)
}

func (s *KnowledgeService) List(ctx context.Context, input ListKnowledgeInput) (*ListKnowledgeOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.List", telemetry.SpanAttributes{
		OrgID:     input.OrgID,
		Operation: "list",
	})
	defer span.End()

	if input.OrgID == "" {
		return nil, domain.ErrMissingRequiredField
	}

	limit := pagination.ClampLimit(input.Limit)

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	page, err := s.items.ListByOrgWithCursor(ctx, input.OrgID, cursor, limit)
	if err != nil {
		return nil, err
	}

	return &ListKnowledgeOutput{
		Items:   page.Items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	}, nil
}

// History returns the item's history rows, newest first.
func (s *KnowledgeService) History(ctx context.Context, orgID, id string) ([]*domain.KnowledgeItemHistory, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.History", telemetry.SpanAttributes{
		OrgID:     orgID,
		ItemID:    id,
		Operation: "history",
	})
	defer span.End()

	if _, err := getOwnedItem(ctx, s.items, orgID, id); err != nil {
		return nil, err
	}
	return s.history.ListByItem(ctx, id)
}

// Update applies a direct edit, records it in the history ledger and
// reprocesses the item.
func (s *KnowledgeService) Update(ctx context.Context, input UpdateInput) (*domain.KnowledgeItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Update", telemetry.SpanAttributes{
		OrgID:     input.OrgID,
		ItemID:    input.ItemID,
		Operation: "update",
	})
	defer span.End()

	if input.Title == nil && input.Content == nil && input.Category == nil {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "update changes nothing")
	}
	if input.Title != nil && *input.Title == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "title cannot be empty")
	}

	var updated *domain.KnowledgeItem
	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		item, err := getOwnedItem(ctx, repos.Items(), input.OrgID, input.ItemID)
		if err != nil {
			return err
		}
		if !item.IsActive {
			return domain.ErrKnowledgeInactive
		}

		updated, err = s.writer.Write(ctx, repos.Items(), item, ContentChange{
			Title:    input.Title,
			Content:  input.Content,
			Category: input.Category,
		})
		if err != nil {
			return err
		}

		return repos.History().Create(ctx, &domain.KnowledgeItemHistory{
			ID:                      s.uuidGen.NewString(),
			ItemID:                  item.ID,
			OrgID:                   item.OrgID,
			PreviousTitle:           domain.StringPtr(item.Title),
			PreviousContent:         domain.StringPtr(item.Content),
			PreviousResolvedContent: domain.StringPtr(item.ResolvedContent),
			NewTitle:                domain.StringPtr(updated.Title),
			NewContent:              domain.StringPtr(updated.Content),
			NewResolvedContent:      domain.StringPtr(updated.ResolvedContent),
			ChangeType:              domain.ChangeTypeUpdate,
			ChangeSource:            domain.ChangeSourceManual,
			ChangeDescription:       "direct edit",
			ChangedBy:               input.ChangedBy,
			CreatedAt:               time.Now().UTC(),
		})
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.reprocess(ctx, updated.ID)
	return updated, nil
}

// Delete soft-deletes an item. Its chunks stay until the item is purged, but
// inactive items are excluded from every listing and sweep.
func (s *KnowledgeService) Delete(ctx context.Context, orgID, id, changedBy string) error {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Delete", telemetry.SpanAttributes{
		OrgID:     orgID,
		ItemID:    id,
		Operation: "delete",
	})
	defer span.End()

	return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		item, err := getOwnedItem(ctx, repos.Items(), orgID, id)
		if err != nil {
			return err
		}
		if !item.IsActive {
			return domain.ErrKnowledgeInactive
		}

		if err := repos.History().Create(ctx, &domain.KnowledgeItemHistory{
			ID:                      s.uuidGen.NewString(),
			ItemID:                  item.ID,
			OrgID:                   item.OrgID,
			PreviousTitle:           domain.StringPtr(item.Title),
			PreviousContent:         domain.StringPtr(item.Content),
			PreviousResolvedContent: domain.StringPtr(item.ResolvedContent),
			ChangeType:              domain.ChangeTypeDelete,
			ChangeSource:            domain.ChangeSourceManual,
			ChangeDescription:       "direct delete",
			ChangedBy:               changedBy,
			CreatedAt:               time.Now().UTC(),
		}); err != nil {
			return err
		}
		return repos.Items().SetActive(ctx, item.ID, false)
	})
}

// SetVariable upserts an organization variable and rematerializes every
// active item that references it. The touched items are left dirty for the
// reindex sweep. It returns the number of rematerialized items.
func (s *KnowledgeService) SetVariable(ctx context.Context, orgID, key, value string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.SetVariable", telemetry.SpanAttributes{
		OrgID:     orgID,
		Operation: "set_variable",
	})
	defer span.End()

	if orgID == "" {
		return 0, domain.ErrMissingRequiredField
	}
	if err := domain.ValidateVariableKey(key); err != nil {
		return 0, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid variable key", err)
	}

	if err := s.variables.Upsert(ctx, &domain.OrganizationVariable{
		OrgID:     orgID,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return 0, err
	}

	items, err := s.items.ListUsingVariable(ctx, orgID, key)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, item := range items {
		if _, err := s.writer.Write(ctx, s.items, item, ContentChange{}); err != nil {
			log.Printf("Failed to rematerialize item %s after variable %s changed: %v", item.ID, key, err)
			continue
		}
		n++
	}
	return n, nil
}

func (s *KnowledgeService) reprocess(ctx context.Context, itemID string) {
	if s.processor == nil {
		return
	}
	if _, err := s.processor.Process(ctx, itemID, ProcessModeStrict); err != nil {
		log.Printf("Reprocessing item %s after edit failed, left for the reindex sweep: %v", itemID, err)
	}
}

func getOwnedItem(ctx context.Context, repo KnowledgeRepositoryInterface, orgID, id string) (*domain.KnowledgeItem, error) {
	item, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if orgID != "" && item.OrgID != orgID {
		return nil, domain.ErrKnowledgeNotFound
	}
	return item, nil
}

// isNotFound reports whether err is any NOT_FOUND domain error.
func isNotFound(err error) bool {
	var de *domain.DomainError
	return errors.As(err, &de) && de.Code == domain.ErrCodeNotFound
}
