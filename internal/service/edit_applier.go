package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/telemetry"
)

// Reindexer reprocesses the dirty items of an organization.
type Reindexer interface {
	ReindexDirty(ctx context.Context, orgID string, limit int) (*ReindexSummary, error)
}

// EditApplier executes the proposed changes of a pending or confirmed edit
// request. The request is claimed before the first change so concurrent
// applies of one request run its changes once. Each change runs in its own
// transaction; a failing change is reported and does not stop the ones after it.
type EditApplier struct {
	requests  EditRequestRepositoryInterface
	txRunner  TxRunner
	writer    *ContentWriter
	reindexer Reindexer
	uuidGen   UUIDGenerator
	now       func() time.Time
}

func NewEditApplier(requests EditRequestRepositoryInterface, txRunner TxRunner, writer *ContentWriter, reindexer Reindexer) *EditApplier {
	return NewEditApplierWithUUIDGen(requests, txRunner, writer, reindexer, &DefaultUUIDGenerator{})
}

func NewEditApplierWithUUIDGen(requests EditRequestRepositoryInterface, txRunner TxRunner, writer *ContentWriter, reindexer Reindexer, uuidGen UUIDGenerator) *EditApplier {
	return &EditApplier{
		requests:  requests,
		txRunner:  txRunner,
		writer:    writer,
		reindexer: reindexer,
		uuidGen:   uuidGen,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type ApplyInput struct {
	OrgID     string
	RequestID string
	AppliedBy string
}

// ChangeOutcome reports one proposed change. Error is empty on success.
type ChangeOutcome struct {
	Index  int
	Action domain.ChangeType
	ItemID string
	Error  string
}

// ApplyResult is returned whenever the request was attempted. The request is
// applied even when some changes failed; Errors lists them.
type ApplyResult struct {
	RequestID string
	Status    domain.EditRequestStatus
	AppliedAt time.Time
	Changes   []ChangeOutcome
	Errors    []string
	Reindex   *ReindexSummary
}

func (a *EditApplier) Apply(ctx context.Context, input ApplyInput) (*ApplyResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "EditApplier.Apply", telemetry.SpanAttributes{
		OrgID:         input.OrgID,
		EditRequestID: input.RequestID,
		Operation:     "apply_edit",
	})
	defer span.End()

	if input.RequestID == "" {
		return nil, domain.ErrMissingRequiredField
	}

	req, err := loadEditRequest(ctx, a.requests, input.OrgID, input.RequestID)
	if err != nil {
		return nil, err
	}
	if err := checkApplicable(ctx, a.requests, req, a.now()); err != nil {
		return nil, err
	}
	if err := a.requests.Claim(ctx, req.ID, a.now()); err != nil {
		span.SetError(err)
		return nil, err
	}

	actor := input.AppliedBy
	if actor == "" {
		actor = req.CreatedBy
	}

	result := &ApplyResult{RequestID: req.ID}
	for i, change := range req.ProposedChanges {
		outcome := ChangeOutcome{Index: i, Action: change.Action, ItemID: change.ItemID}
		itemID, err := a.applyChange(ctx, req, change, actor)
		if itemID != "" {
			outcome.ItemID = itemID
		}
		if err != nil {
			outcome.Error = err.Error()
			result.Errors = append(result.Errors, fmt.Sprintf("change %d (%s): %v", i, change.Action, err))
			log.Printf("Edit request %s: change %d (%s) failed: %v", req.ID, i, change.Action, err)
		}
		result.Changes = append(result.Changes, outcome)
	}

	if a.reindexer != nil {
		summary, err := a.reindexer.ReindexDirty(ctx, req.OrgID, 0)
		if err != nil {
			log.Printf("Edit request %s: reindex of organization %s failed: %v", req.ID, req.OrgID, err)
		}
		result.Reindex = summary
	}

	appliedAt := a.now()
	if err := a.requests.Transition(ctx, req.ID, domain.EditRequestStatusApplied, &appliedAt); err != nil {
		span.SetError(err)
		return nil, err
	}
	result.Status = domain.EditRequestStatusApplied
	result.AppliedAt = appliedAt
	return result, nil
}

func (a *EditApplier) applyChange(ctx context.Context, req *domain.KnowledgeEditRequest, change domain.ProposedChange, actor string) (string, error) {
	if err := change.Validate(); err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid change", err)
	}

	var itemID string
	err := a.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		var err error
		switch change.Action {
		case domain.ChangeTypeUpdate:
			itemID, err = a.applyUpdate(ctx, repos, req, change, actor)
		case domain.ChangeTypeCreate:
			itemID, err = a.applyCreate(ctx, repos, req, change, actor)
		case domain.ChangeTypeDelete:
			itemID, err = a.applyDelete(ctx, repos, req, change, actor)
		}
		return err
	})
	return itemID, err
}

func (a *EditApplier) applyUpdate(ctx context.Context, repos TxRepositories, req *domain.KnowledgeEditRequest, change domain.ProposedChange, actor string) (string, error) {
	item, err := getOwnedItem(ctx, repos.Items(), req.OrgID, change.ItemID)
	if err != nil {
		return "", err
	}
	if !item.IsActive {
		return "", domain.ErrKnowledgeInactive
	}

	updated, err := a.writer.Write(ctx, repos.Items(), item, ContentChange{
		Title:    change.ProposedTitle,
		Content:  change.ProposedContent,
		Category: change.Category,
	})
	if err != nil {
		return "", err
	}

	return item.ID, repos.History().Create(ctx, &domain.KnowledgeItemHistory{
		ID:                      a.uuidGen.NewString(),
		ItemID:                  item.ID,
		OrgID:                   item.OrgID,
		EditRequestID:           req.ID,
		PreviousTitle:           domain.StringPtr(item.Title),
		PreviousContent:         domain.StringPtr(item.Content),
		PreviousResolvedContent: domain.StringPtr(item.ResolvedContent),
		NewTitle:                domain.StringPtr(updated.Title),
		NewContent:              domain.StringPtr(updated.Content),
		NewResolvedContent:      domain.StringPtr(updated.ResolvedContent),
		ChangeType:              domain.ChangeTypeUpdate,
		ChangeSource:            domain.ChangeSourceConversation,
		ChangeDescription:       changeDescription(req, change),
		ChangedBy:               actor,
		CreatedAt:               a.now(),
	})
}

func (a *EditApplier) applyCreate(ctx context.Context, repos TxRepositories, req *domain.KnowledgeEditRequest, change domain.ProposedChange, actor string) (string, error) {
	now := a.now()
	item := &domain.KnowledgeItem{
		ID:        a.uuidGen.NewString(),
		OrgID:     req.OrgID,
		Title:     titleFor(change),
		Content:   *change.ProposedContent,
		Type:      domain.KnowledgeTypeGeneral,
		Scope:     domain.KnowledgeScopeGlobal,
		Status:    domain.KnowledgeStatusDraft,
		Source:    domain.KnowledgeSourceConversation,
		IsActive:  true,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if change.Category != nil {
		item.Category = *change.Category
	}
	if change.Scope == domain.KnowledgeScopeProduct && change.ProductID != "" {
		item.Scope = domain.KnowledgeScopeProduct
		item.ProductID = change.ProductID
	}

	if err := a.writer.Prepare(ctx, item); err != nil {
		return "", err
	}
	if err := domain.ValidateKnowledgeItem(item); err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid knowledge item", err)
	}
	if err := repos.Items().Create(ctx, item); err != nil {
		return "", err
	}

	return item.ID, repos.History().Create(ctx, &domain.KnowledgeItemHistory{
		ID:                 a.uuidGen.NewString(),
		ItemID:             item.ID,
		OrgID:              item.OrgID,
		EditRequestID:      req.ID,
		NewTitle:           domain.StringPtr(item.Title),
		NewContent:         domain.StringPtr(item.Content),
		NewResolvedContent: domain.StringPtr(item.ResolvedContent),
		ChangeType:         domain.ChangeTypeCreate,
		ChangeSource:       domain.ChangeSourceConversation,
		ChangeDescription:  changeDescription(req, change),
		ChangedBy:          actor,
		CreatedAt:          now,
	})
}

func (a *EditApplier) applyDelete(ctx context.Context, repos TxRepositories, req *domain.KnowledgeEditRequest, change domain.ProposedChange, actor string) (string, error) {
	item, err := getOwnedItem(ctx, repos.Items(), req.OrgID, change.ItemID)
	if err != nil {
		return "", err
	}
	if !item.IsActive {
		return "", domain.ErrKnowledgeInactive
	}

	if err := repos.History().Create(ctx, &domain.KnowledgeItemHistory{
		ID:                      a.uuidGen.NewString(),
		ItemID:                  item.ID,
		OrgID:                   item.OrgID,
		EditRequestID:           req.ID,
		PreviousTitle:           domain.StringPtr(item.Title),
		PreviousContent:         domain.StringPtr(item.Content),
		PreviousResolvedContent: domain.StringPtr(item.ResolvedContent),
		ChangeType:              domain.ChangeTypeDelete,
		ChangeSource:            domain.ChangeSourceConversation,
		ChangeDescription:       changeDescription(req, change),
		ChangedBy:               actor,
		CreatedAt:               a.now(),
	}); err != nil {
		return "", err
	}
	return item.ID, repos.Items().SetActive(ctx, item.ID, false)
}

// titleFor uses the proposed title, or the first line of the content cut to 80 runes.
func titleFor(change domain.ProposedChange) string {
	if change.ProposedTitle != nil {
		return *change.ProposedTitle
	}
	line := strings.TrimSpace(*change.ProposedContent)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(strings.TrimLeft(line, "# "))
	if r := []rune(line); len(r) > 80 {
		line = string(r[:80])
	}
	if line == "" {
		line = "Untitled"
	}
	return line
}

func changeDescription(req *domain.KnowledgeEditRequest, change domain.ProposedChange) string {
	if change.Reason != "" {
		return change.Reason
	}
	return req.UserRequest
}
