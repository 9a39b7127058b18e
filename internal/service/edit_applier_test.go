package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var applierNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type applierFixture struct {
	items     *MockKnowledgeRepository
	history   *MockHistoryRepository
	requests  *MockEditRequestRepository
	reindexer *MockReindexer
	tx        *testTxRunner
	applier   *EditApplier
}

func newApplierFixture(uuids ...string) *applierFixture {
	f := &applierFixture{
		items:     new(MockKnowledgeRepository),
		history:   new(MockHistoryRepository),
		requests:  new(MockEditRequestRepository),
		reindexer: new(MockReindexer),
	}
	f.tx = &testTxRunner{repos: &testTxRepos{items: f.items, history: f.history, editRequests: f.requests}}
	writer := NewContentWriter(new(MockVariableRepository), nil)
	f.applier = NewEditApplierWithUUIDGen(f.requests, f.tx, writer, f.reindexer, NewMockUUIDGenerator(uuids...))
	f.applier.now = func() time.Time { return applierNow }
	return f
}

func (f *applierFixture) expectApplied() {
	f.requests.On("Claim", mock.Anything, "req-1", applierNow).Return(nil)
	f.reindexer.On("ReindexDirty", mock.Anything, "org-1", 0).Return(&ReindexSummary{Processed: 1, Errors: map[string]string{}}, nil)
	f.requests.On("Transition", mock.Anything, "req-1", domain.EditRequestStatusApplied, mock.MatchedBy(func(at *time.Time) bool {
		return at != nil && at.Equal(applierNow)
	})).Return(nil)
}

func pendingRequest(changes ...domain.ProposedChange) *domain.KnowledgeEditRequest {
	return &domain.KnowledgeEditRequest{
		ID:              "req-1",
		OrgID:           "org-1",
		UserRequest:     "update the policies",
		ProposedChanges: changes,
		Status:          domain.EditRequestStatusPending,
		ExpiresAt:       applierNow.Add(10 * time.Minute),
		CreatedBy:       "user-1",
	}
}

func activeItem(id, title, content string) *domain.KnowledgeItem {
	return &domain.KnowledgeItem{
		ID: id, OrgID: "org-1", Title: title, Content: content, ResolvedContent: content,
		Type: domain.KnowledgeTypePolicy, Scope: domain.KnowledgeScopeGlobal,
		Status: domain.KnowledgeStatusPublished, IsActive: true, ContentVersion: 1,
	}
}

func TestEditApplier_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("a failing change does not stop the others", func(t *testing.T) {
		f := newApplierFixture("hist-1", "hist-3")
		a, c := "Shipping takes 2 days.", "Support is open 24/7."
		f.requests.On("GetByID", mock.Anything, "req-1").Return(pendingRequest(
			domain.ProposedChange{Action: domain.ChangeTypeUpdate, ItemID: "item-1", ProposedContent: &a},
			domain.ProposedChange{Action: domain.ChangeTypeUpdate, ItemID: "missing", ProposedContent: &c},
			domain.ProposedChange{Action: domain.ChangeTypeUpdate, ItemID: "item-3", ProposedContent: &c, Reason: "new hours"},
		), nil)
		f.items.On("GetByID", mock.Anything, "item-1").Return(activeItem("item-1", "Shipping", "Shipping takes 5 days."), nil)
		f.items.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrKnowledgeNotFound)
		f.items.On("GetByID", mock.Anything, "item-3").Return(activeItem("item-3", "Support", "Support is open 9-5."), nil)
		f.items.On("UpdateContent", mock.Anything, "item-1", mock.Anything).Return(int64(2), nil)
		f.items.On("UpdateContent", mock.Anything, "item-3", mock.Anything).Return(int64(2), nil)

		var rows []*domain.KnowledgeItemHistory
		f.history.On("Create", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { rows = append(rows, args.Get(1).(*domain.KnowledgeItemHistory)) }).
			Return(nil)
		f.expectApplied()

		result, err := f.applier.Apply(ctx, ApplyInput{OrgID: "org-1", RequestID: "req-1"})

		require.NoError(t, err)
		assert.Equal(t, domain.EditRequestStatusApplied, result.Status)
		assert.Equal(t, applierNow, result.AppliedAt)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "change 1")
		require.Len(t, result.Changes, 3)
		assert.Empty(t, result.Changes[0].Error)
		assert.NotEmpty(t, result.Changes[1].Error)
		assert.Empty(t, result.Changes[2].Error)
		assert.Equal(t, 3, f.tx.calls)

		require.Len(t, rows, 2)
		assert.Equal(t, "item-1", rows[0].ItemID)
		assert.Equal(t, "Shipping takes 5 days.", *rows[0].PreviousContent)
		assert.Equal(t, a, *rows[0].NewContent)
		assert.Equal(t, "req-1", rows[0].EditRequestID)
		assert.Equal(t, domain.ChangeSourceConversation, rows[0].ChangeSource)
		assert.Equal(t, "user-1", rows[0].ChangedBy)
		assert.Equal(t, "update the policies", rows[0].ChangeDescription)
		assert.Equal(t, "item-3", rows[1].ItemID)
		assert.Equal(t, "new hours", rows[1].ChangeDescription)

		require.NotNil(t, result.Reindex)
		assert.Equal(t, 1, result.Reindex.Processed)
		f.requests.AssertExpectations(t)
		f.reindexer.AssertExpectations(t)
	})

	t.Run("an expired request is transitioned and nothing is applied", func(t *testing.T) {
		f := newApplierFixture()
		content := "x"
		req := pendingRequest(domain.ProposedChange{Action: domain.ChangeTypeUpdate, ItemID: "item-1", ProposedContent: &content})
		req.ExpiresAt = applierNow.Add(-time.Second)
		f.requests.On("GetByID", mock.Anything, "req-1").Return(req, nil)
		f.requests.On("Transition", mock.Anything, "req-1", domain.EditRequestStatusExpired, (*time.Time)(nil)).Return(nil)

		_, err := f.applier.Apply(ctx, ApplyInput{OrgID: "org-1", RequestID: "req-1"})

		assert.ErrorIs(t, err, domain.ErrEditRequestExpired)
		assert.Equal(t, 0, f.tx.calls)
		f.items.AssertNotCalled(t, "UpdateContent", mock.Anything, mock.Anything, mock.Anything)
		f.reindexer.AssertNotCalled(t, "ReindexDirty", mock.Anything, mock.Anything, mock.Anything)
		f.requests.AssertExpectations(t)
	})

	t.Run("an applied request cannot be applied again", func(t *testing.T) {
		f := newApplierFixture()
		req := pendingRequest()
		req.Status = domain.EditRequestStatusApplied
		f.requests.On("GetByID", mock.Anything, "req-1").Return(req, nil)

		_, err := f.applier.Apply(ctx, ApplyInput{OrgID: "org-1", RequestID: "req-1"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "already applied")
		f.requests.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.requests.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("concurrent applies of one request run its changes once", func(t *testing.T) {
		f := newApplierFixture("item-new", "hist-1")
		content := "Gift cards never expire."
		f.requests.On("GetByID", mock.Anything, "req-1").Return(pendingRequest(
			domain.ProposedChange{Action: domain.ChangeTypeCreate, ProposedContent: &content},
		), nil)
		f.requests.On("Claim", mock.Anything, "req-1", applierNow).Return(nil).Once()
		f.requests.On("Claim", mock.Anything, "req-1", applierNow).Return(domain.ErrEditRequestNotApplicable)
		f.items.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.history.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.reindexer.On("ReindexDirty", mock.Anything, "org-1", 0).Return(&ReindexSummary{Errors: map[string]string{}}, nil)
		f.requests.On("Transition", mock.Anything, "req-1", domain.EditRequestStatusApplied, mock.Anything).Return(nil)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.applier.Apply(ctx, ApplyInput{OrgID: "org-1", RequestID: "req-1"})
			}(i)
		}
		wg.Wait()

		var applied, rejected int
		for _, err := range errs {
			switch {
			case err == nil:
				applied++
			case errors.Is(err, domain.ErrEditRequestNotApplicable):
				rejected++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, applied)
		assert.Equal(t, 1, rejected)
		f.items.AssertNumberOfCalls(t, "Create", 1)
		f.history.AssertNumberOfCalls(t, "Create", 1)
		f.requests.AssertNumberOfCalls(t, "Transition", 1)
		assert.Equal(t, 1, f.tx.calls)
	})

	t.Run("delete deactivates the item and records its last content", func(t *testing.T) {
		f := newApplierFixture("hist-1")
		f.requests.On("GetByID", mock.Anything, "req-1").Return(pendingRequest(
			domain.ProposedChange{Action: domain.ChangeTypeDelete, ItemID: "item-1"},
		), nil)
		f.items.On("GetByID", mock.Anything, "item-1").Return(activeItem("item-1", "Old promo", "Black friday deal."), nil)
		f.history.On("Create", mock.Anything, mock.MatchedBy(func(h *domain.KnowledgeItemHistory) bool {
			return h.ChangeType == domain.ChangeTypeDelete &&
				*h.PreviousContent == "Black friday deal." &&
				h.NewContent == nil && h.NewTitle == nil
		})).Return(nil)
		f.items.On("SetActive", mock.Anything, "item-1", false).Return(nil)
		f.expectApplied()

		result, err := f.applier.Apply(ctx, ApplyInput{OrgID: "org-1", RequestID: "req-1", AppliedBy: "admin"})

		require.NoError(t, err)
		assert.Empty(t, result.Errors)
		f.items.AssertExpectations(t)
		f.history.AssertExpectations(t)
	})

	t.Run("create without a resolved product is a global draft", func(t *testing.T) {
		f := newApplierFixture("item-new", "hist-1")
		content := "# Gift cards\nGift cards never expire."
		f.requests.On("GetByID", mock.Anything, "req-1").Return(pendingRequest(
			domain.ProposedChange{Action: domain.ChangeTypeCreate, ProposedContent: &content, Scope: domain.KnowledgeScopeProduct},
		), nil)

		var created *domain.KnowledgeItem
		f.items.On("Create", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { created = args.Get(1).(*domain.KnowledgeItem) }).
			Return(nil)
		f.history.On("Create", mock.Anything, mock.MatchedBy(func(h *domain.KnowledgeItemHistory) bool {
			return h.ChangeType == domain.ChangeTypeCreate && h.ItemID == "item-new" && h.PreviousContent == nil
		})).Return(nil)
		f.expectApplied()

		result, err := f.applier.Apply(ctx, ApplyInput{OrgID: "org-1", RequestID: "req-1"})

		require.NoError(t, err)
		assert.Empty(t, result.Errors)
		require.NotNil(t, created)
		assert.Equal(t, "item-new", created.ID)
		assert.Equal(t, "Gift cards", created.Title)
		assert.Equal(t, domain.KnowledgeScopeGlobal, created.Scope)
		assert.Empty(t, created.ProductID)
		assert.Equal(t, domain.KnowledgeStatusDraft, created.Status)
		assert.Equal(t, domain.KnowledgeSourceConversation, created.Source)
		assert.True(t, created.NeedsReindex)
		assert.Equal(t, content, created.ResolvedContent)
		assert.Equal(t, "item-new", result.Changes[0].ItemID)
	})

	t.Run("create with a resolved product is product scoped", func(t *testing.T) {
		f := newApplierFixture("item-new", "hist-1")
		content := "Pro plan returns within 90 days."
		title := "Pro returns"
		f.requests.On("GetByID", mock.Anything, "req-1").Return(pendingRequest(
			domain.ProposedChange{Action: domain.ChangeTypeCreate, ProposedTitle: &title, ProposedContent: &content,
				Scope: domain.KnowledgeScopeProduct, ProductSlug: "pro", ProductID: "prod-1"},
		), nil)
		f.items.On("Create", mock.Anything, mock.MatchedBy(func(k *domain.KnowledgeItem) bool {
			return k.Scope == domain.KnowledgeScopeProduct && k.ProductID == "prod-1" && k.Title == title
		})).Return(nil)
		f.history.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.expectApplied()

		result, err := f.applier.Apply(ctx, ApplyInput{OrgID: "org-1", RequestID: "req-1"})

		require.NoError(t, err)
		assert.Empty(t, result.Errors)
		f.items.AssertExpectations(t)
	})

	t.Run("changes to items of other organizations fail", func(t *testing.T) {
		f := newApplierFixture()
		f.requests.On("GetByID", mock.Anything, "req-1").Return(pendingRequest(
			domain.ProposedChange{Action: domain.ChangeTypeDelete, ItemID: "foreign"},
		), nil)
		foreign := activeItem("foreign", "Theirs", "Not ours.")
		foreign.OrgID = "org-2"
		f.items.On("GetByID", mock.Anything, "foreign").Return(foreign, nil)
		f.expectApplied()

		result, err := f.applier.Apply(ctx, ApplyInput{OrgID: "org-1", RequestID: "req-1"})

		require.NoError(t, err)
		require.Len(t, result.Errors, 1)
		f.items.AssertNotCalled(t, "SetActive", mock.Anything, mock.Anything, mock.Anything)
	})
}
