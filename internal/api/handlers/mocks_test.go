package handlers

import (
	"context"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockKnowledgeService struct {
	mock.Mock
}

func (m *MockKnowledgeService) Get(ctx context.Context, orgID, id string) (*domain.KnowledgeItem, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeItem), args.Error(1)
}

func (m *MockKnowledgeService) List(ctx context.Context, input service.ListKnowledgeInput) (*service.ListKnowledgeOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListKnowledgeOutput), args.Error(1)
}

func (m *MockKnowledgeService) History(ctx context.Context, orgID, id string) ([]*domain.KnowledgeItemHistory, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeItemHistory), args.Error(1)
}

func (m *MockKnowledgeService) Update(ctx context.Context, input service.UpdateInput) (*domain.KnowledgeItem, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeItem), args.Error(1)
}

func (m *MockKnowledgeService) Delete(ctx context.Context, orgID, id, changedBy string) error {
	args := m.Called(ctx, orgID, id, changedBy)
	return args.Error(0)
}

func (m *MockKnowledgeService) SetVariable(ctx context.Context, orgID, key, value string) (int, error) {
	args := m.Called(ctx, orgID, key, value)
	return args.Int(0), args.Error(1)
}

type MockFileImporter struct {
	mock.Mock
}

func (m *MockFileImporter) Import(ctx context.Context, input service.FileImportInput) (*service.ImportResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ImportResult), args.Error(1)
}

type MockURLImporter struct {
	mock.Mock
}

func (m *MockURLImporter) Import(ctx context.Context, input service.URLImportInput) (*service.ImportResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ImportResult), args.Error(1)
}

type MockImportStatusReader struct {
	mock.Mock
}

func (m *MockImportStatusReader) Get(ctx context.Context, orgID, id string) (*domain.ImportLog, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ImportLog), args.Error(1)
}

type MockReprocessor struct {
	mock.Mock
}

func (m *MockReprocessor) Reprocess(ctx context.Context, itemID string) (*service.ProcessResult, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ProcessResult), args.Error(1)
}

func (m *MockReprocessor) ReprocessMany(ctx context.Context, itemIDs []string) *service.ReindexSummary {
	args := m.Called(ctx, itemIDs)
	return args.Get(0).(*service.ReindexSummary)
}

func (m *MockReprocessor) ReprocessOrg(ctx context.Context, orgID string) (*service.ReindexSummary, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReindexSummary), args.Error(1)
}

type MockEditBroker struct {
	mock.Mock
}

func (m *MockEditBroker) Propose(ctx context.Context, input service.EditRequestInput) (*service.EditProposal, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.EditProposal), args.Error(1)
}

func (m *MockEditBroker) Confirm(ctx context.Context, orgID, requestID string) (*domain.KnowledgeEditRequest, error) {
	args := m.Called(ctx, orgID, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeEditRequest), args.Error(1)
}

type MockEditApplier struct {
	mock.Mock
}

func (m *MockEditApplier) Apply(ctx context.Context, input service.ApplyInput) (*service.ApplyResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ApplyResult), args.Error(1)
}

type MockWizard struct {
	mock.Mock
}

func (m *MockWizard) Turn(ctx context.Context, input service.WizardTurnInput) (*domain.WizardResponse, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WizardResponse), args.Error(1)
}

func (m *MockWizard) Synthesize(ctx context.Context, input service.SynthesizeInput) (*service.ImportResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ImportResult), args.Error(1)
}

type MockFeedbackClassifier struct {
	mock.Mock
}

func (m *MockFeedbackClassifier) Classify(ctx context.Context, input domain.FeedbackInput) (*domain.FeedbackClassification, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FeedbackClassification), args.Error(1)
}
