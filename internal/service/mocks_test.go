package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/openai"
	"github.com/cloo-solutions/kbpipe/internal/pagination"
	"github.com/stretchr/testify/mock"
)

// MockKnowledgeRepository is a mock implementation of KnowledgeRepositoryInterface
type MockKnowledgeRepository struct {
	mock.Mock
}

func (m *MockKnowledgeRepository) Create(ctx context.Context, k *domain.KnowledgeItem) error {
	args := m.Called(ctx, k)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeItem), args.Error(1)
}

func (m *MockKnowledgeRepository) ListByOrgWithCursor(ctx context.Context, orgID string, cursor *pagination.Cursor, limit int) (*KnowledgePageResult, error) {
	args := m.Called(ctx, orgID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*KnowledgePageResult), args.Error(1)
}

func (m *MockKnowledgeRepository) ListActiveByOrg(ctx context.Context, orgID string, limit int) ([]*domain.KnowledgeItem, error) {
	args := m.Called(ctx, orgID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeItem), args.Error(1)
}

func (m *MockKnowledgeRepository) ListNeedingReindex(ctx context.Context, orgID string, limit int) ([]*domain.KnowledgeItem, error) {
	args := m.Called(ctx, orgID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeItem), args.Error(1)
}

func (m *MockKnowledgeRepository) ListWithOriginalContent(ctx context.Context, orgID string) ([]*domain.KnowledgeItem, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeItem), args.Error(1)
}

func (m *MockKnowledgeRepository) ListUsingVariable(ctx context.Context, orgID, key string) ([]*domain.KnowledgeItem, error) {
	args := m.Called(ctx, orgID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeItem), args.Error(1)
}

func (m *MockKnowledgeRepository) UpdateContent(ctx context.Context, id string, u ContentUpdate) (int64, error) {
	args := m.Called(ctx, id, u)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockKnowledgeRepository) SetActive(ctx context.Context, id string, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) MarkProcessing(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) MarkPublished(ctx context.Context, id string, version int64, metadataPatch map[string]any, clearReindex bool) error {
	args := m.Called(ctx, id, version, metadataPatch, clearReindex)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) MarkError(ctx context.Context, id, message string) error {
	args := m.Called(ctx, id, message)
	return args.Error(0)
}

// MockChunkRepository is a mock implementation of ChunkRepositoryInterface
type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) ReplaceChunks(ctx context.Context, itemID string, version int64, chunks []domain.KnowledgeChunk) error {
	args := m.Called(ctx, itemID, version, chunks)
	return args.Error(0)
}

// MockHistoryRepository is a mock implementation of HistoryRepositoryInterface
type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) Create(ctx context.Context, h *domain.KnowledgeItemHistory) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

func (m *MockHistoryRepository) ListByItem(ctx context.Context, itemID string) ([]*domain.KnowledgeItemHistory, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeItemHistory), args.Error(1)
}

// MockProductRepository is a mock implementation of ProductRepositoryInterface
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductRepository) GetBySlug(ctx context.Context, orgID, slug string) (*domain.Product, error) {
	args := m.Called(ctx, orgID, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductRepository) ListActiveByOrg(ctx context.Context, orgID string) ([]*domain.Product, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Product), args.Error(1)
}

// MockVariableRepository is a mock implementation of VariableRepositoryInterface
type MockVariableRepository struct {
	mock.Mock
}

func (m *MockVariableRepository) Upsert(ctx context.Context, v *domain.OrganizationVariable) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockVariableRepository) ListByOrg(ctx context.Context, orgID string) (map[string]string, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

// MockEditRequestRepository is a mock implementation of EditRequestRepositoryInterface
type MockEditRequestRepository struct {
	mock.Mock
}

func (m *MockEditRequestRepository) Create(ctx context.Context, req *domain.KnowledgeEditRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockEditRequestRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeEditRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeEditRequest), args.Error(1)
}

func (m *MockEditRequestRepository) Claim(ctx context.Context, id string, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *MockEditRequestRepository) Transition(ctx context.Context, id string, status domain.EditRequestStatus, appliedAt *time.Time) error {
	args := m.Called(ctx, id, status, appliedAt)
	return args.Error(0)
}

// MockImportLogRepository is a mock implementation of ImportLogRepositoryInterface
type MockImportLogRepository struct {
	mock.Mock
}

func (m *MockImportLogRepository) Create(ctx context.Context, l *domain.ImportLog) error {
	args := m.Called(ctx, l)
	return args.Error(0)
}

func (m *MockImportLogRepository) GetByID(ctx context.Context, id string) (*domain.ImportLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ImportLog), args.Error(1)
}

func (m *MockImportLogRepository) Start(ctx context.Context, id, itemID string) error {
	args := m.Called(ctx, id, itemID)
	return args.Error(0)
}

func (m *MockImportLogRepository) Finish(ctx context.Context, id string, status domain.ImportStatus, errMsg string) error {
	args := m.Called(ctx, id, status, errMsg)
	return args.Error(0)
}

// MockEmbedder is a mock implementation of Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string, inputType openai.InputType) ([][]float32, error) {
	args := m.Called(ctx, texts, inputType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) Model() string {
	return "voyage-3"
}

func (m *MockEmbedder) Dimensions() int {
	return domain.EmbeddingDimensions
}

// MockLLM is a mock implementation of LLM
type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) CompleteJSON(ctx context.Context, system, user string, out any) error {
	args := m.Called(ctx, system, user, out)
	return args.Error(0)
}

func (m *MockLLM) CompleteText(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

// replyJSON makes a CompleteJSON expectation decode reply into its out argument.
func replyJSON(reply string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		if err := json.Unmarshal([]byte(reply), args.Get(3)); err != nil {
			panic(err)
		}
	}
}

// MockObjectStore is a mock implementation of ObjectStore
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	args := m.Called(ctx, key, contentType, body)
	return args.Error(0)
}

// MockItemProcessor is a mock implementation of ItemProcessor
type MockItemProcessor struct {
	mock.Mock
}

func (m *MockItemProcessor) Process(ctx context.Context, itemID string, mode ProcessMode) (*ProcessResult, error) {
	args := m.Called(ctx, itemID, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProcessResult), args.Error(1)
}

// MockReindexer is a mock implementation of Reindexer
type MockReindexer struct {
	mock.Mock
}

func (m *MockReindexer) ReindexDirty(ctx context.Context, orgID string, limit int) (*ReindexSummary, error) {
	args := m.Called(ctx, orgID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ReindexSummary), args.Error(1)
}

// MockUUIDGenerator is a mock implementation of UUIDGenerator
type MockUUIDGenerator struct {
	callCount int
	uuids     []string
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.callCount < len(m.uuids) {
		uuid := m.uuids[m.callCount]
		m.callCount++
		return uuid
	}
	return "default-uuid"
}
