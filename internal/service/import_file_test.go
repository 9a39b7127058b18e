package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// imageOnlyPDF has a page whose only content is an embedded image.
const imageOnlyPDF = "%PDF-1.4\n" +
	"1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n" +
	"2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj\n" +
	"3 0 obj << /Type /Page /Parent 2 0 R /Contents 4 0 R /Resources << /XObject << /Im1 5 0 R >> >> >> endobj\n" +
	"4 0 obj << /Length 30 >>\nstream\nq 612 0 0 792 0 0 cm /Im1 Do Q\nendstream\nendobj\n" +
	"5 0 obj << /Type /XObject /Subtype /Image /Width 2 /Height 2 /Length 8 >>\nstream\n\x80\x91\xa2\xb3\xc4\xd5\xe6\xf7\nendstream\nendobj\n" +
	"%%EOF\n"

type importFixture struct {
	items     *MockKnowledgeRepository
	logs      *MockImportLogRepository
	products  *MockProductRepository
	processor *MockItemProcessor
	store     *MockObjectStore
	svc       *FileImportService
}

func newImportFixture() *importFixture {
	f := &importFixture{
		items:     new(MockKnowledgeRepository),
		logs:      new(MockImportLogRepository),
		products:  new(MockProductRepository),
		processor: new(MockItemProcessor),
		store:     new(MockObjectStore),
	}
	writer := NewContentWriter(new(MockVariableRepository), f.products)
	f.svc = NewFileImportServiceWithUUIDGen(f.items, f.logs, f.products, writer, f.processor, f.store,
		NewMockUUIDGenerator("log-1", "item-1"))
	return f
}

func TestFileImportService_Import(t *testing.T) {
	ctx := context.Background()

	t.Run("stores, extracts, writes and processes a text file", func(t *testing.T) {
		f := newImportFixture()
		data := []byte("Returns are accepted within 30 days.\r\n\r\n\r\n\r\nRefunds take 5 days.  ")

		f.logs.On("Create", mock.Anything, mock.MatchedBy(func(l *domain.ImportLog) bool {
			return l.ID == "log-1" && l.Source == domain.ImportSourceFile && l.SourceRef == "returns policy.txt" && l.Status == domain.ImportStatusPending
		})).Return(nil)
		f.store.On("PutObject", mock.Anything, "org-1/knowledge/item-1/returns_policy.txt", "text/plain", data).Return(nil)
		f.items.On("Create", mock.Anything, mock.MatchedBy(func(k *domain.KnowledgeItem) bool {
			return k.ID == "item-1" && k.Title == "returns policy" &&
				k.Status == domain.KnowledgeStatusProcessing &&
				k.Source == domain.KnowledgeSourceImportTXT &&
				k.Scope == domain.KnowledgeScopeGlobal &&
				k.Type == domain.KnowledgeTypeGeneral &&
				k.AgentID == "agent-1" &&
				k.SourceFilePath == "org-1/knowledge/item-1/returns_policy.txt" &&
				k.Metadata[domain.MetaFileSize] == len(data)
		})).Return(nil)
		f.logs.On("Start", mock.Anything, "log-1", "item-1").Return(nil)
		f.items.On("UpdateContent", mock.Anything, "item-1", ContentUpdate{
			Content:         "Returns are accepted within 30 days.\n\nRefunds take 5 days.",
			ResolvedContent: "Returns are accepted within 30 days.\n\nRefunds take 5 days.",
		}).Return(int64(1), nil)
		f.processor.On("Process", mock.Anything, "item-1", ProcessModeIngest).Return(&ProcessResult{ItemID: "item-1", ChunkCount: 1}, nil)
		f.logs.On("Finish", mock.Anything, "log-1", domain.ImportStatusCompleted, "").Return(nil)
		f.items.On("GetByID", mock.Anything, "item-1").Return(&domain.KnowledgeItem{ID: "item-1", Status: domain.KnowledgeStatusPublished}, nil)

		result, err := f.svc.Import(ctx, FileImportInput{
			OrgID: "org-1", AgentID: "agent-1", FileName: "returns policy.txt", MimeType: "text/plain", Data: data,
		})

		require.NoError(t, err)
		assert.Equal(t, "log-1", result.ImportLogID)
		assert.Equal(t, 1, result.ChunkCount)
		assert.False(t, result.Fallback)
		assert.Equal(t, domain.KnowledgeStatusPublished, result.Item.Status)
		f.items.AssertExpectations(t)
		f.logs.AssertExpectations(t)
		f.store.AssertExpectations(t)
		f.processor.AssertExpectations(t)
	})

	t.Run("a scanned PDF leaves the item in error and never reaches processing", func(t *testing.T) {
		f := newImportFixture()

		f.logs.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.store.On("PutObject", mock.Anything, "org-1/knowledge/item-1/scan.pdf", "application/pdf", mock.Anything).Return(nil)
		f.items.On("Create", mock.Anything, mock.MatchedBy(func(k *domain.KnowledgeItem) bool {
			return k.Source == domain.KnowledgeSourceImportPDF
		})).Return(nil)
		f.logs.On("Start", mock.Anything, "log-1", "item-1").Return(nil)
		f.items.On("MarkError", mock.Anything, "item-1", mock.MatchedBy(func(msg string) bool {
			return strings.Contains(msg, "scanned")
		})).Return(nil)
		f.logs.On("Finish", mock.Anything, "log-1", domain.ImportStatusFailed, mock.MatchedBy(func(msg string) bool {
			return strings.Contains(msg, "scanned")
		})).Return(nil)

		result, err := f.svc.Import(ctx, FileImportInput{
			OrgID: "org-1", FileName: "scan.pdf", MimeType: "application/pdf", Data: []byte(imageOnlyPDF),
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrScannedPDF)
		require.NotNil(t, result)
		assert.Equal(t, domain.KnowledgeStatusError, result.Item.Status)
		assert.Contains(t, result.Item.ErrorMessage, "scanned")
		f.processor.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
		f.items.AssertNotCalled(t, "UpdateContent", mock.Anything, mock.Anything, mock.Anything)
		f.items.AssertExpectations(t)
		f.logs.AssertExpectations(t)
	})

	t.Run("a storage failure fails the import before any item exists", func(t *testing.T) {
		f := newImportFixture()

		f.logs.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.store.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket missing"))
		f.logs.On("Finish", mock.Anything, "log-1", domain.ImportStatusFailed, "bucket missing").Return(nil)

		result, err := f.svc.Import(ctx, FileImportInput{
			OrgID: "org-1", FileName: "notes.md", Data: []byte("# Notes"),
		})

		require.Error(t, err)
		assert.Nil(t, result)
		var de *domain.DomainError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, domain.ErrStorageOperationFail.Code, de.Code)
		f.items.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		f.logs.AssertExpectations(t)
	})

	t.Run("a failed processing pass is reported with the item", func(t *testing.T) {
		f := newImportFixture()
		passErr := domain.NewDomainError(domain.ErrCodeUpstreamUnavailable, "embedding failed")

		f.logs.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.store.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.items.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.logs.On("Start", mock.Anything, "log-1", "item-1").Return(nil)
		f.items.On("UpdateContent", mock.Anything, "item-1", mock.Anything).Return(int64(1), nil)
		f.processor.On("Process", mock.Anything, "item-1", ProcessModeIngest).Return(nil, passErr)
		f.logs.On("Finish", mock.Anything, "log-1", domain.ImportStatusFailed, passErr.Error()).Return(nil)
		f.items.On("GetByID", mock.Anything, "item-1").Return(&domain.KnowledgeItem{
			ID: "item-1", Status: domain.KnowledgeStatusError, ErrorMessage: "embedding failed",
		}, nil)

		result, err := f.svc.Import(ctx, FileImportInput{
			OrgID: "org-1", FileName: "faq.txt", Data: []byte("Question and answer."),
		})

		assert.ErrorIs(t, err, passErr)
		require.NotNil(t, result)
		assert.Equal(t, domain.KnowledgeStatusError, result.Item.Status)
		f.logs.AssertExpectations(t)
	})

	t.Run("binds a product of the organization", func(t *testing.T) {
		f := newImportFixture()

		f.products.On("GetByID", mock.Anything, "prod-1").Return(&domain.Product{ID: "prod-1", OrgID: "org-1", Name: "Pro"}, nil)
		f.logs.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.store.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.items.On("Create", mock.Anything, mock.MatchedBy(func(k *domain.KnowledgeItem) bool {
			return k.Scope == domain.KnowledgeScopeProduct && k.ProductID == "prod-1" && k.Title == "Pro guide"
		})).Return(nil)
		f.logs.On("Start", mock.Anything, "log-1", "item-1").Return(nil)
		f.items.On("UpdateContent", mock.Anything, "item-1", mock.Anything).Return(int64(1), nil)
		f.processor.On("Process", mock.Anything, "item-1", ProcessModeIngest).Return(&ProcessResult{ChunkCount: 1, Fallback: true}, nil)
		f.logs.On("Finish", mock.Anything, "log-1", domain.ImportStatusCompleted, "").Return(nil)
		f.items.On("GetByID", mock.Anything, "item-1").Return(nil, domain.ErrKnowledgeNotFound)

		result, err := f.svc.Import(ctx, FileImportInput{
			OrgID: "org-1", ProductID: "prod-1", Title: "Pro guide", FileName: "guide.txt", Data: []byte("Setup steps."),
		})

		require.NoError(t, err)
		assert.True(t, result.Fallback)
		assert.Equal(t, "item-1", result.Item.ID)
		f.items.AssertExpectations(t)
	})

	t.Run("rejects a product of another organization", func(t *testing.T) {
		f := newImportFixture()
		f.products.On("GetByID", mock.Anything, "prod-9").Return(&domain.Product{ID: "prod-9", OrgID: "org-2"}, nil)

		_, err := f.svc.Import(ctx, FileImportInput{
			OrgID: "org-1", ProductID: "prod-9", FileName: "guide.txt", Data: []byte("Setup steps."),
		})

		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		f.logs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("validates the upload before opening a log", func(t *testing.T) {
		tests := []struct {
			name  string
			input FileImportInput
			want  error
		}{
			{"missing org", FileImportInput{FileName: "a.txt", Data: []byte("x")}, domain.ErrMissingRequiredField},
			{"missing file name", FileImportInput{OrgID: "org-1", Data: []byte("x")}, domain.ErrMissingRequiredField},
			{"empty data", FileImportInput{OrgID: "org-1", FileName: "a.txt"}, domain.ErrEmptyDocument},
			{"unsupported type", FileImportInput{OrgID: "org-1", FileName: "a.exe", Data: []byte("x")}, domain.ErrUnsupportedFileType},
			{"bad knowledge type", FileImportInput{OrgID: "org-1", FileName: "a.txt", Type: "recipe", Data: []byte("x")}, domain.ErrInvalidKnowledgeType},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newImportFixture()
				_, err := f.svc.Import(ctx, tt.input)
				assert.ErrorIs(t, err, tt.want)
				f.logs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			})
		}

		f := newImportFixture()
		_, err := f.svc.Import(ctx, FileImportInput{OrgID: "org-1", FileName: "big.txt", Data: make([]byte, MaxImportFileSize+1)})
		var de *domain.DomainError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, domain.ErrCodeValidation, de.Code)
	})
}

func TestBuildStorageKey(t *testing.T) {
	tests := []struct {
		fileName string
		want     string
	}{
		{"manual.pdf", "org-1/knowledge/item-1/manual.pdf"},
		{"Price List (2026).docx", "org-1/knowledge/item-1/Price_List_2026_.docx"},
		{"../../etc/passwd", "org-1/knowledge/item-1/passwd"},
		{`C:\Users\me\notes.txt`, "org-1/knowledge/item-1/notes.txt"},
		{"...", "org-1/knowledge/item-1/upload"},
	}
	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildStorageKey("org-1", "item-1", tt.fileName))
		})
	}
}

func TestImportStatusService_Get(t *testing.T) {
	ctx := context.Background()
	logs := new(MockImportLogRepository)
	svc := NewImportStatusService(logs)
	logs.On("GetByID", mock.Anything, "log-1").Return(&domain.ImportLog{ID: "log-1", OrgID: "org-1", Status: domain.ImportStatusCompleted}, nil)

	l, err := svc.Get(ctx, "org-1", "log-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusCompleted, l.Status)

	_, err = svc.Get(ctx, "org-2", "log-1")
	assert.ErrorIs(t, err, domain.ErrImportLogNotFound)

	_, err = svc.Get(ctx, "org-1", "")
	assert.ErrorIs(t, err, domain.ErrMissingRequiredField)
}
