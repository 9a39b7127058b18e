package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/extract"
	"github.com/cloo-solutions/kbpipe/internal/telemetry"
)

// MaxImportFileSize bounds uploaded source files.
const MaxImportFileSize = 20 << 20

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// FileImportService ingests uploaded documents. The raw file is stored before
// extraction so a failed import can be inspected and retried.
type FileImportService struct {
	importer
	store ObjectStore
}

func NewFileImportService(
	items KnowledgeRepositoryInterface,
	logs ImportLogRepositoryInterface,
	products ProductRepositoryInterface,
	writer *ContentWriter,
	processor ItemProcessor,
	store ObjectStore,
) *FileImportService {
	return &FileImportService{
		importer: newImporter(items, logs, products, writer, processor),
		store:    store,
	}
}

// NewFileImportServiceWithUUIDGen creates a FileImportService with custom UUID generator (for testing)
func NewFileImportServiceWithUUIDGen(
	items KnowledgeRepositoryInterface,
	logs ImportLogRepositoryInterface,
	products ProductRepositoryInterface,
	writer *ContentWriter,
	processor ItemProcessor,
	store ObjectStore,
	uuidGen UUIDGenerator,
) *FileImportService {
	s := NewFileImportService(items, logs, products, writer, processor, store)
	s.uuidGen = uuidGen
	return s
}

type FileImportInput struct {
	OrgID     string
	AgentID   string
	ProductID string
	Title     string
	Category  string
	Type      domain.KnowledgeType
	FileName  string
	MimeType  string
	Data      []byte
}

func (s *FileImportService) Import(ctx context.Context, input FileImportInput) (*ImportResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "FileImportService.Import", telemetry.SpanAttributes{
		OrgID:     input.OrgID,
		Operation: "import_file",
	})
	defer span.End()

	if input.OrgID == "" || input.FileName == "" {
		return nil, domain.ErrMissingRequiredField
	}
	if len(input.Data) == 0 {
		return nil, domain.ErrEmptyDocument
	}
	if len(input.Data) > MaxImportFileSize {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, fmt.Sprintf("file exceeds %d bytes", MaxImportFileSize))
	}
	if input.Type != "" && !domain.IsValidKnowledgeType(input.Type) {
		return nil, domain.ErrInvalidKnowledgeType
	}
	kind, err := extract.DetectKind(input.MimeType, input.FileName)
	if err != nil {
		return nil, err
	}
	if err := s.checkProduct(ctx, input.OrgID, input.ProductID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = strings.TrimSuffix(input.FileName, path.Ext(input.FileName))
	}

	l, err := s.begin(ctx, input.OrgID, domain.ImportSourceFile, input.FileName)
	if err != nil {
		return nil, err
	}

	item := s.newItem(input.OrgID, title, input.Type, kind.Source())
	item.AgentID = input.AgentID
	item.ProductID = input.ProductID
	item.Category = input.Category
	item.SourceFilePath = BuildStorageKey(input.OrgID, item.ID, input.FileName)
	item.Metadata[domain.MetaFileName] = input.FileName
	item.Metadata[domain.MetaMimeType] = input.MimeType
	item.Metadata[domain.MetaFileSize] = len(input.Data)

	if err := s.store.PutObject(ctx, item.SourceFilePath, input.MimeType, input.Data); err != nil {
		s.finish(ctx, l, err)
		span.SetError(err)
		if errors.Is(err, domain.ErrStorageUnavailable) {
			return nil, err
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrStorageOperationFail.Code, domain.ErrStorageOperationFail.Message, err)
	}

	if err := s.create(ctx, l, item); err != nil {
		span.SetError(err)
		return nil, err
	}

	text, err := extract.Extract(kind, input.Data)
	if err != nil {
		span.SetError(err)
		return &ImportResult{Item: item, ImportLogID: l.ID}, s.abort(ctx, l, item, err)
	}

	content := text
	result, err := s.ingest(ctx, l, item, ContentChange{Content: &content})
	if err != nil {
		span.SetError(err)
	}
	return result, err
}

// BuildStorageKey returns the object key of an item's source file:
// {orgID}/knowledge/{itemID}/{sanitized file name}.
func BuildStorageKey(orgID, itemID, fileName string) string {
	name := unsafeFileChars.ReplaceAllString(path.Base(strings.ReplaceAll(fileName, `\`, "/")), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "upload"
	}
	return fmt.Sprintf("%s/knowledge/%s/%s", orgID, itemID, name)
}
