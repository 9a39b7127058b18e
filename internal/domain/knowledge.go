package domain

import (
	"fmt"
	"time"
)

// KnowledgeType represents the type of knowledge item
type KnowledgeType string

const (
	KnowledgeTypeManual      KnowledgeType = "manual"
	KnowledgeTypeProduct     KnowledgeType = "product"
	KnowledgeTypeFAQ         KnowledgeType = "faq"
	KnowledgeTypePolicy      KnowledgeType = "policy"
	KnowledgeTypeInstruction KnowledgeType = "instruction"
	KnowledgeTypeGeneral     KnowledgeType = "general"
)

// KnowledgeStatus represents the processing status of a knowledge item
type KnowledgeStatus string

const (
	KnowledgeStatusDraft      KnowledgeStatus = "draft"
	KnowledgeStatusProcessing KnowledgeStatus = "processing"
	KnowledgeStatusPublished  KnowledgeStatus = "published"
	KnowledgeStatusError      KnowledgeStatus = "error"
)

// KnowledgeScope tells whether an item applies organization-wide or to one product
type KnowledgeScope string

const (
	KnowledgeScopeGlobal  KnowledgeScope = "global"
	KnowledgeScopeProduct KnowledgeScope = "product"
)

// KnowledgeSource is the provenance tag of a knowledge item
type KnowledgeSource string

const (
	KnowledgeSourceImportTXT    KnowledgeSource = "import_txt"
	KnowledgeSourceImportMD     KnowledgeSource = "import_md"
	KnowledgeSourceImportPDF    KnowledgeSource = "import_pdf"
	KnowledgeSourceImportDOCX   KnowledgeSource = "import_docx"
	KnowledgeSourceImportURL    KnowledgeSource = "import_url"
	KnowledgeSourceConversation KnowledgeSource = "conversation"
	KnowledgeSourceManual       KnowledgeSource = "manual"
)

// Metadata keys written by the processing pipeline.
const (
	MetaOriginalContent    = "original_content"
	MetaCharCount          = "char_count"
	MetaChunkCount         = "chunk_count"
	MetaEmbeddingModel     = "embedding_model"
	MetaEmbeddingDimension = "embedding_dimension"
	MetaEmbeddingFallback  = "embedding_fallback"
	MetaProcessedAt        = "processed_at"
	MetaScrapedAt          = "scraped_at"
	MetaFileName           = "file_name"
	MetaMimeType           = "mime_type"
	MetaFileSize           = "file_size"
	MetaWizardType         = "wizard_type"
)

// KnowledgeItem is one logical document or fact in an organization's knowledge base.
//
// ResolvedContent is derived from Content and is only ever written by the
// materialization step (see service.ContentWriter). ContentVersion increases on
// every content write and lets a processing pass detect that it went stale.
type KnowledgeItem struct {
	ID              string
	OrgID           string
	AgentID         string
	ProductID       string
	Title           string
	Content         string
	ResolvedContent string
	Type            KnowledgeType
	Category        string
	Scope           KnowledgeScope
	Status          KnowledgeStatus
	Source          KnowledgeSource
	SourceURL       string
	SourceFilePath  string
	IsActive        bool
	NeedsReindex    bool
	ContentVersion  int64
	ErrorMessage    string
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EmbeddableContent returns the text a processing pass should chunk.
func (k *KnowledgeItem) EmbeddableContent() string {
	if k.ResolvedContent != "" {
		return k.ResolvedContent
	}
	return k.Content
}

// OriginalContent returns the metadata snapshot used by explicit reprocessing.
func (k *KnowledgeItem) OriginalContent() (string, bool) {
	if k.Metadata == nil {
		return "", false
	}
	s, ok := k.Metadata[MetaOriginalContent].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// ValidateKnowledgeItem validates a KnowledgeItem instance
func ValidateKnowledgeItem(k *KnowledgeItem) error {
	if k == nil {
		return fmt.Errorf("knowledge item cannot be nil")
	}

	if k.ID == "" {
		return fmt.Errorf("knowledge item ID is required")
	}

	if k.OrgID == "" {
		return fmt.Errorf("knowledge item OrgID is required")
	}

	if k.Title == "" {
		return fmt.Errorf("knowledge item Title is required")
	}

	if !IsValidKnowledgeType(k.Type) {
		return fmt.Errorf("knowledge item Type is invalid: %s", k.Type)
	}

	if !isValidKnowledgeStatus(k.Status) {
		return fmt.Errorf("knowledge item Status is invalid: %s", k.Status)
	}

	if k.Scope != KnowledgeScopeGlobal && k.Scope != KnowledgeScopeProduct {
		return fmt.Errorf("knowledge item Scope is invalid: %s", k.Scope)
	}

	if k.Scope == KnowledgeScopeProduct && k.ProductID == "" {
		return fmt.Errorf("product-scoped knowledge item requires ProductID")
	}

	if k.SourceURL != "" && k.SourceFilePath != "" {
		return fmt.Errorf("knowledge item cannot have both SourceURL and SourceFilePath")
	}

	if k.Status == KnowledgeStatusError && k.ErrorMessage == "" {
		return fmt.Errorf("knowledge item in error status requires ErrorMessage")
	}

	return nil
}

// IsValidKnowledgeType checks if a KnowledgeType is valid
func IsValidKnowledgeType(t KnowledgeType) bool {
	switch t {
	case KnowledgeTypeManual, KnowledgeTypeProduct, KnowledgeTypeFAQ,
		KnowledgeTypePolicy, KnowledgeTypeInstruction, KnowledgeTypeGeneral:
		return true
	}
	return false
}

func isValidKnowledgeStatus(s KnowledgeStatus) bool {
	switch s {
	case KnowledgeStatusDraft, KnowledgeStatusProcessing, KnowledgeStatusPublished, KnowledgeStatusError:
		return true
	}
	return false
}
