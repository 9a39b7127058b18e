package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validItem() *KnowledgeItem {
	return &KnowledgeItem{
		ID:       "k1",
		OrgID:    "org1",
		Title:    "Return policy",
		Content:  "Returns are accepted within 30 days.",
		Type:     KnowledgeTypePolicy,
		Scope:    KnowledgeScopeGlobal,
		Status:   KnowledgeStatusProcessing,
		Source:   KnowledgeSourceManual,
		IsActive: true,
	}
}

func TestValidateKnowledgeItem(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(k *KnowledgeItem)
		wantErr bool
		errMsg  string
	}{
		{name: "valid item", mutate: func(k *KnowledgeItem) {}},
		{name: "missing ID", mutate: func(k *KnowledgeItem) { k.ID = "" }, wantErr: true, errMsg: "ID"},
		{name: "missing OrgID", mutate: func(k *KnowledgeItem) { k.OrgID = "" }, wantErr: true, errMsg: "OrgID"},
		{name: "missing Title", mutate: func(k *KnowledgeItem) { k.Title = "" }, wantErr: true, errMsg: "Title"},
		{name: "invalid Type", mutate: func(k *KnowledgeItem) { k.Type = "guideline" }, wantErr: true, errMsg: "Type"},
		{name: "invalid Status", mutate: func(k *KnowledgeItem) { k.Status = "approved" }, wantErr: true, errMsg: "Status"},
		{name: "invalid Scope", mutate: func(k *KnowledgeItem) { k.Scope = "team" }, wantErr: true, errMsg: "Scope"},
		{
			name:    "product scope without product",
			mutate:  func(k *KnowledgeItem) { k.Scope = KnowledgeScopeProduct },
			wantErr: true,
			errMsg:  "ProductID",
		},
		{
			name: "product scope with product",
			mutate: func(k *KnowledgeItem) {
				k.Scope = KnowledgeScopeProduct
				k.ProductID = "p1"
			},
		},
		{
			name: "both source url and file path",
			mutate: func(k *KnowledgeItem) {
				k.SourceURL = "https://example.com"
				k.SourceFilePath = "org1/knowledge/k1/a.pdf"
			},
			wantErr: true,
			errMsg:  "SourceURL",
		},
		{
			name:    "error status without message",
			mutate:  func(k *KnowledgeItem) { k.Status = KnowledgeStatusError },
			wantErr: true,
			errMsg:  "ErrorMessage",
		},
		{
			name: "error status with message",
			mutate: func(k *KnowledgeItem) {
				k.Status = KnowledgeStatusError
				k.ErrorMessage = "document is empty"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem()
			tt.mutate(item)
			err := ValidateKnowledgeItem(item)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateKnowledgeItem_Nil(t *testing.T) {
	assert.Error(t, ValidateKnowledgeItem(nil))
}

func TestKnowledgeItem_EmbeddableContent(t *testing.T) {
	item := validItem()
	assert.Equal(t, item.Content, item.EmbeddableContent())

	item.ResolvedContent = "resolved"
	assert.Equal(t, "resolved", item.EmbeddableContent())
}

func TestKnowledgeItem_OriginalContent(t *testing.T) {
	item := validItem()
	_, ok := item.OriginalContent()
	assert.False(t, ok)

	item.Metadata = map[string]any{MetaOriginalContent: ""}
	_, ok = item.OriginalContent()
	assert.False(t, ok)

	item.Metadata[MetaOriginalContent] = "snapshot"
	got, ok := item.OriginalContent()
	assert.True(t, ok)
	assert.Equal(t, "snapshot", got)
}

func TestDomainError_IsMatchesWrappedSentinel(t *testing.T) {
	err := fmt.Errorf("processing item k1: %w", ErrScannedPDF)
	assert.True(t, errors.Is(err, ErrScannedPDF))
	assert.False(t, errors.Is(err, ErrDOCXUnreadable))

	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, ErrCodeExtractionFailed, de.Code)
}

func TestDomainError_WithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDomainErrorWithCause(ErrCodeUpstreamUnavailable, "embedding provider unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Equal(t, "[UPSTREAM_UNAVAILABLE] embedding provider unavailable: connection refused", err.Error())
}
