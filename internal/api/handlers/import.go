package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/cloo-solutions/kbpipe/internal/api"
	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/service"
	"github.com/go-chi/chi/v5"
)

const multipartMemory = 8 << 20

type FileImporter interface {
	Import(ctx context.Context, input service.FileImportInput) (*service.ImportResult, error)
}

type URLImporter interface {
	Import(ctx context.Context, input service.URLImportInput) (*service.ImportResult, error)
}

type ImportStatusReader interface {
	Get(ctx context.Context, orgID, id string) (*domain.ImportLog, error)
}

type ImportHandler struct {
	files  FileImporter
	urls   URLImporter
	status ImportStatusReader
}

func NewImportHandler(files FileImporter, urls URLImporter, status ImportStatusReader) *ImportHandler {
	return &ImportHandler{files: files, urls: urls, status: status}
}

type ImportURLRequest struct {
	OrgID    string `json:"organizationId"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	AgentID  string `json:"agentId"`
	Category string `json:"category"`
}

type ImportResponse struct {
	Item        *KnowledgeItemResponse `json:"item"`
	ImportLogID string                 `json:"importLogId"`
	ChunkCount  int                    `json:"chunkCount"`
	Fallback    bool                   `json:"embeddingFallback"`
}

type ImportLogResponse struct {
	ID              string  `json:"id"`
	OrgID           string  `json:"organizationId"`
	KnowledgeItemID string  `json:"knowledgeItemId,omitempty"`
	Source          string  `json:"source"`
	SourceRef       string  `json:"sourceRef"`
	Status          string  `json:"status"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	Attempts        int32   `json:"attempts"`
	CreatedAt       string  `json:"createdAt"`
	FinishedAt      *string `json:"finishedAt,omitempty"`
}

// writeImportResult answers an import. Failed imports that got as far as an
// import log expose its id in X-Import-Log-ID so callers can follow up.
func writeImportResult(w http.ResponseWriter, r *http.Request, result *service.ImportResult, err error) {
	if result != nil && result.ImportLogID != "" {
		w.Header().Set("X-Import-Log-ID", result.ImportLogID)
	}
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, ImportResponse{
		Item:        itemToResponse(result.Item),
		ImportLogID: result.ImportLogID,
		ChunkCount:  result.ChunkCount,
		Fallback:    result.Fallback,
	})
}

func (h *ImportHandler) ImportFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	orgID := r.FormValue("organizationId")
	if !requireOrg(w, r, orgID) {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, service.MaxImportFileSize+1))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "failed to read file")
		return
	}

	result, err := h.files.Import(r.Context(), service.FileImportInput{
		OrgID:     orgID,
		AgentID:   r.FormValue("agentId"),
		ProductID: r.FormValue("productId"),
		Title:     r.FormValue("title"),
		Category:  r.FormValue("category"),
		Type:      domain.KnowledgeType(r.FormValue("type")),
		FileName:  header.Filename,
		MimeType:  header.Header.Get("Content-Type"),
		Data:      data,
	})
	writeImportResult(w, r, result, err)
}

func (h *ImportHandler) ImportURL(w http.ResponseWriter, r *http.Request) {
	var req ImportURLRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireOrg(w, r, req.OrgID) {
		return
	}
	if req.URL == "" {
		api.Error(w, http.StatusBadRequest, "url is required")
		return
	}

	result, err := h.urls.Import(r.Context(), service.URLImportInput{
		OrgID:    req.OrgID,
		AgentID:  req.AgentID,
		URL:      req.URL,
		Title:    req.Title,
		Category: req.Category,
		Type:     domain.KnowledgeType(req.Type),
	})
	writeImportResult(w, r, result, err)
}

func (h *ImportHandler) Status(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organizationId")
	if !requireOrg(w, r, orgID) {
		return
	}

	l, err := h.status.Get(r.Context(), orgID, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, ImportLogResponse{
		ID:              l.ID,
		OrgID:           l.OrgID,
		KnowledgeItemID: l.KnowledgeItemID,
		Source:          string(l.Source),
		SourceRef:       l.SourceRef,
		Status:          string(l.Status),
		ErrorMessage:    l.ErrorMessage,
		Attempts:        l.Attempts,
		CreatedAt:       formatTime(l.CreatedAt),
		FinishedAt:      formatTimePtr(l.FinishedAt),
	})
}
