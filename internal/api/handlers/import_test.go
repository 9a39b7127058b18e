package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/cloo-solutions/kbpipe/internal/domain"
	"github.com/cloo-solutions/kbpipe/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type importMocks struct {
	files  *MockFileImporter
	urls   *MockURLImporter
	status *MockImportStatusReader
}

func importRouter() (http.Handler, *importMocks) {
	m := &importMocks{files: new(MockFileImporter), urls: new(MockURLImporter), status: new(MockImportStatusReader)}
	h := NewImportHandler(m.files, m.urls, m.status)
	r := chi.NewRouter()
	r.Post("/knowledge/import/file", h.ImportFile)
	r.Post("/knowledge/import/url", h.ImportURL)
	r.Get("/knowledge/imports/{id}", h.Status)
	return r, m
}

func multipartUpload(t *testing.T, fields map[string]string, fileName, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/knowledge/import/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImportHandler_ImportFile(t *testing.T) {
	t.Run("hands the upload to the importer", func(t *testing.T) {
		h, m := importRouter()
		m.files.On("Import", mock.Anything, mock.MatchedBy(func(in service.FileImportInput) bool {
			return in.OrgID == "org-1" && in.FileName == "returns.md" && in.MimeType == "text/markdown" &&
				string(in.Data) == "# Returns\n\n30 days." && in.Type == domain.KnowledgeTypePolicy &&
				in.ProductID == "prod-1" && in.Title == ""
		})).Return(&service.ImportResult{Item: testItem("item-1"), ImportLogID: "log-1", ChunkCount: 2}, nil)

		req := multipartUpload(t, map[string]string{"organizationId": "org-1", "type": "policy", "productId": "prod-1"},
			"returns.md", "text/markdown", []byte("# Returns\n\n30 days."))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		require.Equal(t, http.StatusCreated, w.Code)
		resp := decodeData[ImportResponse](t, w)
		assert.Equal(t, "log-1", resp.ImportLogID)
		assert.Equal(t, 2, resp.ChunkCount)
		assert.Equal(t, "item-1", resp.Item.ID)
	})

	t.Run("failed extraction keeps the import log reference", func(t *testing.T) {
		h, m := importRouter()
		m.files.On("Import", mock.Anything, mock.Anything).
			Return(&service.ImportResult{Item: testItem("item-1"), ImportLogID: "log-9"}, domain.ErrScannedPDF)

		req := multipartUpload(t, map[string]string{"organizationId": "org-1"}, "scan.pdf", "application/pdf", []byte("%PDF-1.4"))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "log-9", w.Header().Get("X-Import-Log-ID"))
		assert.Equal(t, domain.ErrCodeExtractionFailed, decodeError(t, w).Code)
	})

	t.Run("requires a file", func(t *testing.T) {
		h, m := importRouter()

		req := multipartUpload(t, map[string]string{"organizationId": "org-1"}, "", "", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		m.files.AssertNotCalled(t, "Import", mock.Anything, mock.Anything)
	})

	t.Run("rejects non multipart bodies", func(t *testing.T) {
		h, _ := importRouter()

		w := do(h, http.MethodPost, "/knowledge/import/file", `{"organizationId":"org-1"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestImportHandler_ImportURL(t *testing.T) {
	t.Run("imports the page", func(t *testing.T) {
		h, m := importRouter()
		m.urls.On("Import", mock.Anything, service.URLImportInput{
			OrgID: "org-1", URL: "https://example.com/help", Type: domain.KnowledgeTypeFAQ,
		}).Return(&service.ImportResult{Item: testItem("item-2"), ImportLogID: "log-2", ChunkCount: 1, Fallback: true}, nil)

		w := do(h, http.MethodPost, "/knowledge/import/url", `{"organizationId":"org-1","url":"https://example.com/help","type":"faq"}`)

		require.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, decodeData[ImportResponse](t, w).Fallback)
	})

	t.Run("upstream fetch failures", func(t *testing.T) {
		h, m := importRouter()
		m.urls.On("Import", mock.Anything, mock.Anything).Return(nil, domain.ErrInvalidURL)

		w := do(h, http.MethodPost, "/knowledge/import/url", `{"organizationId":"org-1","url":"ftp://x"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, w.Header().Get("X-Import-Log-ID"))
	})

	t.Run("requires a url", func(t *testing.T) {
		h, _ := importRouter()

		w := do(h, http.MethodPost, "/knowledge/import/url", `{"organizationId":"org-1"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestImportHandler_Status(t *testing.T) {
	h, m := importRouter()
	finished := handlerNow.Add(3 * time.Second)
	m.status.On("Get", mock.Anything, "org-1", "log-1").Return(&domain.ImportLog{
		ID: "log-1", OrgID: "org-1", KnowledgeItemID: "item-1",
		Source: domain.ImportSourceURL, SourceRef: "https://example.com",
		Status: domain.ImportStatusFailed, ErrorMessage: "rate limited", Attempts: 1,
		CreatedAt: handlerNow, FinishedAt: &finished,
	}, nil)

	w := do(h, http.MethodGet, "/knowledge/imports/log-1?organizationId=org-1", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeData[ImportLogResponse](t, w)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, "rate limited", resp.ErrorMessage)
	require.NotNil(t, resp.FinishedAt)
	assert.Equal(t, "2026-03-10T12:00:03Z", *resp.FinishedAt)
}
