package server

import (
	"net/http"

	"github.com/cloo-solutions/kbpipe/internal/api"
	"github.com/cloo-solutions/kbpipe/internal/api/handlers"
	"github.com/cloo-solutions/kbpipe/internal/api/middleware"
	"github.com/cloo-solutions/kbpipe/internal/service"
	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes   int64 = 1 << 20
	maxUploadBytes int64 = service.MaxImportFileSize + 1<<20
)

type RouterConfig struct {
	ServiceToken       string
	KnowledgeHandler   *handlers.KnowledgeHandler
	ImportHandler      *handlers.ImportHandler
	ProcessingHandler  *handlers.ProcessingHandler
	EditRequestHandler *handlers.EditRequestHandler
	WizardHandler      *handlers.WizardHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes, maxUploadBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.ServiceTokenAuth(cfg.ServiceToken))

		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/", cfg.KnowledgeHandler.List)

			r.Post("/import/file", cfg.ImportHandler.ImportFile)
			r.Post("/import/url", cfg.ImportHandler.ImportURL)
			r.Get("/imports/{id}", cfg.ImportHandler.Status)

			r.Post("/reprocess", cfg.ProcessingHandler.Reprocess)

			r.Post("/edit-requests", cfg.EditRequestHandler.Propose)
			r.Post("/edit-requests/apply", cfg.EditRequestHandler.Apply)
			r.Post("/edit-requests/{id}/confirm", cfg.EditRequestHandler.Confirm)

			r.Post("/wizard/turn", cfg.WizardHandler.Turn)
			r.Post("/wizard/synthesize", cfg.WizardHandler.Synthesize)
			r.Post("/feedback/classify", cfg.WizardHandler.ClassifyFeedback)

			r.Get("/{id}", cfg.KnowledgeHandler.Get)
			r.Get("/{id}/history", cfg.KnowledgeHandler.History)
			r.Put("/{id}", cfg.KnowledgeHandler.Update)
			r.Delete("/{id}", cfg.KnowledgeHandler.Delete)
		})

		r.Put("/organizations/{orgId}/variables/{key}", cfg.KnowledgeHandler.SetVariable)
	})

	return r
}
