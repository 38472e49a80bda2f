package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/owlivion-tech/owlivion-mail-sync/internal/logging"
)

// NewRouter assembles the full HTTP surface: a public health probe plus the
// authenticated sync and blob endpoints under /api/v1.
func NewRouter(h *Handler, secret []byte, logger logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware(secret))

		r.Route("/sync/{dataType}", func(r chi.Router) {
			r.Post("/changes", h.upload)
			r.Get("/changes", h.download)
			r.Get("/deleted", h.deleted)
			r.Get("/status", h.status)
			r.Post("/ack", h.ack)
		})

		r.Post("/blobs", h.createBlob)
		r.Get("/blobs/*", h.getBlob)
	})

	return r
}
