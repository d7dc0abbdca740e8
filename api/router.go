package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"secscan/core"
	"secscan/logger"
)

// NewRouter wires the scan API around an injected engine. All paths are
// rooted at /api.
func NewRouter(engine *core.ScanEngine) http.Handler {
	h := &handlers{engine: engine}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/status", h.status)
		r.Post("/scan/code", h.scanCode)
		r.Post("/scan/file", h.scanFile)
		r.Post("/scan/directory", h.scanDirectory)
		r.Post("/scan/directory/stream", h.scanDirectoryStream)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		logger.Debug("api: unhandled route %s %s", req.Method, req.URL.Path)
		http.NotFound(w, req)
	})
	return r
}
