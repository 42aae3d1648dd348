package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"moodiary/pkg/logger"
	"moodiary/pkg/metrics"
	"moodiary/pkg/middleware"
)

// RouterDeps wires handlers into a router
type RouterDeps struct {
	Diary     Diary
	Images    ImageOpener
	BackupDir string
	Logger    *logger.Logger
	// Metrics may be nil to disable instrumentation and /metrics
	Metrics *metrics.Metrics
}

// NewRouter builds the diary's HTTP routes
func NewRouter(deps RouterDeps) (http.Handler, error) {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}

	webHandlers, err := NewWebHandlers(deps.Diary, log)
	if err != nil {
		return nil, err
	}
	apiHandlers := NewAPIHandlers(deps.Diary, deps.BackupDir, log)
	mediaHandlers := NewMediaHandlers(deps.Images, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(log))
	if deps.Metrics != nil {
		r.Use(middleware.Instrument(deps.Metrics))
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Page routes
	r.Get("/", webHandlers.IndexHandler)
	r.Post("/entries", webHandlers.SaveEntryHandler)
	r.Post("/entries/{id}/delete", webHandlers.DeleteEntryHandler)
	r.Post("/entries/at/{position}/delete", webHandlers.DeleteEntryAtHandler)
	r.Post("/settings", webHandlers.SettingsHandler)
	r.Post("/quarantine", webHandlers.QuarantineHandler)
	r.Get("/uploads/{name}", mediaHandlers.ImageHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/entries", apiHandlers.GetEntriesHandler)
		r.Post("/entries", apiHandlers.CreateEntryHandler)
		r.Delete("/entries/{id}", apiHandlers.DeleteEntryHandler)
		r.Delete("/entries/at/{position}", apiHandlers.DeleteEntryAtHandler)
		r.Get("/settings", apiHandlers.GetSettingsHandler)
		r.Put("/settings", apiHandlers.UpdateSettingsHandler)
		r.Post("/backup", apiHandlers.BackupHandler)
		r.Post("/quarantine", apiHandlers.QuarantineHandler)
	})

	return r, nil
}
