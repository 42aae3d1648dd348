package handlers

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"moodiary/pkg/logger"
)

// ImageOpener opens a stored photo by name
type ImageOpener interface {
	Open(name string) (*os.File, string, error)
}

// MediaHandlers serves uploaded photos
type MediaHandlers struct {
	images ImageOpener
	log    *logger.Logger
}

// NewMediaHandlers creates a new media handlers instance
func NewMediaHandlers(images ImageOpener, log *logger.Logger) *MediaHandlers {
	if log == nil {
		log = logger.NewNop()
	}
	return &MediaHandlers{images: images, log: log.WithComponent("media")}
}

// ImageHandler streams one photo. Unreadable or undecodable files are a 404
// so a broken image never takes the page down with it.
func (h *MediaHandlers) ImageHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	f, format, err := h.images.Open(name)
	if err != nil {
		h.log.Debugw("Photo not served", "name", name, "error", err)
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/"+format)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
