package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "moodiary/pkg/errors"
	"moodiary/pkg/logger"
	"moodiary/pkg/models"
)

// APIHandlers contains JSON endpoint handlers
type APIHandlers struct {
	diary     Diary
	backupDir string
	log       *logger.Logger
}

// NewAPIHandlers creates a new API handlers instance
func NewAPIHandlers(diary Diary, backupDir string, log *logger.Logger) *APIHandlers {
	if log == nil {
		log = logger.NewNop()
	}
	return &APIHandlers{
		diary:     diary,
		backupDir: backupDir,
		log:       log.WithComponent("api"),
	}
}

// GetEntriesHandler returns every entry, oldest first
func (h *APIHandlers) GetEntriesHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.diary.Entries()
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.DiaryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// CreateEntryHandler appends an entry without a photo
func (h *APIHandlers) CreateEntryHandler(w http.ResponseWriter, r *http.Request) {
	var req models.EntryForm
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	entry, err := h.diary.SaveEntry(req, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// DeleteEntryHandler deletes an entry by id
func (h *APIHandlers) DeleteEntryHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Invalid entry ID", http.StatusBadRequest)
		return
	}

	if _, err := h.diary.DeleteEntry(id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteEntryAtHandler deletes an entry by position
func (h *APIHandlers) DeleteEntryAtHandler(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		http.Error(w, "Invalid entry position", http.StatusBadRequest)
		return
	}

	if _, err := h.diary.DeleteEntryAt(position); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type settingsBody struct {
	BackgroundURL string `json:"bg_url"`
}

// GetSettingsHandler returns the page settings
func (h *APIHandlers) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := h.diary.Settings()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsBody{BackgroundURL: settings.BackgroundURL})
}

// UpdateSettingsHandler stores a new background URL
func (h *APIHandlers) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req settingsBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	settings, err := h.diary.SetBackground(req.BackgroundURL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsBody{BackgroundURL: settings.BackgroundURL})
}

// BackupHandler writes a backup archive and returns its path
func (h *APIHandlers) BackupHandler(w http.ResponseWriter, r *http.Request) {
	zipPath, err := h.diary.Backup(h.backupDir)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"path":    zipPath,
	})
}

// QuarantineHandler moves an unreadable diary file aside
func (h *APIHandlers) QuarantineHandler(w http.ResponseWriter, r *http.Request) {
	moved, err := h.diary.Quarantine()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"moved_to": moved,
	})
}

func (h *APIHandlers) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorw("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]interface{}{"error": apperrors.ToFrontendError(err)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
