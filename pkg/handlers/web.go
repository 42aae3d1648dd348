package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"moodiary/pkg/celebrate"
	apperrors "moodiary/pkg/errors"
	"moodiary/pkg/logger"
	"moodiary/pkg/models"
	"moodiary/pkg/services"
)

//go:embed templates/index.html
var templateFS embed.FS

// DefaultScore is the slider's starting value
const DefaultScore = 7.0

// Diary is the subset of DiaryService the handlers drive
type Diary interface {
	Page() services.Page
	SaveEntry(form models.EntryForm, upload *services.Upload) (models.DiaryEntry, error)
	DeleteEntry(id string) (models.DiaryEntry, error)
	DeleteEntryAt(position int) (models.DiaryEntry, error)
	Entries() ([]models.DiaryEntry, error)
	Settings() (models.Settings, error)
	SetBackground(raw string) (models.Settings, error)
	Backup(destDir string) (string, error)
	Quarantine() (string, error)
}

// WebHandlers contains handlers for the diary page
type WebHandlers struct {
	diary          Diary
	tmpl           *template.Template
	log            *logger.Logger
	maxUploadBytes int64
}

// formState carries what the user typed back into the page after a rejected save
type formState struct {
	Date  string
	Score float64
	Note  string
}

type pageData struct {
	services.Page
	Form    formState
	Notice  string
	Warning string
	Effect  celebrate.Effect
}

// NewWebHandlers creates a new web handlers instance
func NewWebHandlers(diary Diary, log *logger.Logger) (*WebHandlers, error) {
	if log == nil {
		log = logger.NewNop()
	}

	funcMap := template.FuncMap{
		"score": func(f float64) string {
			return strconv.FormatFloat(f, 'f', 1, 64)
		},
		"noteHTML": func(s string) template.HTML {
			return template.HTML(strings.ReplaceAll(template.HTMLEscapeString(s), "\n", "<br>"))
		},
	}

	tmpl, err := template.New("index.html").Funcs(funcMap).ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}

	return &WebHandlers{
		diary:          diary,
		tmpl:           tmpl,
		log:            log.WithComponent("web"),
		maxUploadBytes: 32 << 20,
	}, nil
}

// IndexHandler serves the main page
func (h *WebHandlers) IndexHandler(w http.ResponseWriter, r *http.Request) {
	page := h.diary.Page()
	data := pageData{
		Page: page,
		Form: formState{Date: page.Today.Format("2006-01-02"), Score: DefaultScore},
	}

	switch r.URL.Query().Get("done") {
	case "saved":
		data.Notice = "✅ Entry saved!"
		data.Effect = celebrate.EffectBalloons
	case "deleted":
		data.Notice = "Entry deleted."
	case "settings":
		data.Notice = "Background updated."
	}
	if data.Effect == celebrate.EffectNone {
		data.Effect = firstEffect(page.Banners)
	}

	status := http.StatusOK
	if page.Error != nil {
		status = http.StatusInternalServerError
	}
	h.render(w, status, data)
}

// SaveEntryHandler handles the entry form, including the optional photo
func (h *WebHandlers) SaveEntryHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil && err != http.ErrNotMultipart {
		h.renderWithWarning(w, r, http.StatusBadRequest, nil, "The upload could not be read. Is the photo too large?")
		return
	}

	form := formState{
		Date: strings.TrimSpace(r.FormValue("date")),
		Note: r.FormValue("note"),
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("score")), 64)
	if err != nil {
		form.Score = DefaultScore
		h.renderWithWarning(w, r, http.StatusUnprocessableEntity, &form, "Mood score must be a number")
		return
	}
	form.Score = score

	upload, err := readUpload(r, "photo")
	if err != nil {
		h.renderWithWarning(w, r, http.StatusBadRequest, &form, "The photo could not be read")
		return
	}

	_, err = h.diary.SaveEntry(models.EntryForm{Date: form.Date, Score: form.Score, Note: form.Note}, upload)
	if err != nil {
		h.renderWithWarning(w, r, apperrors.HTTPStatus(err), &form, apperrors.ToFrontendError(err).Message)
		return
	}

	http.Redirect(w, r, "/?done=saved", http.StatusSeeOther)
}

// DeleteEntryHandler deletes by stable id
func (h *WebHandlers) DeleteEntryHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.diary.DeleteEntry(id); err != nil {
		h.renderWithWarning(w, r, apperrors.HTTPStatus(err), nil, apperrors.ToFrontendError(err).Message)
		return
	}
	http.Redirect(w, r, "/?done=deleted", http.StatusSeeOther)
}

// DeleteEntryAtHandler deletes a legacy entry (no id) by its position
func (h *WebHandlers) DeleteEntryAtHandler(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		http.Error(w, "Invalid entry position", http.StatusBadRequest)
		return
	}
	if _, err := h.diary.DeleteEntryAt(position); err != nil {
		h.renderWithWarning(w, r, apperrors.HTTPStatus(err), nil, apperrors.ToFrontendError(err).Message)
		return
	}
	http.Redirect(w, r, "/?done=deleted", http.StatusSeeOther)
}

// SettingsHandler updates the background URL
func (h *WebHandlers) SettingsHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := h.diary.SetBackground(r.FormValue("bg_url")); err != nil {
		h.renderWithWarning(w, r, apperrors.HTTPStatus(err), nil, apperrors.ToFrontendError(err).Message)
		return
	}
	http.Redirect(w, r, "/?done=settings", http.StatusSeeOther)
}

// QuarantineHandler moves an unreadable diary file aside from the page
func (h *WebHandlers) QuarantineHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := h.diary.Quarantine(); err != nil {
		h.renderWithWarning(w, r, apperrors.HTTPStatus(err), nil, apperrors.ToFrontendError(err).Message)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *WebHandlers) renderWithWarning(w http.ResponseWriter, r *http.Request, status int, form *formState, warning string) {
	page := h.diary.Page()
	if form == nil {
		form = &formState{Date: page.Today.Format("2006-01-02"), Score: DefaultScore}
	}
	h.log.Infow("Action rejected", "path", r.URL.Path, "status", status, "warning", warning)
	h.render(w, status, pageData{Page: page, Form: *form, Warning: warning})
}

func (h *WebHandlers) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.tmpl.Execute(w, data); err != nil {
		h.log.Errorw("Template execution error", "error", err)
	}
}

func readUpload(r *http.Request, field string) (*services.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if header.Filename == "" {
		return nil, nil
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &services.Upload{Name: header.Filename, Data: data}, nil
}

func firstEffect(banners []celebrate.Banner) celebrate.Effect {
	for _, b := range banners {
		if b.Effect != celebrate.EffectNone {
			return b.Effect
		}
	}
	return celebrate.EffectNone
}
