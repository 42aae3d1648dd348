package services

import (
	stderrors "errors"
	"net/url"
	"path"
	"sync"
	"time"

	"moodiary/pkg/celebrate"
	apperrors "moodiary/pkg/errors"
	"moodiary/pkg/logger"
	"moodiary/pkg/metrics"
	"moodiary/pkg/models"
	"moodiary/pkg/storage"
	"moodiary/pkg/utils"
)

// Upload is a photo attached to a save
type Upload struct {
	Name string
	Data []byte
}

// EntryView is one entry as the page shows it
type EntryView struct {
	Position  int
	Entry     models.DiaryEntry
	ImageURL  string
	ImageNote string
}

// Page is everything the diary page renders in one request
type Page struct {
	Today    time.Time
	Greeting string
	Settings models.Settings
	Count    int
	Banners  []celebrate.Banner
	Recent   []EntryView
	Error    *apperrors.FrontendError
}

// Options tune a DiaryService
type Options struct {
	RecentLimit int
	Owner       string
	Birthday    *celebrate.Birthday
	// Watching means an external watcher keeps the entry store's view
	// current, so page renders skip the disk read.
	Watching bool
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
	Now      func() time.Time
}

// DiaryService is the single entry point for user actions. Each method is
// one complete action: validate, touch storage once, report.
type DiaryService struct {
	entries   *storage.EntryStore
	images    *storage.ImageStore
	settings  *storage.SettingsStore
	validator *apperrors.Validator
	opts      Options
	log       *logger.Logger

	mutex   sync.Mutex
	viewErr error
}

// NewDiaryService creates a new diary service
func NewDiaryService(entries *storage.EntryStore, images *storage.ImageStore, settings *storage.SettingsStore, opts Options) *DiaryService {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	return &DiaryService{
		entries:   entries,
		images:    images,
		settings:  settings,
		validator: apperrors.NewValidator(),
		opts:      opts,
		log:       opts.Logger.WithComponent("diary_service"),
	}
}

// Refresh reloads the entry view from disk
func (s *DiaryService) Refresh() error {
	entries, err := s.entries.Load()
	s.setViewErr(err)
	if err != nil {
		s.countError(err)
		return err
	}
	s.observeCount(len(entries))
	return nil
}

// ReportReloadError records a failed background reload so the page shows it
func (s *DiaryService) ReportReloadError(err error) {
	s.countError(err)
	s.setViewErr(err)
}

// ReportReload records a successful background reload
func (s *DiaryService) ReportReload(entries []models.DiaryEntry) {
	s.setViewErr(nil)
	s.observeCount(len(entries))
}

// SaveEntry validates the form, stores the optional photo and appends the
// entry. Nothing is written when validation fails.
func (s *DiaryService) SaveEntry(form models.EntryForm, upload *Upload) (models.DiaryEntry, error) {
	if result := s.validator.ValidateEntryForm(form); !result.IsValid {
		return models.DiaryEntry{}, result.GetFirstError()
	}
	if upload != nil && !utils.IsAllowedImage(upload.Name) {
		return models.DiaryEntry{}, apperrors.New(apperrors.ErrTypeValidation, "IMAGE_TYPE", "only jpg, jpeg and png photos are accepted").
			WithUserMessage("Photos must be jpg, jpeg or png").
			WithContext("name", upload.Name)
	}

	imagePath := ""
	if upload != nil {
		stored, err := s.images.SaveImage(upload.Data, upload.Name)
		if err != nil {
			s.countError(err)
			return models.DiaryEntry{}, err
		}
		imagePath = stored
		if s.opts.Metrics != nil {
			s.opts.Metrics.ImagesStored.Inc()
		}
	}

	entry, err := s.entries.Append(models.DiaryEntry{
		Date:    form.Date,
		Score:   form.Score,
		Note:    form.Note,
		Image:   imagePath,
		SavedAt: s.opts.Now().Unix(),
	})
	if err != nil {
		if imagePath != "" {
			if rmErr := s.images.Remove(imagePath); rmErr != nil {
				s.log.Warnw("Could not remove photo of failed save", "image", imagePath, "error", rmErr)
			}
		}
		s.countError(err)
		return models.DiaryEntry{}, err
	}

	s.setViewErr(nil)
	if s.opts.Metrics != nil {
		s.opts.Metrics.EntriesSaved.Inc()
	}
	s.observeCount(s.entries.Len())
	return entry, nil
}

// DeleteEntry removes the entry with the given id
func (s *DiaryService) DeleteEntry(id string) (models.DiaryEntry, error) {
	removed, err := s.entries.Delete(id)
	return s.afterDelete(removed, err)
}

// DeleteEntryAt removes the entry at a position in the full collection.
// Used for entries saved before ids existed.
func (s *DiaryService) DeleteEntryAt(position int) (models.DiaryEntry, error) {
	removed, err := s.entries.DeleteAt(position)
	return s.afterDelete(removed, err)
}

func (s *DiaryService) afterDelete(removed models.DiaryEntry, err error) (models.DiaryEntry, error) {
	if err != nil {
		s.countError(err)
		return models.DiaryEntry{}, err
	}
	s.setViewErr(nil)
	if s.opts.Metrics != nil {
		s.opts.Metrics.EntriesDeleted.Inc()
	}
	s.observeCount(s.entries.Len())
	return removed, nil
}

// Entries returns the full collection, oldest first
func (s *DiaryService) Entries() ([]models.DiaryEntry, error) {
	if s.opts.Watching {
		if err := s.getViewErr(); err != nil {
			return nil, err
		}
		return s.entries.Entries(), nil
	}
	entries, err := s.entries.Load()
	if err != nil {
		s.countError(err)
		return nil, err
	}
	return entries, nil
}

// Settings returns the stored page settings
func (s *DiaryService) Settings() (models.Settings, error) {
	return s.settings.Get()
}

// SetBackground validates and stores a new background URL. Empty restores the default.
func (s *DiaryService) SetBackground(raw string) (models.Settings, error) {
	if result := s.validator.ValidateBackgroundURL(raw); !result.IsValid {
		return models.Settings{}, result.GetFirstError()
	}
	settings, err := s.settings.SetBackgroundURL(raw)
	if err != nil {
		s.countError(err)
	}
	return settings, err
}

// Page builds the full page view. Storage failures do not fail the page;
// they are reported in Page.Error so the form stays usable.
func (s *DiaryService) Page() Page {
	today := s.opts.Now()
	page := Page{
		Today:    today,
		Greeting: celebrate.Greeting(s.opts.Owner),
	}

	settings, err := s.settings.Get()
	if err != nil {
		s.countError(err)
		page.Error = apperrors.ToFrontendError(err)
		settings = models.Settings{BackgroundURL: storage.DefaultBackgroundURL}
	}
	page.Settings = settings

	entries, err := s.Entries()
	if err != nil {
		page.Error = apperrors.ToFrontendError(err)
		return page
	}

	page.Count = len(entries)
	page.Banners = celebrate.Banners(today, page.Count, s.opts.Birthday, s.opts.Owner)
	page.Recent = s.recentViews(entries)
	return page
}

func (s *DiaryService) recentViews(entries []models.DiaryEntry) []EntryView {
	n := s.opts.RecentLimit
	if n > len(entries) {
		n = len(entries)
	}

	views := make([]EntryView, 0, n)
	for i := len(entries) - 1; i >= len(entries)-n; i-- {
		e := entries[i]
		view := EntryView{Position: i, Entry: e}
		if e.HasImage() {
			if err := s.images.Check(e.Image); err != nil {
				s.log.Warnw("Photo not displayable", "image", e.Image, "error", err)
				view.ImageNote = apperrors.ToFrontendError(err).Message
			} else {
				view.ImageURL = "/uploads/" + url.PathEscape(path.Base(e.Image))
			}
		}
		views = append(views, view)
	}
	return views
}

// Backup zips diary, settings and photos into destDir
func (s *DiaryService) Backup(destDir string) (string, error) {
	zipPath, err := storage.Backup(destDir, storage.BackupSources{
		DiaryFile:    s.entries.Path(),
		SettingsFile: s.settings.Path(),
		UploadsDir:   s.images.Dir(),
	}, s.opts.Now())
	if err != nil {
		appErr := apperrors.WriteFailed(err, destDir)
		s.countError(appErr)
		return "", appErr
	}
	s.log.Infow("Backup written", "path", zipPath)
	return zipPath, nil
}

// Quarantine moves an unreadable diary file aside and starts empty
func (s *DiaryService) Quarantine() (string, error) {
	moved, err := s.entries.Quarantine()
	if err != nil {
		s.countError(err)
		return "", err
	}
	s.setViewErr(nil)
	s.observeCount(0)
	return moved, nil
}

func (s *DiaryService) setViewErr(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.viewErr = err
}

func (s *DiaryService) getViewErr() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.viewErr
}

func (s *DiaryService) observeCount(n int) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.EntriesStored.Set(float64(n))
	}
}

func (s *DiaryService) countError(err error) {
	if s.opts.Metrics == nil || err == nil {
		return
	}
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		if appErr.Type == apperrors.ErrTypeValidation {
			return
		}
		s.opts.Metrics.StorageErrors.WithLabelValues(string(appErr.Type)).Inc()
		return
	}
	s.opts.Metrics.StorageErrors.WithLabelValues(string(apperrors.ErrTypeApp)).Inc()
}
