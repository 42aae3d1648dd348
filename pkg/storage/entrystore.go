package storage

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "moodiary/pkg/errors"
	"moodiary/pkg/logger"
	"moodiary/pkg/models"
	"moodiary/pkg/utils"
)

// EntryStore owns diary.json: a single JSON array rewritten wholesale on
// every change. Each mutating call is one read-modify-write cycle under the
// store mutex; the in-memory view is only replaced after the write succeeds.
type EntryStore struct {
	path      string
	mutex     sync.RWMutex
	entries   []models.DiaryEntry
	validator *apperrors.Validator
	log       *logger.Logger
	now       func() time.Time
	lastWrite fileStamp
}

// fileStamp identifies one version of the diary file on disk
type fileStamp struct {
	size    int64
	modTime time.Time
}

func (f fileStamp) isZero() bool {
	return f.modTime.IsZero()
}

func (f fileStamp) matches(info os.FileInfo) bool {
	return info.Size() == f.size && info.ModTime().Equal(f.modTime)
}

// NewEntryStore creates a store for the given diary file. The parent
// directory is created; the file itself is not touched until the first save.
func NewEntryStore(path string, log *logger.Logger) (*EntryStore, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.WriteFailed(err, filepath.Dir(path))
	}

	return &EntryStore{
		path:      path,
		validator: apperrors.NewValidator(),
		log:       log.WithComponent("entry_store"),
		now:       time.Now,
	}, nil
}

// Path returns the diary file location
func (s *EntryStore) Path() string {
	return s.path
}

// Load reads the diary file and replaces the in-memory view with it.
// A missing file is an empty diary; a malformed one is a corruption error
// and the previous view is kept.
func (s *EntryStore) Load() ([]models.DiaryEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	s.entries = entries
	return cloneEntries(entries), nil
}

// Entries returns a copy of the in-memory view without touching disk
func (s *EntryStore) Entries() []models.DiaryEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return cloneEntries(s.entries)
}

// Len returns the number of entries in the in-memory view
func (s *EntryStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.entries)
}

// Save overwrites the diary file with exactly the given collection
func (s *EntryStore) Save(entries []models.DiaryEntry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	next := cloneEntries(entries)
	if err := s.writeLocked(next); err != nil {
		return err
	}
	s.entries = next
	return nil
}

// Append adds one entry at the end of the diary. Blank notes are rejected
// before anything is read or written. A missing id or saved_at is filled in.
func (s *EntryStore) Append(entry models.DiaryEntry) (models.DiaryEntry, error) {
	if result := s.validator.ValidateNote(entry.Note); !result.IsValid {
		return models.DiaryEntry{}, result.GetFirstError()
	}

	if entry.ID == "" {
		entry.ID = utils.GenerateShortUUID()
	}
	if entry.SavedAt == 0 {
		entry.SavedAt = s.now().Unix()
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, err := s.readLocked()
	if err != nil {
		return models.DiaryEntry{}, err
	}

	next := append(current, entry)
	if err := s.writeLocked(next); err != nil {
		return models.DiaryEntry{}, err
	}
	s.entries = next

	s.log.Infow("Entry saved", "id", entry.ID, "date", entry.Date, "count", len(next))
	return entry, nil
}

// DeleteAt removes the entry at position in the full collection
func (s *EntryStore) DeleteAt(position int) (models.DiaryEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, err := s.readLocked()
	if err != nil {
		return models.DiaryEntry{}, err
	}
	if position < 0 || position >= len(current) {
		return models.DiaryEntry{}, apperrors.PositionOutOfRange(position, len(current))
	}

	return s.removeLocked(current, position)
}

// Delete removes the entry carrying id
func (s *EntryStore) Delete(id string) (models.DiaryEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, err := s.readLocked()
	if err != nil {
		return models.DiaryEntry{}, err
	}

	for i, e := range current {
		if id != "" && e.ID == id {
			return s.removeLocked(current, i)
		}
	}
	return models.DiaryEntry{}, apperrors.EntryNotFound(id)
}

// Recent returns up to n of the most recently saved entries, newest first,
// each with its position in the full collection.
func (s *EntryStore) Recent(n int) []models.IndexedEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}

	recent := make([]models.IndexedEntry, 0, n)
	for i := len(s.entries) - 1; i >= len(s.entries)-n; i-- {
		recent = append(recent, models.IndexedEntry{Position: i, Entry: s.entries[i]})
	}
	return recent
}

// Quarantine moves an unreadable diary file aside into a corrupted/ folder
// next to it and resets the view to empty. It returns the new location of
// the file, or "" when there was no file to move. A file that decodes
// cleanly is never moved.
func (s *EntryStore) Quarantine() (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		s.entries = nil
		return "", nil
	}
	if _, err := s.readLocked(); err == nil {
		return "", apperrors.DiaryReadable(s.path)
	} else if !stderrors.Is(err, apperrors.ErrCorruption) {
		return "", err
	}

	corruptedDir := filepath.Join(filepath.Dir(s.path), "corrupted")
	if err := os.MkdirAll(corruptedDir, 0755); err != nil {
		return "", apperrors.WriteFailed(err, corruptedDir)
	}

	base := filepath.Base(s.path)
	ext := filepath.Ext(base)
	stamp := s.now().Format("20060102-150405")
	stem := base[:len(base)-len(ext)]
	newPath := filepath.Join(corruptedDir, fmt.Sprintf("%s-%s%s", stem, stamp, ext))
	if _, err := os.Stat(newPath); err == nil {
		newPath = filepath.Join(corruptedDir, fmt.Sprintf("%s-%s-%s%s", stem, stamp, utils.GenerateShortUUID(), ext))
	}

	if err := os.Rename(s.path, newPath); err != nil {
		return "", apperrors.WriteFailed(err, newPath)
	}
	s.entries = nil

	s.log.Warnw("Diary file moved aside", "from", s.path, "to", newPath)
	return newPath, nil
}

// BackfillIDs gives every entry saved without an id a fresh one. Order and
// every other field are kept. It returns how many entries changed.
func (s *EntryStore) BackfillIDs() (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, err := s.readLocked()
	if err != nil {
		return 0, err
	}

	next := cloneEntries(current)
	changed := 0
	for i := range next {
		if next[i].ID == "" {
			next[i].ID = utils.GenerateShortUUID()
			changed++
		}
	}
	if changed == 0 {
		s.entries = current
		return 0, nil
	}

	if err := s.writeLocked(next); err != nil {
		return 0, err
	}
	s.entries = next

	s.log.Infow("Legacy entries given ids", "count", changed)
	return changed, nil
}

// WrittenByUs reports whether the diary file on disk is still the version
// this process last wrote. False when the store has not written yet.
func (s *EntryStore) WrittenByUs(info os.FileInfo) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return !s.lastWrite.isZero() && s.lastWrite.matches(info)
}

func (s *EntryStore) removeLocked(current []models.DiaryEntry, i int) (models.DiaryEntry, error) {
	removed := current[i]

	next := make([]models.DiaryEntry, 0, len(current)-1)
	next = append(next, current[:i]...)
	next = append(next, current[i+1:]...)

	if err := s.writeLocked(next); err != nil {
		return models.DiaryEntry{}, err
	}
	s.entries = next

	s.log.Infow("Entry deleted", "id", removed.ID, "position", i, "count", len(next))
	return removed, nil
}

// readLocked decodes the diary file; caller holds the mutex
func (s *EntryStore) readLocked() ([]models.DiaryEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.DiaryEntry{}, nil
		}
		return nil, apperrors.ReadFailed(err, s.path)
	}

	entries, err := DecodeEntries(data)
	if err != nil {
		appErr := apperrors.Corrupted(err, s.path)
		appErr.Log(s.log.SugaredLogger)
		return nil, appErr
	}
	return entries, nil
}

// writeLocked replaces the diary file atomically; caller holds the mutex
func (s *EntryStore) writeLocked(entries []models.DiaryEntry) error {
	data, err := EncodeEntries(entries)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrTypeApp, "ENCODE_FAILED", "failed to encode diary")
	}
	if err := writeFileAtomic(s.path, data, 0644); err != nil {
		appErr := apperrors.WriteFailed(err, s.path)
		appErr.Log(s.log.SugaredLogger)
		return appErr
	}
	if info, err := os.Stat(s.path); err == nil {
		s.lastWrite = fileStamp{size: info.Size(), modTime: info.ModTime()}
	} else {
		s.lastWrite = fileStamp{}
	}
	return nil
}

// DecodeEntries parses a diary.json payload, which must be a JSON array.
// Blank content is an error, not an empty diary.
func DecodeEntries(data []byte) ([]models.DiaryEntry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("diary file is empty")
	}

	var entries []models.DiaryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		// A literal null is not a diary.
		return nil, fmt.Errorf("expected JSON array, got null")
	}
	return entries, nil
}

// EncodeEntries renders the collection the way diary.json is stored:
// two-space indent, non-ASCII and HTML characters written literally.
func EncodeEntries(entries []models.DiaryEntry) ([]byte, error) {
	if entries == nil {
		entries = []models.DiaryEntry{}
	}
	return marshalIndent(entries)
}

func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over path, so a reader never sees a half-written file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func cloneEntries(entries []models.DiaryEntry) []models.DiaryEntry {
	out := make([]models.DiaryEntry, len(entries))
	copy(out, entries)
	return out
}
