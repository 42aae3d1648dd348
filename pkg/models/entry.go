package models

import "strings"

// DiaryEntry is one saved journal record as stored in diary.json
type DiaryEntry struct {
	ID      string  `json:"id,omitempty" yaml:"id,omitempty"`
	Date    string  `json:"date" yaml:"date"`
	Score   float64 `json:"score" yaml:"score"`
	Note    string  `json:"note" yaml:"note"`
	Image   string  `json:"image" yaml:"image"`
	SavedAt int64   `json:"saved_at" yaml:"saved_at"`
}

// HasImage reports whether the entry references an uploaded photo
func (e DiaryEntry) HasImage() bool {
	return strings.TrimSpace(e.Image) != ""
}

// IndexedEntry pairs an entry with its position in the full collection.
// Legacy entries written without an id can only be addressed by position.
type IndexedEntry struct {
	Position int
	Entry    DiaryEntry
}

// Settings mirrors data/settings.json. Extra keys are kept so a rewrite
// never drops values this program does not understand.
type Settings struct {
	BackgroundURL string
	Extra         map[string]any
}

// EntryForm is what the user submits from the page or the API
type EntryForm struct {
	Date  string  `json:"date" validate:"required,datetime=2006-01-02"`
	Score float64 `json:"score" validate:"gte=0,lte=10,halfstep"`
	Note  string  `json:"note" validate:"notblank"`
}
