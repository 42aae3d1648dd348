package errors

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// Input rejected before anything was written
	ErrTypeValidation ErrorType = "validation"
	// Positional delete outside the collection
	ErrTypeOutOfRange ErrorType = "out_of_range"
	// Delete by id that matches nothing
	ErrTypeNotFound ErrorType = "not_found"
	// Storage or settings file exists but is not well-formed
	ErrTypeCorruption ErrorType = "corruption"
	// Action refused because the current state does not call for it
	ErrTypeConflict ErrorType = "conflict"
	// Filesystem read/write failures
	ErrTypeIO ErrorType = "io"
	// Stored image missing or not decodable
	ErrTypeImage ErrorType = "image"
	// Configuration errors
	ErrTypeConfig ErrorType = "configuration"
	// Generic application errors
	ErrTypeApp ErrorType = "application"
)

// AppError represents a structured application error
type AppError struct {
	Type        ErrorType              `json:"type"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	UserMessage string                 `json:"userMessage"`
	InternalErr error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.InternalErr != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.InternalErr)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap exposes the underlying cause
func (e *AppError) Unwrap() error {
	return e.InternalErr
}

// Is matches on error type, so errors.Is(err, errors.ErrCorruption) holds
// for every corruption error regardless of code or context.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Type == e.Type
}

// GetUserMessage returns a user-friendly error message
func (e *AppError) GetUserMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets a user-friendly message
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// Log writes the error to the given logger at error level
func (e *AppError) Log(log *zap.SugaredLogger) {
	fields := []interface{}{"type", e.Type, "code", e.Code}
	if e.InternalErr != nil {
		fields = append(fields, "cause", e.InternalErr.Error())
	}

	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, k, e.Context[k])
	}

	log.Errorw(e.Message, fields...)
}

// New creates a new AppError
func New(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:        errType,
		Code:        code,
		Message:     message,
		InternalErr: err,
	}
}

// Kind markers for errors.Is. They carry no code, so they match any error of
// their type. Never mutate them; build concrete errors with the helpers below.
var (
	ErrValidation = &AppError{Type: ErrTypeValidation}
	ErrOutOfRange = &AppError{Type: ErrTypeOutOfRange}
	ErrNotFound   = &AppError{Type: ErrTypeNotFound}
	ErrCorruption = &AppError{Type: ErrTypeCorruption}
	ErrConflict   = &AppError{Type: ErrTypeConflict}
	ErrIO         = &AppError{Type: ErrTypeIO}
	ErrImage      = &AppError{Type: ErrTypeImage}
)

// EmptyNote is returned when a note is blank after trimming whitespace
func EmptyNote() *AppError {
	return New(ErrTypeValidation, "NOTE_EMPTY", "note cannot be empty").
		WithUserMessage("Please write something before saving")
}

// PositionOutOfRange is returned by positional deletes outside [0, n)
func PositionOutOfRange(position, length int) *AppError {
	return New(ErrTypeOutOfRange, "POSITION_OUT_OF_RANGE",
		fmt.Sprintf("position %d outside collection of %d entries", position, length)).
		WithUserMessage("That entry no longer exists. Please refresh the page").
		WithContext("position", position).
		WithContext("length", length)
}

// EntryNotFound is returned when no entry carries the given id
func EntryNotFound(id string) *AppError {
	return New(ErrTypeNotFound, "ENTRY_NOT_FOUND", "entry not found").
		WithUserMessage("That entry no longer exists. Please refresh the page").
		WithContext("id", id)
}

// Corrupted wraps a decode failure of a file this program owns
func Corrupted(err error, path string) *AppError {
	return Wrap(err, ErrTypeCorruption, "DATA_CORRUPTED", "file is not well-formed JSON").
		WithUserMessage("The diary file could not be read. It was left untouched; you can move it aside and start fresh").
		WithContext("path", path)
}

// SettingsCorrupted wraps a decode failure of settings.json
func SettingsCorrupted(err error, path string) *AppError {
	return Wrap(err, ErrTypeCorruption, "SETTINGS_CORRUPTED", "settings file is not well-formed").
		WithUserMessage("The settings file could not be read, so the default background is shown. Fix or remove it to change the background").
		WithContext("path", path)
}

// DiaryReadable is returned when quarantine is asked for a diary file that decodes fine
func DiaryReadable(path string) *AppError {
	return New(ErrTypeConflict, "DIARY_READABLE", "diary file is readable; refusing to move it aside").
		WithUserMessage("The diary file is fine, so it was not moved").
		WithContext("path", path)
}

// ReadFailed wraps a filesystem read failure
func ReadFailed(err error, path string) *AppError {
	return Wrap(err, ErrTypeIO, "FILE_READ_FAILED", "failed to read file").
		WithUserMessage("Unable to read file. It may be inaccessible").
		WithContext("path", path)
}

// WriteFailed wraps a filesystem write failure
func WriteFailed(err error, path string) *AppError {
	return Wrap(err, ErrTypeIO, "FILE_WRITE_FAILED", "failed to write file").
		WithUserMessage("Unable to save. Check disk space and permissions").
		WithContext("path", path)
}

// ImageUnreadable wraps a failure to open or decode a stored photo
func ImageUnreadable(err error, path string) *AppError {
	return Wrap(err, ErrTypeImage, "IMAGE_DECODE_FAILED", "stored image could not be decoded").
		WithUserMessage("(image could not be displayed)").
		WithContext("path", path)
}
