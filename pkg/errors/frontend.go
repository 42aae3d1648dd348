package errors

import (
	stderrors "errors"
	"net/http"
)

// FrontendError represents an error formatted for frontend consumption
type FrontendError struct {
	Type    string                 `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// ToFrontendError converts an AppError to a frontend-friendly format
func ToFrontendError(err error) *FrontendError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &FrontendError{
			Type:    string(appErr.Type),
			Code:    appErr.Code,
			Message: appErr.GetUserMessage(),
			Context: appErr.Context,
		}
	}

	// Handle generic errors
	return &FrontendError{
		Type:    string(ErrTypeApp),
		Code:    "GENERIC_ERROR",
		Message: "An unexpected error occurred. Please try again",
	}
}

// HTTPStatus maps an error onto the status code handlers should reply with
func HTTPStatus(err error) int {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	switch appErr.Type {
	case ErrTypeValidation:
		return http.StatusUnprocessableEntity
	case ErrTypeOutOfRange, ErrTypeNotFound:
		return http.StatusNotFound
	case ErrTypeImage:
		return http.StatusUnsupportedMediaType
	case ErrTypeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
