package errors

import (
	stderrors "errors"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"moodiary/pkg/models"
)

// ValidationResult holds validation results
type ValidationResult struct {
	IsValid bool
	Errors  []*AppError
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(err *AppError) {
	vr.IsValid = false
	vr.Errors = append(vr.Errors, err)
}

// GetFirstError returns the first error or nil
func (vr *ValidationResult) GetFirstError() *AppError {
	if len(vr.Errors) > 0 {
		return vr.Errors[0]
	}
	return nil
}

// Validator provides validation utilities
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator with the diary's custom tags registered
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("halfstep", func(fl validator.FieldLevel) bool {
		doubled := fl.Field().Float() * 2
		return math.Abs(doubled-math.Round(doubled)) < 1e-9
	})
	return &Validator{validate: v}
}

// ValidateNote checks the one rule storage enforces itself
func (v *Validator) ValidateNote(note string) *ValidationResult {
	result := &ValidationResult{IsValid: true}
	if err := v.validate.Var(note, "notblank"); err != nil {
		result.AddError(EmptyNote())
	}
	return result
}

// ValidateEntryForm checks a submission from the page or API
func (v *Validator) ValidateEntryForm(form models.EntryForm) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	err := v.validate.Struct(form)
	if err == nil {
		return result
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		result.AddError(Wrap(err, ErrTypeValidation, "INVALID_INPUT", "invalid input"))
		return result
	}

	for _, fe := range fieldErrs {
		result.AddError(fieldError(fe))
	}
	return result
}

// ValidateBackgroundURL accepts empty (use the default) or an absolute URL
func (v *Validator) ValidateBackgroundURL(raw string) *ValidationResult {
	result := &ValidationResult{IsValid: true}
	if err := v.validate.Var(strings.TrimSpace(raw), "omitempty,url"); err != nil {
		result.AddError(New(ErrTypeValidation, "BACKGROUND_URL_INVALID", "background url is not a valid URL").
			WithUserMessage("Background image must be a full URL, or leave it empty for the default").
			WithContext("value", raw))
	}
	return result
}

func fieldError(fe validator.FieldError) *AppError {
	switch fe.Field() {
	case "Note":
		return EmptyNote()
	case "Date":
		return New(ErrTypeValidation, "DATE_INVALID", "date must be YYYY-MM-DD").
			WithUserMessage("Please pick a valid date").
			WithContext("value", fe.Value())
	case "Score":
		return New(ErrTypeValidation, "SCORE_INVALID", "score must be within 0-10 in steps of 0.5").
			WithUserMessage("Mood score must be between 0 and 10, in steps of 0.5").
			WithContext("value", fe.Value())
	default:
		return New(ErrTypeValidation, "FIELD_INVALID", "invalid field").
			WithContext("field", fe.Field()).
			WithContext("rule", fe.Tag())
	}
}
