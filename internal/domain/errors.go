package domain

import (
	"errors"
	"fmt"
	"time"
)

// DatasetError represents a failure tied to a dataset file or external resource
type DatasetError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Path      string    `json:"path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Err       error     `json:"-"`
}

// Error implements the error interface. The cause, if any, follows the message.
func (e *DatasetError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause
func (e *DatasetError) Unwrap() error {
	return e.Err
}

// Error codes for different failure scenarios
const (
	ErrMissingFile    = "MISSING_FILE"
	ErrInvalidRecord  = "INVALID_RECORD"
	ErrInvalidConfig  = "INVALID_CONFIG"
	ErrDownloadFailed = "DOWNLOAD_FAILED"
	ErrStorage        = "STORAGE_ERROR"
	ErrRender         = "RENDER_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewDatasetError creates a new DatasetError with timestamp
func NewDatasetError(code, message, path string, cause error) *DatasetError {
	return &DatasetError{
		Code:      code,
		Message:   message,
		Path:      path,
		Timestamp: time.Now().UTC(),
		Err:       cause,
	}
}

// NewMissingFileError reports a required input file that does not exist
func NewMissingFileError(what, path string) *DatasetError {
	return NewDatasetError(ErrMissingFile, what+" not found", path, nil)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// IsMissingFile reports whether err carries a MISSING_FILE DatasetError
func IsMissingFile(err error) bool {
	var de *DatasetError
	return errors.As(err, &de) && de.Code == ErrMissingFile
}
