package errors

import (
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/beaver/internal/logger"
)

var (
	// ErrNotFound is returned for an unknown habit, list or user document
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned when caller input violates a data model rule
	ErrValidation = errors.New("validation failed")
	// ErrImportFailed is returned when an import payload cannot be parsed
	ErrImportFailed = errors.New("import failed")
	// ErrStoragePersist marks a failed write of a user document
	ErrStoragePersist = errors.New("failed to persist habit list")
	// ErrExternalTransport marks a failed call to an external service
	ErrExternalTransport = errors.New("external transport failed")
	// ErrInvalidFrequency is returned for a malformed period string
	ErrInvalidFrequency = fmt.Errorf("%w: invalid frequency", ErrValidation)
)

// ValidationError carries the offending field alongside the reason.
// It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validation returns a field-level validation error.
func Validation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFound returns an error wrapping ErrNotFound.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// ImportFailed wraps a parser cause with ErrImportFailed.
func ImportFailed(cause error) error {
	return fmt.Errorf("%w: %v", ErrImportFailed, cause)
}

// Kind returns a short label for the error category, used as a log key.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrImportFailed):
		return "import_failed"
	case errors.Is(err, ErrStoragePersist):
		return "storage_persist_failed"
	case errors.Is(err, ErrExternalTransport):
		return "external_transport_failed"
	default:
		return "unexpected"
	}
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err, "kind", Kind(err))
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}
