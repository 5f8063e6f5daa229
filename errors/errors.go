package errors

import (
	"errors"
	"fmt"
)

// Common error types for categorization and handling

var (
	// ErrNotFound indicates a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid user or tool input
	ErrInvalidInput = errors.New("invalid input")

	// ErrServiceUnavailable indicates a required service is unavailable
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrDatabaseOperation indicates a database operation failed
	ErrDatabaseOperation = errors.New("database operation failed")

	// ErrPythonExecution indicates Python code execution failed
	ErrPythonExecution = errors.New("python execution failed")

	// ErrLLMCommunication indicates LLM communication failed
	ErrLLMCommunication = errors.New("llm communication failed")

	// ErrMalformedOutput indicates model output did not match the expected schema,
	// even after the repair attempt
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrNoData indicates no table has been loaded for the session
	ErrNoData = errors.New("no data loaded")

	// ErrUnknownTool indicates a plan or action referenced an undeclared tool
	ErrUnknownTool = errors.New("unknown tool")

	// ErrFileOperation indicates a file could not be read or written
	ErrFileOperation = errors.New("file operation failed")

	// ErrRunPanicked indicates a benchmark run panicked
	ErrRunPanicked = errors.New("run panicked")
)

// WrapError wraps an error with context message
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapErrorf wraps an error with formatted context message
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error that formats as the given text.
func New(text string) error { return errors.New(text) }

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsServiceUnavailable checks if error is a service unavailable error
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// IsMalformedOutput checks if error is an unrecoverable parse failure
func IsMalformedOutput(err error) bool {
	return errors.Is(err, ErrMalformedOutput)
}
