package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/standardbeagle/shadersense/internal/types"
)

// Error types for the shader intelligence engine
type ErrorType string

const (
	// Preprocessing errors
	ErrorTypeUnresolvedInclude       ErrorType = "unresolved_include"
	ErrorTypeCyclicInclude           ErrorType = "cyclic_include"
	ErrorTypeUnterminatedConditional ErrorType = "unterminated_conditional"

	// Extraction errors
	ErrorTypePartialParse ErrorType = "partial_parse"

	// File errors
	ErrorTypeFileNotFound ErrorType = "file_not_found"
	ErrorTypeFileTooLarge ErrorType = "file_too_large"
	ErrorTypePermission   ErrorType = "permission"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Validator backend errors
	ErrorTypeValidator ErrorType = "validator"
)

var (
	// ErrStaleQuery is returned internally when a snapshot was invalidated
	// while a query was running. Callers retry; it never reaches users.
	ErrStaleQuery = errors.New("stale query: snapshot invalidated")

	// ErrUnknownFile signals a query for a file that was never registered.
	ErrUnknownFile = errors.New("unknown file")
)

// UnresolvedIncludeError is an include directive whose target was not found
type UnresolvedIncludeError struct {
	File      types.FileID
	FilePath  string
	Directive string
	Span      types.Span
	Searched  []string
	Timestamp time.Time
}

// NewUnresolvedIncludeError creates a new unresolved include error
func NewUnresolvedIncludeError(file types.FileID, path, directive string, span types.Span, searched []string) *UnresolvedIncludeError {
	return &UnresolvedIncludeError{
		File:      file,
		FilePath:  path,
		Directive: directive,
		Span:      span,
		Searched:  searched,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *UnresolvedIncludeError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("cannot resolve include %q", e.Directive)
	}
	return fmt.Sprintf("cannot resolve include %q (searched %s)", e.Directive, strings.Join(e.Searched, ", "))
}

// CyclicIncludeError is an include edge that re-enters a file already on the traversal stack
type CyclicIncludeError struct {
	File      types.FileID
	FilePath  string
	Target    string
	Stack     []string
	Timestamp time.Time
}

// NewCyclicIncludeError creates a new cyclic include error
func NewCyclicIncludeError(file types.FileID, path, target string, stack []string) *CyclicIncludeError {
	return &CyclicIncludeError{
		File:      file,
		FilePath:  path,
		Target:    target,
		Stack:     stack,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *CyclicIncludeError) Error() string {
	chain := append(append([]string(nil), e.Stack...), e.Target)
	return fmt.Sprintf("cyclic include of %s: %s", e.Target, strings.Join(chain, " -> "))
}

// UnterminatedConditionalError is a conditional block left open at end of file
type UnterminatedConditionalError struct {
	File      types.FileID
	FilePath  string
	Directive string
	Line      int
	Timestamp time.Time
}

// NewUnterminatedConditionalError creates a new unterminated conditional error
func NewUnterminatedConditionalError(file types.FileID, path, directive string, line int) *UnterminatedConditionalError {
	return &UnterminatedConditionalError{
		File:      file,
		FilePath:  path,
		Directive: directive,
		Line:      line,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *UnterminatedConditionalError) Error() string {
	return fmt.Sprintf("unterminated #%s opened at line %d of %s", e.Directive, e.Line+1, e.FilePath)
}

// PartialParseError marks a best-effort symbol extraction
type PartialParseError struct {
	File       types.FileID
	FilePath   string
	Language   types.LanguageKind
	Recovered  int
	Underlying error
	Timestamp  time.Time
}

// NewPartialParseError creates a new partial parse error
func NewPartialParseError(file types.FileID, path string, lang types.LanguageKind, recovered int, err error) *PartialParseError {
	return &PartialParseError{
		File:       file,
		FilePath:   path,
		Language:   lang,
		Recovered:  recovered,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *PartialParseError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("partial %s parse of %s (%d symbols recovered): %v", e.Language, e.FilePath, e.Recovered, e.Underlying)
	}
	return fmt.Sprintf("partial %s parse of %s (%d symbols recovered)", e.Language, e.FilePath, e.Recovered)
}

// Unwrap returns the underlying error
func (e *PartialParseError) Unwrap() error {
	return e.Underlying
}

// UnknownFileError is returned to the query facade for unregistered files
type UnknownFileError struct {
	Path string
}

// NewUnknownFileError creates a new unknown file error
func NewUnknownFileError(path string) *UnknownFileError {
	return &UnknownFileError{Path: path}
}

// Error implements the error interface
func (e *UnknownFileError) Error() string {
	return fmt.Sprintf("unknown file: %s", e.Path)
}

// Unwrap lets errors.Is match ErrUnknownFile
func (e *UnknownFileError) Unwrap() error {
	return ErrUnknownFile
}

// FileError represents a file-related error
type FileError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewFileError creates a new file error
func NewFileError(op, path string, err error) *FileError {
	errorType := ErrorTypeFileNotFound
	if isPermissionError(err) {
		errorType = ErrorTypePermission
	}

	return &FileError{
		Type:       errorType,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// isPermissionError checks if the error is a permission error
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "permission denied") || strings.Contains(errStr, "access denied")
}

// Error implements the error interface
func (e *FileError) Error() string {
	return fmt.Sprintf("file %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

// Unwrap returns the underlying error
func (e *FileError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// ValidatorError wraps a failure to run an external compiler backend
type ValidatorError struct {
	Backend    string
	Underlying error
	Timestamp  time.Time
}

// NewValidatorError creates a new validator error
func NewValidatorError(backend string, err error) *ValidatorError {
	return &ValidatorError{Backend: backend, Underlying: err, Timestamp: time.Now()}
}

// Error implements the error interface
func (e *ValidatorError) Error() string {
	return fmt.Sprintf("validator %s failed: %v", e.Backend, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ValidatorError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error
func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// ErrOrNil returns nil when no errors were collected
func (e *MultiError) ErrOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// Code maps a preprocessing error to its diagnostic code.
func Code(err error) types.DiagnosticCode {
	var (
		unresolved *UnresolvedIncludeError
		cyclic     *CyclicIncludeError
		unterm     *UnterminatedConditionalError
		partial    *PartialParseError
	)
	switch {
	case errors.As(err, &unresolved):
		return types.CodeUnresolvedInclude
	case errors.As(err, &cyclic):
		return types.CodeCyclicInclude
	case errors.As(err, &unterm):
		return types.CodeUnterminatedConditional
	case errors.As(err, &partial):
		return types.CodePartialParse
	}
	return types.CodeValidator
}
