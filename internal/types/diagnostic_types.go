package types

import "strings"

// Severity follows the LSP numbering, so lower is more severe
type Severity int

const (
	SeverityError       Severity = 1
	SeverityWarning     Severity = 2
	SeverityInformation Severity = 3
	SeverityHint        Severity = 4
)

// String returns a string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "info"
	case SeverityHint:
		return "hint"
	}
	return "unknown"
}

// ParseSeverity accepts the names used by configuration files and compiler output.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "fatal":
		return SeverityError, true
	case "warning", "warn":
		return SeverityWarning, true
	case "info", "information", "note":
		return SeverityInformation, true
	case "hint":
		return SeverityHint, true
	}
	return 0, false
}

// IsRequired reports whether a diagnostic of this severity passes the minimum filter.
func (s Severity) IsRequired(min Severity) bool {
	return s <= min
}

// DiagnosticCode classifies where a diagnostic came from
type DiagnosticCode string

const (
	CodeUnresolvedInclude       DiagnosticCode = "unresolved-include"
	CodeCyclicInclude           DiagnosticCode = "cyclic-include"
	CodeUnterminatedConditional DiagnosticCode = "unterminated-conditional"
	CodeDirective               DiagnosticCode = "invalid-directive"
	CodeIncludeDepth            DiagnosticCode = "include-depth"
	CodePartialParse            DiagnosticCode = "partial-parse"
	CodeValidator               DiagnosticCode = "validator"
)

// Diagnostic is a message attached to a range in a source file.
type Diagnostic struct {
	File     FileID         `json:"-"`
	Path     string         `json:"path"`
	Span     Span           `json:"-"`
	Range    Range          `json:"range"`
	Severity Severity       `json:"severity"`
	Code     DiagnosticCode `json:"code"`
	Message  string         `json:"message"`
	Source   string         `json:"source,omitempty"`
}
