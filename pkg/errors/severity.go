// Package errors provides severity-aware error types.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BidError is a structured error with context.
type BidError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Source      string   `json:"source,omitempty"`
	Recoverable bool     `json:"recoverable"`
	Err         error    `json:"-"`
}

func (e *BidError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
	if e.Source != "" {
		msg += fmt.Sprintf(" (source: %s)", e.Source)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BidError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeParseFailed       = "PARSE_FAILED"
	ErrCodeMalformedResponse = "MALFORMED_RESPONSE"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeEmptyDocument     = "EMPTY_DOCUMENT"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeSessionNotFound   = "SESSION_NOT_FOUND"
	ErrCodeAnalysisNotFound  = "ANALYSIS_NOT_FOUND"
	ErrCodeMissingInput      = "MISSING_INPUT"
	ErrCodeAIUnavailable     = "AI_UNAVAILABLE"
)

// Code returns the code of the first BidError in err's chain, or "".
func Code(err error) string {
	var be *BidError
	if stderrors.As(err, &be) {
		return be.Code
	}
	return ""
}

// NewParseError creates an error for a document that could not be decoded.
func NewParseError(source string, err error) *BidError {
	return &BidError{
		Code:        ErrCodeParseFailed,
		Message:     "Failed to parse document",
		Severity:    SeverityError,
		Source:      source,
		Recoverable: true,
		Err:         err,
	}
}

// NewMalformedResponseError creates an error for AI output that is not the
// expected JSON shape.
func NewMalformedResponseError(source string, err error) *BidError {
	return &BidError{
		Code:        ErrCodeMalformedResponse,
		Message:     "AI response could not be parsed",
		Severity:    SeverityWarning,
		Source:      source,
		Recoverable: true,
		Err:         err,
	}
}

// NewUnsupportedFormatError creates an error for an unknown file type.
func NewUnsupportedFormatError(source string) *BidError {
	return &BidError{
		Code:        ErrCodeUnsupportedFormat,
		Message:     "Unsupported document format",
		Severity:    SeverityError,
		Source:      source,
		Recoverable: true,
	}
}

// NewEmptyDocumentError creates an error for a document without line items.
func NewEmptyDocumentError(source string) *BidError {
	return &BidError{
		Code:        ErrCodeEmptyDocument,
		Message:     "No line items found",
		Severity:    SeverityWarning,
		Source:      source,
		Recoverable: true,
	}
}

// NewValidationError creates an error for input that failed validation.
func NewValidationError(source string, err error) *BidError {
	return &BidError{
		Code:        ErrCodeValidationFailed,
		Message:     "Validation failed",
		Severity:    SeverityError,
		Source:      source,
		Recoverable: true,
		Err:         err,
	}
}

// NewSessionNotFoundError creates an error for an unknown session.
func NewSessionNotFoundError(id string) *BidError {
	return &BidError{
		Code:        ErrCodeSessionNotFound,
		Message:     fmt.Sprintf("Session not found: %s", id),
		Severity:    SeverityWarning,
		Recoverable: true,
	}
}

// NewAnalysisNotFoundError creates an error for an unknown analysis ID.
func NewAnalysisNotFoundError(id string) *BidError {
	return &BidError{
		Code:        ErrCodeAnalysisNotFound,
		Message:     fmt.Sprintf("Analysis not found: %s", id),
		Severity:    SeverityWarning,
		Recoverable: true,
	}
}

// NewMissingInputError creates an error for a workflow step run before its
// inputs were provided.
func NewMissingInputError(what string) *BidError {
	return &BidError{
		Code:        ErrCodeMissingInput,
		Message:     fmt.Sprintf("Please upload %s first", what),
		Severity:    SeverityWarning,
		Recoverable: true,
	}
}

// NewAIUnavailableError creates an error for a failed AI call.
func NewAIUnavailableError(err error) *BidError {
	return &BidError{
		Code:        ErrCodeAIUnavailable,
		Message:     "AI analysis service unavailable",
		Severity:    SeverityError,
		Source:      "llm",
		Recoverable: true,
		Err:         err,
	}
}
