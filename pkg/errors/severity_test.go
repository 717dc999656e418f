package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestBidError_Chain(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("unexpected end of JSON input")
	err := fmt.Errorf("load requirements: %w", NewParseError("rfp.json", cause))

	if got := Code(err); got != ErrCodeParseFailed {
		t.Fatalf("Code want=%s got=%s", ErrCodeParseFailed, got)
	}
	if !stderrors.Is(err, cause) {
		t.Fatalf("cause should be reachable through Unwrap")
	}
	msg := err.Error()
	if !strings.Contains(msg, "[error] PARSE_FAILED") || !strings.Contains(msg, "source: rfp.json") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestCode_PlainError(t *testing.T) {
	t.Parallel()

	if got := Code(stderrors.New("boom")); got != "" {
		t.Fatalf("plain error should have no code, got %q", got)
	}
}

func TestSeverity_MarshalText(t *testing.T) {
	t.Parallel()

	b, _ := SeverityWarning.MarshalText()
	if string(b) != "warning" {
		t.Fatalf("got %s", b)
	}
	if Severity(42).String() != "unknown" {
		t.Fatalf("unknown severity")
	}
}
