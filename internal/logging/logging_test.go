package logging

import (
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestOperationErrorFormatsRequestID(t *testing.T) {
	base := errors.New("boom")
	err := NewOperationError("storage.save", "req-1", base)

	if got := err.Error(); got != "storage.save (request_id=req-1): boom" {
		t.Fatalf("unexpected message: %s", got)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to match base")
	}
}

func TestOperationErrorWithoutRequestID(t *testing.T) {
	err := NewOperationError("config.load", "", errors.New("missing"))
	if got := err.Error(); got != "config.load: missing" {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestNewOperationErrorNil(t *testing.T) {
	if err := NewOperationError("noop", "req", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}
}

func TestOperationErrorStage(t *testing.T) {
	cases := map[string]string{
		"cache.get.result":    "cache",
		"repository.save_log": "repository",
		"noop":                "noop",
	}
	for operation, want := range cases {
		opErr := &OperationError{Operation: operation}
		if got := opErr.Stage(); got != want {
			t.Errorf("expected stage %q for %q, got %q", want, operation, got)
		}
	}
}

func TestErrorFieldsIncludesOperationContext(t *testing.T) {
	err := fmt.Errorf("upload failed: %w", NewOperationError("storage.save", "req-9", errors.New("disk full")))

	got := map[string]string{}
	for _, f := range ErrorFields(err) {
		if f.Type == zapcore.StringType {
			got[f.Key] = f.String
		}
	}
	if got["stage"] != "storage" || got["operation"] != "storage.save" || got["request_id"] != "req-9" {
		t.Fatalf("unexpected fields: %v", got)
	}
}

func TestErrorFieldsPlainError(t *testing.T) {
	if fields := ErrorFields(errors.New("boom")); len(fields) != 1 {
		t.Fatalf("expected only the error field, got %d", len(fields))
	}
}
