package logging

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// OperationError records which pipeline step failed and for which upload.
// Operations are dotted names whose first segment is the stage, for example
// "storage.save", "repository.save_log", "cache.get.result" or
// "classifier.predict".
type OperationError struct {
	Operation string
	RequestID string
	Err       error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID == "" {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s (request_id=%s): %v", e.Operation, e.RequestID, e.Err)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Stage is the leading segment of Operation.
func (e *OperationError) Stage() string {
	stage, _, _ := strings.Cut(e.Operation, ".")
	return stage
}

// NewOperationError tags err with the failing operation. A nil err stays nil.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}

// ErrorFields returns log fields for err, adding the stage, operation and
// request id of the outermost OperationError in its chain.
func ErrorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		return fields
	}
	fields = append(fields, zap.String("stage", opErr.Stage()), zap.String("operation", opErr.Operation))
	if opErr.RequestID != "" {
		fields = append(fields, zap.String("request_id", opErr.RequestID))
	}
	return fields
}
