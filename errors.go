package ormion

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure cases
var (
	// ErrQueryFailed is the kind of every statement execution failure.
	ErrQueryFailed = errors.New("ormion: query failed")

	// ErrUnsupportedOperation is returned when a query builder lacks a
	// requested capability or an operation does not apply to a record.
	ErrUnsupportedOperation = errors.New("ormion: unsupported operation")

	// ErrFrozen is returned when a frozen record or collection is mutated
	ErrFrozen = errors.New("ormion: frozen")

	// ErrNotFound is returned for unknown columns, forms and relations
	ErrNotFound = errors.New("ormion: not found")

	// ErrInvalidConfig is returned when a table or relation definition is invalid
	ErrInvalidConfig = errors.New("ormion: invalid config")

	// ErrInvalidModel is returned when the entity type is not a pointer to a struct
	ErrInvalidModel = errors.New("ormion: invalid model")

	// ErrNilPointer is returned when a nil entity is passed
	ErrNilPointer = errors.New("ormion: nil pointer")

	// ErrDuplicateKey is returned for unique constraint violations
	ErrDuplicateKey = errors.New("ormion: duplicate key violation")

	// ErrForeignKey is returned for foreign key constraint violations
	ErrForeignKey = errors.New("ormion: foreign key constraint violation")
)

// QueryError describes a failed statement. It keeps the driver's message and
// code but not the driver error itself.
type QueryError struct {
	Operation string // SELECT, COUNT, INSERT, UPDATE, DELETE, BEGIN, COMMIT
	Query     string
	Args      []any
	Message   string // driver message
	Code      string // driver specific code, empty when unknown
	kind      error
}

func (e *QueryError) Error() string {
	var sb strings.Builder
	sb.WriteString("ormion: ")
	sb.WriteString(e.Operation)
	sb.WriteString(" failed: ")
	sb.WriteString(e.Message)
	if e.Code != "" {
		sb.WriteString(" (code ")
		sb.WriteString(e.Code)
		sb.WriteString(")")
	}
	if e.Query != "" {
		sb.WriteString("\nQuery: ")
		sb.WriteString(e.Query)
		sb.WriteString("\nArgs: ")
		sb.WriteString(formatArgs(e.Args))
	}
	return sb.String()
}

// Unwrap exposes the error kinds, never the driver error.
func (e *QueryError) Unwrap() []error {
	if e.kind != nil {
		return []error{ErrQueryFailed, e.kind}
	}
	return []error{ErrQueryFailed}
}

// wrapQueryError translates a driver error into a *QueryError.
func wrapQueryError(operation, query string, args []any, err error) error {
	if err == nil {
		return nil
	}

	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}

	out := &QueryError{
		Operation: operation,
		Query:     query,
		Args:      args,
		Message:   err.Error(),
		Code:      driverErrorCode(err),
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out.kind = err
	case isDuplicateKey(err):
		out.kind = ErrDuplicateKey
	case isForeignKeyViolation(err):
		out.kind = ErrForeignKey
	}

	return out
}

func isDuplicateKey(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "unique constraint")
}

func isForeignKeyViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "foreign key")
}

// IsNotFound checks if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsQueryFailed checks if the error came from statement execution
func IsQueryFailed(err error) bool {
	return errors.Is(err, ErrQueryFailed)
}

// IsConstraintViolation checks if the error is a constraint violation
func IsConstraintViolation(err error) bool {
	return errors.Is(err, ErrDuplicateKey) || errors.Is(err, ErrForeignKey)
}

// formatArgs formats query arguments for error messages
func formatArgs(args []any) string {
	if len(args) == 0 {
		return "[]"
	}

	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprintf("%v", arg)
	}

	// Limit output length
	result := "[" + strings.Join(parts, ", ") + "]"
	if len(result) > 200 {
		return result[:197] + "...]"
	}
	return result
}
