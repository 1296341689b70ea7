// Package errors defines error types and utilities for ColumnTheory
package errors

import (
	"errors"
	"fmt"
)

// Configuration errors. Each of the specific configuration errors also
// matches ErrConfiguration through errors.Is.
var (
	// ErrConfiguration is the umbrella for mistakes in entity or association setup
	ErrConfiguration = errors.New("configuration error")

	// ErrRelationNotFound is returned when an include names no registered association
	ErrRelationNotFound = &configError{msg: "relation not found"}

	// ErrMissingJunction is returned when a many-to-many association lacks its junction entity or other key
	ErrMissingJunction = &configError{msg: "many-to-many association missing junction configuration"}

	// ErrAliasConflict is returned when an alias is registered twice on the same entity
	ErrAliasConflict = &configError{msg: "association alias already registered"}

	// ErrInvalidOperator is returned when a filter uses an operator outside the supported set
	ErrInvalidOperator = &configError{msg: "invalid filter operator"}

	// ErrUnknownType is returned when an attribute declares an unsupported logical type
	ErrUnknownType = &configError{msg: "unknown logical type"}

	// ErrUnknownAttribute is returned when a query names an attribute the entity does not declare
	ErrUnknownAttribute = &configError{msg: "unknown attribute"}

	// ErrInvalidIdentifier is returned when an entity, attribute or alias name cannot be used as an identifier
	ErrInvalidIdentifier = &configError{msg: "invalid identifier"}
)

var (
	// ErrInvalidModel is returned when an entity definition is malformed
	ErrInvalidModel = errors.New("invalid model")

	// ErrEntityNotFound is returned when an entity name is not registered
	ErrEntityNotFound = errors.New("entity not found")

	// ErrMissingPrimaryKey is returned when an operation needs a primary key value that was not supplied
	ErrMissingPrimaryKey = errors.New("missing primary key")

	// ErrValidation is the umbrella for record validation failures
	ErrValidation = errors.New("validation failed")

	// ErrRequiredAttribute is returned when a non-nullable attribute has neither a value nor a default
	ErrRequiredAttribute = errors.New("required attribute missing")

	// ErrReadOnly is returned when a write is attempted while the operation is disabled by policy
	ErrReadOnly = errors.New("write rejected: read-only mode")

	// ErrStreamingBuffer is returned when DML touches rows still in the warehouse write buffer
	ErrStreamingBuffer = errors.New("rows are still in the streaming buffer")

	// ErrEncryptionNotConfigured is returned when an entity has Encrypted attributes but no KMS key is configured
	ErrEncryptionNotConfigured = errors.New("encryption not configured")

	// ErrInvalidEncryptedEnvelope is returned when a stored value is not a valid encryption envelope
	ErrInvalidEncryptedEnvelope = errors.New("invalid encrypted envelope")

	// ErrEncryptedFieldNotQueryable is returned when an Encrypted attribute is used in a filter
	ErrEncryptedFieldNotQueryable = errors.New("encrypted fields are not queryable/filterable")
)

type configError struct {
	msg string
}

func (e *configError) Error() string { return e.msg }

func (e *configError) Is(target error) bool {
	return target == ErrConfiguration
}

// OpError represents a detailed error with context
type OpError struct {
	Err    error
	Op     string
	Entity string
}

// Error implements the error interface
func (e *OpError) Error() string {
	// Values never appear here; only the operation and cause.
	if e.Entity == "" {
		return fmt.Sprintf("columntheory: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("columntheory: %s on %s failed: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error
func (e *OpError) Unwrap() error {
	return e.Err
}

// NewError creates a new OpError
func NewError(op, entity string, err error) *OpError {
	return &OpError{
		Op:     op,
		Entity: entity,
		Err:    err,
	}
}

// ValidationError describes why a record was rejected before reaching the warehouse.
type ValidationError struct {
	Err       error
	Entity    string
	Attribute string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("columntheory: validation failed for %s.%s", e.Entity, e.Attribute)
	}
	return fmt.Sprintf("columntheory: validation failed for %s.%s: %s", e.Entity, e.Attribute, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StreamingBufferError is a transient failure: an UPDATE or DELETE hit rows
// that were streamed recently and are not yet eligible for DML.
type StreamingBufferError struct {
	Err   error
	Op    string
	Table string
}

func (e *StreamingBufferError) Error() string {
	return fmt.Sprintf("columntheory: %s on %s touched rows still in the streaming buffer; wait for the buffer to flush (typically up to 90 minutes) and retry", e.Op, e.Table)
}

func (e *StreamingBufferError) Unwrap() error {
	return e.Err
}

func (e *StreamingBufferError) Is(target error) bool {
	return target == ErrStreamingBuffer
}

// Retryable reports that the operation may succeed if repeated later.
func (e *StreamingBufferError) Retryable() bool {
	return true
}

// EncryptedFieldError wraps failures related to Encrypted attributes.
// The message never includes plaintext.
type EncryptedFieldError struct {
	Err       error
	Field     string
	Operation string
}

func (e *EncryptedFieldError) Error() string {
	if e == nil {
		return "columntheory: encrypted field error"
	}

	op := e.Operation
	if op == "" {
		op = "operation"
	}

	field := e.Field
	if field == "" {
		field = "field"
	}

	if e.Err == nil {
		return fmt.Sprintf("columntheory: encrypted %s failed for %s", op, field)
	}
	return fmt.Sprintf("columntheory: encrypted %s failed for %s: %v", op, field, e.Err)
}

func (e *EncryptedFieldError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsConfiguration reports whether err is a configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsReadOnly reports whether err was caused by the read-only policy
func IsReadOnly(err error) bool {
	return errors.Is(err, ErrReadOnly)
}

// IsRetryable reports whether err is transient and may succeed when retried.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
