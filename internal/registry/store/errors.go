package store

import (
	"errors"
	"fmt"
)

// InvalidArgumentError indicates a caller error such as a missing owner
// identity or a disallowed column. It is never retried.
type InvalidArgumentError struct {
	Field   string
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Message)
}

// NotFoundError indicates the resource was not found (or is not visible to the caller).
// Mutations that find nothing return false or nil instead of this error.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConflictError indicates a uniqueness/conflict violation.
type ConflictError struct {
	Message string
	Code    string
	Details map[string]interface{}
}

func (e *ConflictError) Error() string {
	return e.Message
}

// UnavailableError indicates the store is disabled or cannot be reached.
type UnavailableError struct {
	Cause error
}

func (e *UnavailableError) Error() string {
	if e.Cause == nil {
		return "store unavailable"
	}
	return "store unavailable: " + e.Cause.Error()
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

// Conflict codes.
const (
	CodeDuplicateSeq      = "DUPLICATE_SEQ"
	CodeDuplicateToolCall = "DUPLICATE_TOOL_CALL"
	CodeDuplicateKey      = "DUPLICATE_KEY"
	CodeStreamInProgress  = "STREAM_IN_PROGRESS"
)

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsInvalidArgument reports whether err is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target)
}

// IsUnavailable reports whether err is an UnavailableError.
func IsUnavailable(err error) bool {
	var target *UnavailableError
	return errors.As(err, &target)
}
