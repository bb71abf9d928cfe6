// Package errcodes defines the error kinds the catalog surfaces to callers.
// Every error here is terminal for the attempted operation; nothing is
// retried or recovered silently inside the catalog.
package errcodes

import (
	"fmt"
	"strings"
)

type Error struct {
	Code    string
	Message string
	Entity  string
	Field   string
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.Code = err.Code
	te.Message = err.Message
	te.Entity = err.Entity
	te.Field = err.Field
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Code == err.Code &&
		te.Message == err.Message &&
		te.Entity == err.Entity &&
		te.Field == err.Field
}

// NotFound indicates the requested entity does not exist.
func NotFound(entity string) error {
	return &Error{
		Code:    "not_found",
		Message: entity + " not found.",
		Entity:  entity,
	}
}

// ValidationError indicates a field-level validation failure with a
// caller-presentable message.
func ValidationError(entity, field, msg string) error {
	return &Error{
		Code:    "validation_error",
		Message: msg,
		Entity:  entity,
		Field:   field,
	}
}

// Required indicates a required field was missing or blank.
func Required(entity, field string) error {
	return &Error{
		Code:    "validation_error",
		Message: fmt.Sprintf("%s %s is required.", entity, field),
		Entity:  entity,
		Field:   field,
	}
}

// Uniqueness indicates a duplicate value for a field that must be globally
// unique.
func Uniqueness(entity, field string) error {
	return &Error{
		Code:    "uniqueness_error",
		Message: fmt.Sprintf("%s with this %s already exists.", entity, field),
		Entity:  entity,
		Field:   field,
	}
}

// Constraint indicates the store could not apply the declared
// cascade/nullify rule for a deletion.
func Constraint(entity, msg string) error {
	return &Error{
		Code:    "constraint_error",
		Message: msg,
		Entity:  entity,
	}
}

// IsUniqueViolation reports whether a database error is a unique index
// violation, so the index can stay the authoritative guard against races
// that slip past the service-level pre-checks.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
