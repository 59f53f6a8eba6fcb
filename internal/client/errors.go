package client

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRelationship is returned when a query includes a
	// relationship its doctype does not declare.
	ErrUnknownRelationship = errors.New("unknown relationship")

	// ErrInvalidSavePlan is returned for documents no save plan can be
	// derived from, such as a revision without an id.
	ErrInvalidSavePlan = errors.New("invalid save plan")

	// ErrMaxPagesExceeded is returned by QueryAll when the backend keeps
	// announcing more pages past the WithMaxPages bound.
	ErrMaxPagesExceeded = errors.New("max pages exceeded")
)

// Error is a configuration error: the call could not be attempted as
// given. It is never recorded in the store.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes configuration errors.
type ErrorCode string

const (
	// ErrCodeConfigInvalid indicates invalid client options or links.
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// ErrCodeQueryInvalid indicates a malformed query or mutation.
	ErrCodeQueryInvalid ErrorCode = "QUERY_INVALID"

	// ErrCodeSavePlanInvalid indicates a document that cannot be saved.
	ErrCodeSavePlanInvalid ErrorCode = "SAVE_PLAN_INVALID"

	// ErrCodePluginInvalid indicates a rejected plugin registration.
	ErrCodePluginInvalid ErrorCode = "PLUGIN_INVALID"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

func configError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}
