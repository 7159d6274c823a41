package query

import (
	"errors"
	"fmt"
)

var (
	// ErrArgument matches every construction error: malformed options,
	// unresolvable keys and incompatible operands.
	ErrArgument = errors.New("invalid query argument")

	// ErrRange matches slice requests outside the query's window.
	ErrRange = errors.New("query range error")
)

// ErrorCode categorizes query errors.
type ErrorCode string

const (
	// ErrCodeInvalidOption indicates an option value of the wrong type or
	// outside its allowed range.
	ErrCodeInvalidOption ErrorCode = "INVALID_OPTION"

	// ErrCodeUnknownProperty indicates a name that is not a property of the model.
	ErrCodeUnknownProperty ErrorCode = "UNKNOWN_PROPERTY"

	// ErrCodeUnknownRelationship indicates a name that is not a relationship of the model.
	ErrCodeUnknownRelationship ErrorCode = "UNKNOWN_RELATIONSHIP"

	// ErrCodeUnsupportedKey indicates a condition key of an unsupported type.
	ErrCodeUnsupportedKey ErrorCode = "UNSUPPORTED_KEY"

	// ErrCodeInvalidCondition indicates a condition value that cannot be
	// compared with its subject, including typecast failures.
	ErrCodeInvalidCondition ErrorCode = "INVALID_CONDITION"

	// ErrCodeIncompatibleQuery indicates operands over different
	// repositories or models.
	ErrCodeIncompatibleQuery ErrorCode = "INCOMPATIBLE_QUERY"

	// ErrCodeOutOfRange indicates a slice outside the query's window.
	ErrCodeOutOfRange ErrorCode = "OUT_OF_RANGE"
)

// Error is returned by query construction and composition.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Option names the offending option or condition key, when there is one.
	Option string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, e.g. a typecast failure.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Option != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Option, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Is matches ErrRange for out of range errors and ErrArgument for the rest.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrRange:
		return e.Code == ErrCodeOutOfRange
	case ErrArgument:
		return e.Code != ErrCodeOutOfRange
	}
	return false
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsArgumentError returns true if err is a construction error.
// Uses errors.Is to handle wrapped errors.
func IsArgumentError(err error) bool {
	return errors.Is(err, ErrArgument)
}

// IsRangeError returns true if err is a slice range error.
func IsRangeError(err error) bool {
	return errors.Is(err, ErrRange)
}

// ErrorCodeOf returns the code of the first *Error in err's chain.
func ErrorCodeOf(err error) (ErrorCode, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code, true
	}
	return "", false
}

func optionError(option, format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidOption, Option: option, Message: fmt.Sprintf(format, args...)}
}

func newError(code ErrorCode, option string, err error, format string, args ...any) *Error {
	return &Error{Code: code, Option: option, Message: fmt.Sprintf(format, args...), Err: err}
}
