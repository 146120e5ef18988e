package models

import "errors"

// Stable machine-readable error codes surfaced in the response envelope
const (
	CodeValidation   = "VALIDATION"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeForbidden    = "FORBIDDEN"
	CodeUnauthorized = "UNAUTHORIZED"
	CodePayoutFailed = "PAYOUT_FAILED"
	CodeServerError  = "SERVER_ERROR"
)

// Error is a coded error the API layer can map onto the response envelope
// and callers (e.g. the batch orchestrator) can branch on.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// NewError returns a coded error
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// ValidationError ...
func ValidationError(message string) *Error {
	return NewError(CodeValidation, message)
}

// NotFoundError ...
func NotFoundError(message string) *Error {
	return NewError(CodeNotFound, message)
}

// ConflictError flags an illegal state transition, a lost CAS race or a
// duplicate dispute.
func ConflictError(message string) *Error {
	return NewError(CodeConflict, message)
}

// PayoutError flags an executor-level payout failure
func PayoutError(message string) *Error {
	return NewError(CodePayoutFailed, message)
}

// ErrCode extracts the code from an error, defaulting to SERVER_ERROR for
// anything that isn't a coded error.
func ErrCode(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeServerError
}

// IsConflict reports whether err carries the CONFLICT code
func IsConflict(err error) bool {
	return ErrCode(err) == CodeConflict
}

// IsNotFound reports whether err carries the NOT_FOUND code
func IsNotFound(err error) bool {
	return ErrCode(err) == CodeNotFound
}
