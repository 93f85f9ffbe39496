package domain

import "errors"

// ErrorKind is the machine-readable error code exposed in API responses.
type ErrorKind string

const (
	ErrInvalidParams      ErrorKind = "invalid_params"
	ErrRateLimited        ErrorKind = "rate_limit"
	ErrGatewayFailure     ErrorKind = "sms_send_failed"
	ErrCodeExpired        ErrorKind = "code_expired"
	ErrCodeInvalid        ErrorKind = "code_invalid"
	ErrUserCreationFailed ErrorKind = "user_creation_failed"
	ErrUnauthorized       ErrorKind = "unauthorized"
	ErrForbidden          ErrorKind = "forbidden"
	ErrNotFound           ErrorKind = "not_found"
	ErrConflict           ErrorKind = "conflict"
	ErrServerError        ErrorKind = "server_error"
)

// Error pairs an ErrorKind with a short user-visible message. The wrapped
// cause is for logs only and never reaches the caller.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func E(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the ErrorKind from err; unrecognized errors are reported
// as ErrServerError so internals never leak to callers.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrServerError
}

// MessageOf returns the user-visible message for err, or a generic fallback
// for unrecognized errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "服务器错误，请稍后重试"
}
