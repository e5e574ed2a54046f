package identity

import (
	"errors"
	"net/http"
)

type ErrorKind string

const (
	ErrorKindInvalidCredentials ErrorKind = "invalid_credentials"
	ErrorKindEmailNotConfirmed  ErrorKind = "email_not_confirmed"
	ErrorKindUserAlreadyExists  ErrorKind = "user_already_exists"
	ErrorKindWeakPassword       ErrorKind = "weak_password"
	ErrorKindRateLimited        ErrorKind = "rate_limited"
	ErrorKindSessionMissing     ErrorKind = "session_missing"
	ErrorKindNetwork            ErrorKind = "network"
	ErrorKindUnexpectedResponse ErrorKind = "unexpected_response"
	ErrorKindStorage            ErrorKind = "storage"
	ErrorKindUnknown            ErrorKind = "unknown"
)

// Error is a failure reported by (or while talking to) the identity backend.
// Message is the human-readable text shown to the user.
type Error struct {
	Kind    ErrorKind
	Message string
	// Status is the HTTP status returned by the backend, zero if none.
	Status int
	Err    error
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var identityErr *Error
	if !errors.As(err, &identityErr) {
		return false
	}

	return identityErr.Kind == kind
}

// KindFromCode maps a backend error code to an ErrorKind, falling back to the
// HTTP status when the code is not recognised.
func KindFromCode(code string, status int) ErrorKind {
	switch code {
	case "invalid_credentials", "invalid_grant":
		return ErrorKindInvalidCredentials
	case "email_not_confirmed":
		return ErrorKindEmailNotConfirmed
	case "user_already_exists", "email_exists":
		return ErrorKindUserAlreadyExists
	case "weak_password":
		return ErrorKindWeakPassword
	case "over_request_rate_limit", "over_email_send_rate_limit":
		return ErrorKindRateLimited
	case "session_not_found", "refresh_token_not_found", "bad_code_verifier", "flow_state_not_found", "flow_state_expired":
		return ErrorKindSessionMissing
	}

	switch {
	case status == http.StatusTooManyRequests:
		return ErrorKindRateLimited
	case status == http.StatusUnauthorized:
		return ErrorKindInvalidCredentials
	case status == http.StatusUnprocessableEntity:
		return ErrorKindUserAlreadyExists
	default:
		return ErrorKindUnknown
	}
}
