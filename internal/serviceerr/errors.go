// Package serviceerr defines the coded errors the back-office surfaces to its
// HTTP layer, together with their HTTP status mapping.
package serviceerr

import "net/http"

type Code string

const (
	CodeInvalidRequest    Code = "invalid_request"
	CodeInvalidCSRFToken  Code = "invalid_csrf_token"
	CodeUnauthorized      Code = "unauthorized"
	CodeNotFound          Code = "not_found"
	CodeConflict          Code = "conflict"
	CodeNotConfigured     Code = "not_configured"
	CodeOperationInFlight Code = "operation_in_flight"
	CodeTooManyRequests   Code = "too_many_requests"
	CodeUnknown           Code = "unknown"
)

type Error struct {
	Err         Code
	Description string
}

var (
	ErrUnknown           = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrInvalidRequest    = &Error{Err: CodeInvalidRequest}
	ErrInvalidCSRFToken  = &Error{Err: CodeInvalidCSRFToken, Description: "invalid csrf token"}
	ErrUnauthorized      = &Error{Err: CodeUnauthorized, Description: "unauthorized"}
	ErrNotFound          = &Error{Err: CodeNotFound, Description: "not found"}
	ErrConflict          = &Error{Err: CodeConflict, Description: "already exists"}
	ErrAuthNotConfigured = &Error{Err: CodeNotConfigured, Description: "authentication is not configured"}
	ErrOperationInFlight = &Error{Err: CodeOperationInFlight, Description: "another authentication operation is in progress"}
	ErrTooManyRequests   = &Error{Err: CodeTooManyRequests, Description: "too many attempts, try again later"}
)

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

// HTTPStatus returns the HTTP status code a handler responds with for e.
func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeInvalidCSRFToken:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeOperationInFlight:
		return http.StatusConflict
	case CodeNotConfigured:
		return http.StatusServiceUnavailable
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
