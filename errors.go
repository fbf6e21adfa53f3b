package authclient

import (
	"errors"
	"fmt"
)

// ErrRefreshFailed is returned when the refresh endpoint rejected the refresh
// cookie or answered with an invalid payload. It is terminal: the session has
// been cleared by the time callers see it.
var ErrRefreshFailed = errors.New("token refresh failed")

// ErrNoViableToken is returned for a 401 with no refresh path left.
var ErrNoViableToken = errors.New("authorization rejected")

// ErrRequestCancelled is returned when the pre-request hook cancelled an
// outbound request before any network I/O happened.
var ErrRequestCancelled = errors.New("request cancelled before dispatch")

// ErrorKind classifies a normalized API failure.
type ErrorKind int

const (
	// KindNetwork means no response reached the client at all.
	KindNetwork ErrorKind = iota + 1
	// KindAuthorization is a terminal 401: no viable refresh path, the
	// session has been cleared.
	KindAuthorization
	// KindRefresh means the refresh endpoint itself failed; also terminal.
	KindRefresh
	// KindProtocol is any other non-2xx response.
	KindProtocol
	// KindValidation means the response decoded but failed its expected
	// shape; an internal contract violation, surfaced generically.
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthorization:
		return "authorization"
	case KindRefresh:
		return "refresh"
	case KindProtocol:
		return "protocol"
	case KindValidation:
		return "validation"
	}
	return "unknown"
}

// Error is the single typed failure shape the transport layer emits. The
// service layer forwards it without re-interpreting status codes.
type Error struct {
	Kind        ErrorKind
	Status      int
	Message     string
	FieldErrors map[string]string
	cause       error
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind ErrorKind, status int, message string, cause error) *Error {
	return &Error{Kind: kind, Status: status, Message: message, cause: cause}
}

// AsAPIError unwraps err into the SDK's typed error, if it carries one.
func AsAPIError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNetworkError reports whether no response was received at all.
func IsNetworkError(err error) bool {
	return errorHasKind(err, KindNetwork)
}

// IsAuthorizationError reports a terminal 401 that forced a logout.
func IsAuthorizationError(err error) bool {
	return errorHasKind(err, KindAuthorization)
}

// IsRefreshFailure reports that the refresh protocol itself failed.
func IsRefreshFailure(err error) bool {
	return errorHasKind(err, KindRefresh) || errors.Is(err, ErrRefreshFailed)
}

// IsProtocolError reports a non-2xx response other than a terminal 401.
func IsProtocolError(err error) bool {
	return errorHasKind(err, KindProtocol)
}

// IsValidationError reports a response that failed shape validation.
func IsValidationError(err error) bool {
	return errorHasKind(err, KindValidation)
}

func errorHasKind(err error, kind ErrorKind) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == kind
}

// ServiceError is what Service operations raise: the transport message and
// per-field errors forwarded unchanged, or a generic localized message when
// the response failed validation.
type ServiceError struct {
	Message     string
	FieldErrors map[string]string
	cause       error
}

var _ error = (*ServiceError)(nil)

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.cause
}

func newServiceError(message string, fieldErrors map[string]string, cause error) *ServiceError {
	return &ServiceError{Message: message, FieldErrors: fieldErrors, cause: cause}
}
