package apperrors

import "errors"

// Kind buckets every error the command router can surface. Lower layers tag
// errors with a kind; the router is the only place kinds become wire
// responses.
type Kind string

const (
	KindConfig     Kind = "config"
	KindTransport  Kind = "transport"
	KindProtocol   Kind = "protocol"
	KindLookup     Kind = "lookup"
	KindInvariant  Kind = "invariant"
	KindResource   Kind = "resource"
	KindValidation Kind = "validation"
	KindInternal   Kind = "internal"
)

// ErrorBody is the serialized error payload inside a command response.
type ErrorBody struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// AppError carries a kind, a human-readable message and the HTTP status the
// router maps it to.
type AppError struct {
	Kind       Kind
	Message    string
	StatusCode int
	Details    map[string]any
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) Body() ErrorBody {
	return ErrorBody{Kind: e.Kind, Message: e.Message, Details: e.Details}
}

func newError(kind Kind, message string, status int, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, StatusCode: status, Err: cause}
}

// NewConfigError covers missing required fields, malformed files and unknown
// backend or provider keys. Fatal at startup, 400 on admin writes.
func NewConfigError(message string, cause error) *AppError {
	return newError(KindConfig, message, 400, cause)
}

// NewTransportError covers connection refused, timeouts and closed sockets.
func NewTransportError(message string, cause error) *AppError {
	return newError(KindTransport, message, 502, cause)
}

// NewProtocolError covers malformed vendor payloads.
func NewProtocolError(message string, cause error) *AppError {
	return newError(KindProtocol, message, 502, cause)
}

// NewLookupMiss marks an unknown zone, favorite or media id. Read paths
// normally convert this into an empty response before it reaches the wire.
func NewLookupMiss(resource, id string) *AppError {
	message := resource + " not found"
	e := newError(KindLookup, message, 404, nil)
	e.Details = map[string]any{"resource": resource}
	if id != "" {
		e.Message = message + ": " + id
		e.Details["id"] = id
	}
	return e
}

// NewInvariantError marks detected internal inconsistency, e.g. a favorites
// slot discontinuity. The triggering operation is rejected.
func NewInvariantError(message string, cause error) *AppError {
	return newError(KindInvariant, message, 500, cause)
}

// NewResourceError covers disk-full and permission failures.
func NewResourceError(message string, cause error) *AppError {
	return newError(KindResource, message, 500, cause)
}

// NewValidationError covers rejected command arguments.
func NewValidationError(message string) *AppError {
	return newError(KindValidation, message, 400, nil)
}

// NewInternalError is the catch-all.
func NewInternalError(message string, cause error) *AppError {
	return newError(KindInternal, message, 500, cause)
}

// KindOf extracts the kind from any error chain; untagged errors report
// KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Ensure converts an arbitrary error into an AppError, preserving tagged
// errors found anywhere in the chain.
func Ensure(err error) *AppError {
	if err == nil {
		return NewInternalError("unknown error", nil)
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Kind: KindInternal, Message: err.Error(), StatusCode: 500, Err: err}
}

// IsLookupMiss reports whether the chain carries a lookup miss, letting read
// paths collapse it to an empty result.
func IsLookupMiss(err error) bool {
	return KindOf(err) == KindLookup
}
