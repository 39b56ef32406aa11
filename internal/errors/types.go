// Package errors defines the fault taxonomy of the server: every condition a
// connection can hit is a ServerError with a Kind, and each Kind maps to the
// HTTP status (if any) that is reported to the client.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind represents a category of fault.
type Kind string

const (
	// KindProtocolDecode is an undecodable request. Reported as 500, not 400.
	KindProtocolDecode Kind = "protocol_decode"
	// KindUnsupportedMethod is any method other than GET or HEAD.
	KindUnsupportedMethod Kind = "unsupported_method"
	// KindPathRejected is a traversal attempt or a disallowed character.
	KindPathRejected Kind = "path_rejected"
	// KindResourceNotFound is a target that does not resolve to a regular file.
	KindResourceNotFound Kind = "resource_not_found"
	// KindWouldBlock means the socket was not ready; retried on the next event.
	KindWouldBlock Kind = "would_block"
	// KindPeerClosed is a zero byte read.
	KindPeerClosed Kind = "peer_closed"
	// KindUnhandled is any other fault while servicing one connection.
	KindUnhandled Kind = "unhandled"
	KindConfig    Kind = "config"
	KindPoller    Kind = "poller"
)

// ServerError is a structured error type with context.
type ServerError struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	parts = append(parts, e.Message)
	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ServerError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a ServerError of the same kind and code.
func (e *ServerError) Is(target error) bool {
	var t *ServerError
	if errors.As(target, &t) {
		return e.Kind == t.Kind && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *ServerError) WithContext(key string, value interface{}) *ServerError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// Common error codes.
const (
	ErrCodeInvalidEncoding   = "ERR_INVALID_ENCODING"
	ErrCodeMalformedRequest  = "ERR_MALFORMED_REQUEST"
	ErrCodeMethodNotAllowed  = "ERR_METHOD_NOT_ALLOWED"
	ErrCodePathTraversal     = "ERR_PATH_TRAVERSAL"
	ErrCodeInvalidPath       = "ERR_INVALID_PATH"
	ErrCodeOutsideRoot       = "ERR_OUTSIDE_ROOT"
	ErrCodeFileNotFound      = "ERR_FILE_NOT_FOUND"
	ErrCodeRequestTooLarge   = "ERR_REQUEST_TOO_LARGE"
	ErrCodeTemplateMissing   = "ERR_TEMPLATE_MISSING"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeInternalError     = "ERR_INTERNAL"
	ErrCodePollerFailed      = "ERR_POLLER_FAILED"
	ErrCodeSocketUnavailable = "ERR_SOCKET_UNAVAILABLE"
	ErrCodePeerClosed        = "ERR_PEER_CLOSED"
)

// NewProtocolDecodeError creates a decode fault.
func NewProtocolDecodeError(code, message string, cause error) *ServerError {
	return &ServerError{Kind: KindProtocolDecode, Code: code, Message: message, Cause: cause}
}

// NewUnsupportedMethodError creates a method fault for the given method token.
func NewUnsupportedMethodError(method string) *ServerError {
	return (&ServerError{
		Kind:    KindUnsupportedMethod,
		Code:    ErrCodeMethodNotAllowed,
		Message: "method not supported",
	}).WithContext("method", method)
}

// NewPathRejectedError creates a path fault.
func NewPathRejectedError(code, message string) *ServerError {
	return &ServerError{Kind: KindPathRejected, Code: code, Message: message}
}

// NewNotFoundError creates a missing resource fault.
func NewNotFoundError(path string) *ServerError {
	return (&ServerError{
		Kind:    KindResourceNotFound,
		Code:    ErrCodeFileNotFound,
		Message: "resource not found",
	}).WithContext("path", path)
}

// NewInternalError creates an unhandled fault.
func NewInternalError(code, message string, cause error) *ServerError {
	return &ServerError{Kind: KindUnhandled, Code: code, Message: message, Cause: cause}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, cause error) *ServerError {
	return &ServerError{Kind: KindConfig, Code: ErrCodeConfigInvalid, Message: message, Cause: cause}
}

// NewPollerError creates a multiplexer fault. It is fatal to one worker only.
func NewPollerError(message string, cause error) *ServerError {
	return &ServerError{Kind: KindPoller, Code: ErrCodePollerFailed, Message: message, Cause: cause}
}

// ErrWouldBlock reports a socket that is not ready yet.
var ErrWouldBlock = &ServerError{
	Kind:    KindWouldBlock,
	Code:    ErrCodeSocketUnavailable,
	Message: "resource temporarily unavailable",
}

// ErrPeerClosed reports a zero byte read.
var ErrPeerClosed = &ServerError{
	Kind:    KindPeerClosed,
	Code:    ErrCodePeerClosed,
	Message: "peer closed connection",
}

// KindOf returns the kind of err, or KindUnhandled for foreign errors.
func KindOf(err error) Kind {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Kind
	}

	return KindUnhandled
}

// StatusCode maps an error to the HTTP status reported to the client.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch KindOf(err) {
	case KindUnsupportedMethod:
		return http.StatusMethodNotAllowed
	case KindPathRejected:
		return http.StatusForbidden
	case KindResourceNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// IsWouldBlock checks if an error means "try again on the next readiness event".
func IsWouldBlock(err error) bool {
	return KindOf(err) == KindWouldBlock
}

// IsPeerClosed checks if an error is an orderly close by the peer.
func IsPeerClosed(err error) bool {
	return KindOf(err) == KindPeerClosed
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Debug(ctx context.Context, msg string, fields ...interface{})
}

// ErrorHandler provides centralized handling for connection-scoped faults.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a level matching its kind. Peer closes and would-block
// conditions are not failures.
func (h *ErrorHandler) Handle(ctx context.Context, err error, fields ...interface{}) {
	if err == nil || h.logger == nil {
		return
	}

	var se *ServerError
	if !errors.As(err, &se) {
		h.logger.Error(ctx, err, "Unhandled error occurred", fields...)
		return
	}

	fields = append(fields, "kind", string(se.Kind), "code", se.Code)
	switch se.Kind {
	case KindWouldBlock, KindPeerClosed:
		h.logger.Debug(ctx, se.Message, fields...)
	case KindPathRejected, KindUnsupportedMethod, KindResourceNotFound:
		h.logger.Warn(ctx, err, "Request rejected", fields...)
	default:
		h.logger.Error(ctx, err, "Error occurred", fields...)
	}
}
