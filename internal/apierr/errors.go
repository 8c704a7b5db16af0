package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onnwee/forcegraph/internal/device"
	"github.com/onnwee/forcegraph/internal/engine"
	"github.com/onnwee/forcegraph/internal/graph"
	"github.com/onnwee/forcegraph/internal/logger"
)

// ErrorCode represents a structured error code
type ErrorCode string

// Error code constants organized by category
const (
	// SIM_ - Simulation errors
	ErrSimDestroyed    ErrorCode = "SIM_DESTROYED"
	ErrSimOutOfMemory  ErrorCode = "SIM_OUT_OF_MEMORY"
	ErrSimTickFailed   ErrorCode = "SIM_TICK_FAILED"
	ErrSimInvalidGraph ErrorCode = "SIM_INVALID_GRAPH"

	// SYSTEM_ - System and server errors
	ErrSystemInternal    ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemUnavailable ErrorCode = "SYSTEM_UNAVAILABLE"
	ErrSystemTimeout     ErrorCode = "SYSTEM_TIMEOUT"

	// VALIDATION_ - Request validation errors
	ErrValidationInvalidJSON  ErrorCode = "VALIDATION_INVALID_JSON"
	ErrValidationInvalidValue ErrorCode = "VALIDATION_INVALID_VALUE"
	ErrValidationBodyTooLarge ErrorCode = "VALIDATION_BODY_TOO_LARGE"

	// RESOURCE_ - Resource errors
	ErrResourceNotFound         ErrorCode = "RESOURCE_NOT_FOUND"
	ErrResourceMethodNotAllowed ErrorCode = "RESOURCE_METHOD_NOT_ALLOWED"

	// RATE_LIMIT_ - Rate limiting errors
	ErrRateLimitGlobal ErrorCode = "RATE_LIMIT_GLOBAL"
	ErrRateLimitIP     ErrorCode = "RATE_LIMIT_IP"
)

// Error represents a structured API error
type Error struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	status    int            // not serialized
}

// ErrorResponse is the top-level error response wrapper
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// New creates a new API error
func New(code ErrorCode, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		status:  status,
	}
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to the error
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Status returns the HTTP status code
func (e *Error) Status() int {
	return e.status
}

// WriteError writes a structured error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: err})
}

// SimDestroyed is returned once the engine has been torn down.
func SimDestroyed() *Error {
	return New(ErrSimDestroyed, "Simulation has been destroyed", http.StatusGone)
}

// SimOutOfMemory reports a device allocation failure.
func SimOutOfMemory(message string) *Error {
	if message == "" {
		message = "Simulation buffers exceed the device memory budget"
	}
	return New(ErrSimOutOfMemory, message, http.StatusInsufficientStorage)
}

// SimTickFailed reports a failed tick or rebuild.
func SimTickFailed(message string) *Error {
	if message == "" {
		message = "Simulation step failed"
	}
	return New(ErrSimTickFailed, message, http.StatusInternalServerError)
}

// SimInvalidGraph reports a graph that cannot be compiled.
func SimInvalidGraph(message string) *Error {
	if message == "" {
		message = "Invalid graph"
	}
	return New(ErrSimInvalidGraph, message, http.StatusUnprocessableEntity)
}

// SystemInternal creates an internal server error
func SystemInternal(message string) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return New(ErrSystemInternal, message, http.StatusInternalServerError)
}

// SystemUnavailable creates a service unavailable error
func SystemUnavailable(message string) *Error {
	if message == "" {
		message = "Service unavailable"
	}
	return New(ErrSystemUnavailable, message, http.StatusServiceUnavailable)
}

// SystemTimeout creates a system timeout error
func SystemTimeout(message string) *Error {
	if message == "" {
		message = "Request timeout"
	}
	return New(ErrSystemTimeout, message, http.StatusRequestTimeout)
}

// ValidationInvalidJSON creates an invalid JSON error
func ValidationInvalidJSON() *Error {
	return New(ErrValidationInvalidJSON, "Invalid JSON request body", http.StatusBadRequest)
}

// ValidationInvalidValue creates an invalid value error
func ValidationInvalidValue(field string, message string) *Error {
	if message == "" {
		message = "Invalid value for field: " + field
	}
	return New(ErrValidationInvalidValue, message, http.StatusBadRequest).
		WithDetails(map[string]any{"field": field})
}

// ValidationBodyTooLarge is returned when a request body exceeds its limit.
func ValidationBodyTooLarge(limit int64) *Error {
	return New(ErrValidationBodyTooLarge, "Request body too large", http.StatusRequestEntityTooLarge).
		WithDetails(map[string]any{"limit_bytes": limit})
}

// ResourceNotFound creates a resource not found error
func ResourceNotFound(resourceType string) *Error {
	return New(ErrResourceNotFound, resourceType+" not found", http.StatusNotFound).
		WithDetails(map[string]any{"resource_type": resourceType})
}

// MethodNotAllowed creates an error for a method the resource does not serve
func MethodNotAllowed(method string, allowed ...string) *Error {
	return New(ErrResourceMethodNotAllowed, method+" not allowed", http.StatusMethodNotAllowed).
		WithDetails(map[string]any{"allowed": allowed})
}

// RateLimitGlobal creates a global rate limit error
func RateLimitGlobal() *Error {
	return New(ErrRateLimitGlobal, "Rate limit exceeded - too many requests globally", http.StatusTooManyRequests)
}

// RateLimitIP creates an IP rate limit error
func RateLimitIP() *Error {
	return New(ErrRateLimitIP, "Rate limit exceeded - too many requests from your IP", http.StatusTooManyRequests)
}

// FromError maps engine, device and graph errors onto API errors. Unknown
// errors become SYSTEM_INTERNAL without leaking their text.
func FromError(err error) *Error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, engine.ErrDestroyed), errors.Is(err, device.ErrDestroyed):
		return SimDestroyed()
	case errors.Is(err, device.ErrOutOfMemory), errors.Is(err, device.ErrTextureTooLarge):
		return SimOutOfMemory(err.Error())
	case errors.Is(err, graph.ErrDuplicateNode), errors.Is(err, graph.ErrEmptyNodeID):
		return SimInvalidGraph(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return SystemTimeout("")
	case errors.Is(err, context.Canceled):
		return SystemUnavailable("Request cancelled")
	}
	return SystemInternal("")
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// WriteErrorWithContext writes a structured error response with request ID from context
func WriteErrorWithContext(w http.ResponseWriter, r *http.Request, err *Error) {
	if reqID := GetRequestID(r.Context()); reqID != "" {
		err = err.WithRequestID(reqID)
	}
	WriteError(w, err)
}
