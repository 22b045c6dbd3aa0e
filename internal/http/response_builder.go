// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps domain errors onto the API's error envelope.

package http

import (
	"encoding/json"
	"net/http"

	"billing/internal/core"
	"billing/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	fields     map[string]any
	payload    any
	headers    map[string]string
}

// NewJSONResponse creates a builder with a 200 status and an empty object
// body.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		fields:     make(map[string]any),
		headers:    make(map[string]string),
	}
}

// Success starts a {"success": true, ...} envelope.
func Success() *JSONResponseBuilder {
	return NewJSONResponse().Field("success", true)
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Field sets a top-level key of the object body.
func (b *JSONResponseBuilder) Field(name string, value any) *JSONResponseBuilder {
	b.fields[name] = value
	return b
}

// Payload replaces the object body with v, which is encoded as is. Fields
// set before or after are ignored.
func (b *JSONResponseBuilder) Payload(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)

	var body any = b.fields
	if b.payload != nil {
		body = b.payload
	}
	_ = json.NewEncoder(w).Encode(body)
}

// ErrorResponse creates the standard error envelope.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Field("success", false).
		Field("error", message).
		Field("code", code)
}

// NotFoundError creates a 404 response.
func NotFoundError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, core.CodeNotFound, "Not found")
}

// MethodNotAllowedError creates a 405 response.
func MethodNotAllowedError(allowedMethods string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed").
		Header("Allow", allowedMethods)
}

// writeError renders err with the status, code and message its marks
// select. Server-side failures are logged with their full chain; client
// errors only at debug.
func writeError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	status := core.StatusFor(err)
	ctx := r.Context()
	logger := log.FromContext(ctx)

	if status >= http.StatusInternalServerError {
		log.NewStructuredLogger(logger).LogError(ctx, "Request failed", err,
			log.ComponentHTTP, operation,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path))
	} else {
		logger.DebugContext(ctx, "Request rejected",
			log.FieldOperation, operation,
			log.FieldStatusCode, status,
			log.FieldErrorCode, core.CodeFor(err),
			log.FieldError, err.Error())
	}

	ErrorResponse(status, core.CodeFor(err), core.DisplayMessage(err)).Write(w)
}
