// Package errors defines the typed error taxonomy for route resolution
// and dispatch.
//
// Resolution failures (a "miss") and server-side failures share one
// structured error type so that callers can classify outcomes with
// errors.As and map them onto HTTP status codes in a single place.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	// Miss outcomes: the request path did not resolve to a servable route.
	ErrorTypeForbidden        ErrorType = "forbidden"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeMethodNotAllowed ErrorType = "method_not_allowed"
	ErrorTypePermission       ErrorType = "permission_denied"

	// Server-side failures: the route resolved but handling it failed.
	ErrorTypeTemplate ErrorType = "template"
	ErrorTypeDynamic  ErrorType = "dynamic"
	ErrorTypeIndex    ErrorType = "index_build"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeInternal ErrorType = "internal"
)

// RouteError is a structured error with route context.
type RouteError struct {
	Type        ErrorType
	Code        string
	Message     string
	Path        string
	Cause       error
	Recoverable bool
}

// Error implements the error interface.
func (e *RouteError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Path != "" {
		parts = append(parts, "path:"+e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *RouteError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by type and code.
func (e *RouteError) Is(target error) bool {
	var t *RouteError
	if errors.As(target, &t) {
		return e.Type == t.Type && (t.Code == "" || e.Code == t.Code)
	}

	return false
}

// WithPath attaches the request path the error relates to.
func (e *RouteError) WithPath(path string) *RouteError {
	e.Path = path

	return e
}

// Error creation functions

// NewForbiddenError reports a path that attempted to escape the content root
// or contained invalid characters.
func NewForbiddenError(code, message string) *RouteError {
	return &RouteError{
		Type:        ErrorTypeForbidden,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewNotFoundError reports a path with no matching route.
func NewNotFoundError(path string) *RouteError {
	return &RouteError{
		Type:        ErrorTypeNotFound,
		Code:        "ROUTE_MISS",
		Message:     "no route for path",
		Path:        path,
		Recoverable: true,
	}
}

// NewMethodNotAllowedError reports a method the resolved route cannot serve.
func NewMethodNotAllowedError(method, path string) *RouteError {
	return &RouteError{
		Type:        ErrorTypeMethodNotAllowed,
		Code:        "METHOD_UNSUPPORTED",
		Message:     fmt.Sprintf("method %s not supported", method),
		Path:        path,
		Recoverable: true,
	}
}

// NewPermissionError reports a subtree the scanner could not read.
func NewPermissionError(path string) *RouteError {
	return &RouteError{
		Type:        ErrorTypePermission,
		Code:        "SUBTREE_UNREADABLE",
		Message:     "path is under an unreadable subtree",
		Path:        path,
		Recoverable: true,
	}
}

// NewTemplateError wraps a render-time failure.
func NewTemplateError(path string, cause error) *RouteError {
	return &RouteError{
		Type:        ErrorTypeTemplate,
		Code:        "RENDER_FAILED",
		Message:     "template render failed",
		Path:        path,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewDynamicError wraps a script-execution failure.
func NewDynamicError(path string, cause error) *RouteError {
	return &RouteError{
		Type:        ErrorTypeDynamic,
		Code:        "EXEC_FAILED",
		Message:     "dynamic handler failed",
		Path:        path,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIndexError reports an index build or refresh failure. Fatal only at
// startup; during a refresh the previous snapshot stays in force.
func NewIndexError(message string, cause error) *RouteError {
	return &RouteError{
		Type:        ErrorTypeIndex,
		Code:        "INDEX_BUILD",
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *RouteError {
	return &RouteError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *RouteError {
	return &RouteError{
		Type:        ErrorTypeInternal,
		Code:        "INTERNAL",
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Classification helpers

// IsMiss reports whether err is a resolution miss rather than a handler
// failure. Misses map to 4xx responses.
func IsMiss(err error) bool {
	var re *RouteError
	if errors.As(err, &re) {
		switch re.Type {
		case ErrorTypeForbidden, ErrorTypeNotFound, ErrorTypeMethodNotAllowed, ErrorTypePermission:
			return true
		}
	}

	return false
}

// IsNotFound reports whether err is a not-found miss.
func IsNotFound(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsForbidden reports whether err is a forbidden miss.
func IsForbidden(err error) bool {
	return isType(err, ErrorTypeForbidden)
}

func isType(err error, t ErrorType) bool {
	var re *RouteError
	if errors.As(err, &re) {
		return re.Type == t
	}

	return false
}

// HTTPStatus maps an error onto the status code a client should see.
// Handler failures never leak details: the caller is expected to log the
// error and send a generic body.
func HTTPStatus(err error) int {
	var re *RouteError
	if !errors.As(err, &re) {
		return http.StatusInternalServerError
	}

	switch re.Type {
	case ErrorTypeForbidden, ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}
