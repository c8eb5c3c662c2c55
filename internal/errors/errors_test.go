package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteErrorFormatting(t *testing.T) {
	err := NewTemplateError("blog/post.tmpl", fmt.Errorf("unexpected token"))

	msg := err.Error()
	assert.Contains(t, msg, "[RENDER_FAILED]")
	assert.Contains(t, msg, "path:blog/post.tmpl")
	assert.Contains(t, msg, "unexpected token")
}

func TestRouteErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := NewDynamicError("api/item.js", cause)

	assert.Equal(t, cause, err.Unwrap())
}

func TestRouteErrorIs(t *testing.T) {
	err := NewForbiddenError("TRAVERSAL", "dot-dot segment")

	assert.ErrorIs(t, err, &RouteError{Type: ErrorTypeForbidden, Code: "TRAVERSAL"})
	assert.ErrorIs(t, err, &RouteError{Type: ErrorTypeForbidden})
	assert.NotErrorIs(t, err, &RouteError{Type: ErrorTypeNotFound})
}

func TestIsMiss(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		miss bool
	}{
		{"not found", NewNotFoundError("missing"), true},
		{"forbidden", NewForbiddenError("TRAVERSAL", "dot-dot segment"), true},
		{"method", NewMethodNotAllowedError("POST", "logo.png"), true},
		{"permission", NewPermissionError("secret/file"), true},
		{"template", NewTemplateError("a.tmpl", fmt.Errorf("x")), false},
		{"dynamic", NewDynamicError("a.js", fmt.Errorf("x")), false},
		{"plain", fmt.Errorf("plain"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.miss, IsMiss(tc.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", NewNotFoundError("x"), http.StatusNotFound},
		{"forbidden", NewForbiddenError("NUL", "null byte"), http.StatusForbidden},
		{"permission", NewPermissionError("x"), http.StatusForbidden},
		{"method", NewMethodNotAllowedError("DELETE", "x"), http.StatusMethodNotAllowed},
		{"template", NewTemplateError("x", fmt.Errorf("x")), http.StatusInternalServerError},
		{"plain error", fmt.Errorf("plain"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, HTTPStatus(tc.err))
		})
	}
}

func TestWithPath(t *testing.T) {
	err := NewForbiddenError("TRAVERSAL", "dot-dot segment").WithPath("../etc/passwd")
	assert.Equal(t, "../etc/passwd", err.Path)
	assert.True(t, IsForbidden(err))
	assert.False(t, IsNotFound(err))
}
