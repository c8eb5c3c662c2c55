// Package script implements the dynamic-script collaborator with the goja
// JavaScript engine.
//
// A dynamic route is a JavaScript file in the content root. The file is
// evaluated in a fresh VM per request (no state leaks between requests) and
// must define an entry point for the request's method: a lowercase function
// named after the method ("get", "post", ...) or a catch-all "handler".
// The entry point receives a request object and may return either a string
// (served as the body) or an object with status, contentType, headers, and
// body fields. The session accessor is exposed as a "session" object with
// get/set/delete; the engine passes session contents through without
// interpreting them.
package script

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dop251/goja"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/conneroisu/routefs/internal/dispatch"
	rerr "github.com/conneroisu/routefs/internal/errors"
	"github.com/conneroisu/routefs/internal/logging"
	"github.com/conneroisu/routefs/internal/session"
)

// GojaExecutor executes JavaScript route handlers.
type GojaExecutor struct {
	fsys   billy.Filesystem
	logger logging.Logger
}

// NewGojaExecutor creates an executor reading scripts from the content
// filesystem.
func NewGojaExecutor(fsys billy.Filesystem, logger logging.Logger) *GojaExecutor {
	if logger == nil {
		logger = logging.NewLogger(logging.DefaultConfig())
	}

	return &GojaExecutor{
		fsys:   fsys,
		logger: logger.WithComponent("script"),
	}
}

// Execute runs the script's entry point for the request method. Request
// cancellation interrupts the VM promptly.
func (e *GojaExecutor) Execute(ctx context.Context, relPath string, req *dispatch.RequestContext, sess *session.Session) (*dispatch.ResponseDescriptor, error) {
	src, err := util.ReadFile(e.fsys, relPath)
	if err != nil {
		return nil, rerr.NewDynamicError(relPath, fmt.Errorf("reading script: %w", err))
	}

	prog, err := goja.Compile(relPath, string(src), true)
	if err != nil {
		return nil, rerr.NewDynamicError(relPath, fmt.Errorf("compiling script: %w", err))
	}

	vm := goja.New()

	// Client disconnect aborts the script instead of letting it run on.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("request cancelled")
		case <-done:
		}
	}()

	if err := vm.Set("request", requestObject(req)); err != nil {
		return nil, rerr.NewDynamicError(relPath, err)
	}
	if sess != nil {
		if err := vm.Set("session", sessionObject(sess)); err != nil {
			return nil, rerr.NewDynamicError(relPath, err)
		}
	}

	if _, err := vm.RunProgram(prog); err != nil {
		return nil, rerr.NewDynamicError(relPath, err)
	}

	entry := e.entryPoint(vm, req.Method)
	if entry == nil {
		return nil, rerr.NewMethodNotAllowedError(req.Method, relPath)
	}

	result, err := entry(goja.Undefined(), vm.Get("request"))
	if err != nil {
		if _, interrupted := err.(*goja.InterruptedError); interrupted {
			return nil, rerr.NewDynamicError(relPath, context.Canceled)
		}
		return nil, rerr.NewDynamicError(relPath, err)
	}

	return buildResponse(relPath, result)
}

// entryPoint selects the handler function for a method: the method-named
// function first, then the "handler" catch-all.
func (e *GojaExecutor) entryPoint(vm *goja.Runtime, method string) goja.Callable {
	for _, name := range []string{strings.ToLower(method), "handler"} {
		if fn, ok := goja.AssertFunction(vm.Get(name)); ok {
			return fn
		}
	}
	return nil
}

func requestObject(req *dispatch.RequestContext) map[string]interface{} {
	query := make(map[string]string, len(req.Query))
	for k := range req.Query {
		query[k] = req.Query.Get(k)
	}

	headers := make(map[string]string, len(req.Header))
	for k := range req.Header {
		headers[strings.ToLower(k)] = req.Header.Get(k)
	}

	return map[string]interface{}{
		"method":  req.Method,
		"path":    "/" + req.Path,
		"query":   query,
		"headers": headers,
		"body":    string(req.Body),
		"remote":  req.RemoteAddr,
	}
}

func sessionObject(sess *session.Session) map[string]interface{} {
	return map[string]interface{}{
		"id": sess.ID,
		"get": func(key string) interface{} {
			return sess.Get(key)
		},
		"set": func(key string, value interface{}) {
			sess.Set(key, value)
		},
		"delete": func(key string) {
			sess.Delete(key)
		},
	}
}

// buildResponse maps a script's return value onto a response descriptor.
func buildResponse(relPath string, result goja.Value) (*dispatch.ResponseDescriptor, error) {
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return dispatch.NewBytesResponse(http.StatusNoContent, "text/plain; charset=utf-8", nil), nil
	}

	switch v := result.Export().(type) {
	case string:
		return dispatch.NewBytesResponse(http.StatusOK, "text/html; charset=utf-8", []byte(v)), nil

	case map[string]interface{}:
		resp := dispatch.NewBytesResponse(http.StatusOK, "text/html; charset=utf-8", []byte(stringField(v, "body")))

		if status, ok := intField(v, "status"); ok {
			if status < 100 || status > 599 {
				return nil, rerr.NewDynamicError(relPath, fmt.Errorf("script returned invalid status %d", status))
			}
			resp.Status = status
		}
		if ct := stringField(v, "contentType"); ct != "" {
			resp.ContentType = ct
		}
		if headers, ok := v["headers"].(map[string]interface{}); ok {
			resp.Header = make(http.Header, len(headers))
			for k, hv := range headers {
				resp.Header.Set(k, fmt.Sprint(hv))
			}
		}
		return resp, nil

	default:
		return nil, rerr.NewDynamicError(relPath, fmt.Errorf("script returned unsupported type %T", v))
	}
}

func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func intField(m map[string]interface{}, key string) (int, bool) {
	switch n := m[key].(type) {
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
