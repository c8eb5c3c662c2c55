package dispatch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/conneroisu/routefs/internal/render"
	"github.com/conneroisu/routefs/internal/session"
)

// maxBodyBytes caps how much of a request body is buffered for dynamic
// handlers.
const maxBodyBytes = 1 << 20

// RequestContext carries the request-derived data a handler may need. It is
// per-request and never shared.
type RequestContext struct {
	Method     string
	Path       string
	Query      url.Values
	Header     http.Header
	RemoteAddr string
	Body       []byte

	// IfModifiedSince is the client's cached timestamp, zero when absent.
	IfModifiedSince time.Time

	// Session is the decoded session bag, passed through to dynamic
	// handlers and never interpreted here.
	Session *session.Session
}

// NewRequestContext builds a RequestContext from an incoming HTTP request.
// The body is buffered (bounded) so dynamic handlers can consume it without
// holding the connection.
func NewRequestContext(r *http.Request, normalizedPath string, sess *session.Session) *RequestContext {
	rc := &RequestContext{
		Method:     r.Method,
		Path:       normalizedPath,
		Query:      r.URL.Query(),
		Header:     r.Header,
		RemoteAddr: r.RemoteAddr,
		Session:    sess,
	}

	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil {
			rc.IfModifiedSince = t
		}
	}

	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err == nil {
			rc.Body = body
		}
	}

	return rc
}

// ResponseDescriptor is what a dispatch produces: everything the transport
// layer needs to write the response, with the body as a stream.
type ResponseDescriptor struct {
	Status        int
	ContentType   string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
	LastModified  time.Time

	// NotModified marks the conditional-request fast path; the body is
	// empty and Status is 304.
	NotModified bool
}

// NewBytesResponse builds a fully buffered response descriptor.
func NewBytesResponse(status int, contentType string, body []byte) *ResponseDescriptor {
	return &ResponseDescriptor{
		Status:        status,
		ContentType:   contentType,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// Close releases the response body if one is attached.
func (rd *ResponseDescriptor) Close() error {
	if rd.Body == nil {
		return nil
	}
	return rd.Body.Close()
}

// Renderer is the template collaborator boundary.
type Renderer = render.Renderer

// Executor is the dynamic-script collaborator boundary. Implementations
// receive the request context and the session accessor and either produce a
// response descriptor or fail.
type Executor interface {
	Execute(ctx context.Context, relPath string, req *RequestContext, sess *session.Session) (*ResponseDescriptor, error)
}
