package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/conneroisu/routefs/internal/dispatch"
	rerr "github.com/conneroisu/routefs/internal/errors"
	"github.com/conneroisu/routefs/internal/pathnorm"
)

// routes assembles the HTTP handler: the control plane under /_/ and the
// content catch-all for everything else.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Mount("/_", s.controlRoutes())
	r.Handle("/*", http.HandlerFunc(s.handleContent))

	return r
}

// logRequests logs one line per request with the structured logger.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// handleContent is the resolve-then-dispatch pipeline for content routes.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("routefs/server").Start(r.Context(), "serve",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
	defer span.End()

	// EscapedPath keeps percent escapes intact; the normalizer owns the
	// decode step.
	normalized, err := pathnorm.Normalize(r.URL.EscapedPath())
	if err != nil {
		s.metrics.resolveTotal.WithLabelValues("rejected").Inc()
		s.writeError(w, r, err)
		return
	}

	route, err := s.resolver.Resolve(normalized)
	if err != nil {
		s.metrics.resolveTotal.WithLabelValues(resolveOutcome(err)).Inc()
		s.writeError(w, r, err)
		return
	}
	s.metrics.resolveTotal.WithLabelValues("hit").Inc()

	sess := s.sessions.FromRequest(r)
	req := dispatch.NewRequestContext(r, normalized, sess)

	kind := route.Descriptor.Kind.String()
	start := time.Now()
	resp, err := s.dispatcher.Dispatch(ctx, route, req)
	s.metrics.dispatchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		s.writeError(w, r, err)
		return
	}
	defer resp.Close()

	if sess.Dirty() {
		if err := s.sessions.WriteCookie(w, sess); err != nil {
			s.logger.Warn(ctx, err, "writing session cookie", "path", normalized)
		}
	}

	s.writeResponse(w, r, resp)
}

// writeResponse translates a response descriptor onto the wire.
func (s *Server) writeResponse(w http.ResponseWriter, r *http.Request, resp *dispatch.ResponseDescriptor) {
	header := w.Header()
	for key, values := range resp.Header {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	if resp.ContentType != "" {
		header.Set("Content-Type", resp.ContentType)
	}
	if !resp.LastModified.IsZero() {
		header.Set("Last-Modified", resp.LastModified.UTC().Format(http.TimeFormat))
	}

	if resp.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if resp.ContentLength >= 0 {
		header.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}

	w.WriteHeader(resp.Status)

	if r.Method == http.MethodHead || resp.Body == nil {
		return
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		// The response line is already written; all that is left is to
		// note the broken transfer.
		s.logger.Debug(r.Context(), "response write aborted", "error", err.Error())
	}
}

// writeError maps a typed error onto an HTTP status. Internal failures get a
// generic body; the detail goes to the log only.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := rerr.HTTPStatus(err)

	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), err, "request failed",
			"method", r.Method,
			"path", r.URL.Path)
		http.Error(w, http.StatusText(status), status)
		return
	}

	s.logger.Debug(r.Context(), "request rejected",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err.Error())
	http.Error(w, http.StatusText(status), status)
}

func resolveOutcome(err error) string {
	switch {
	case rerr.IsNotFound(err):
		return "miss"
	case rerr.IsMiss(err):
		return "rejected"
	default:
		return "error"
	}
}
