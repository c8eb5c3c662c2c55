// Package dispatch selects and invokes the handling strategy for a resolved
// route: static streaming, template rendering, dynamic execution, or
// directory-index delegation.
//
// The route kind is a closed set and handling is exhaustive; there is no
// open-ended handler registry. Dispatch failures are typed: render failures
// surface as template errors, script failures as dynamic-execution errors,
// and neither crashes the serving process.
package dispatch

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/go-git/go-billy/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	rerr "github.com/conneroisu/routefs/internal/errors"
	"github.com/conneroisu/routefs/internal/logging"
	"github.com/conneroisu/routefs/internal/resolver"
	"github.com/conneroisu/routefs/internal/routeindex"
)

// Dispatcher invokes the matching collaborator for a resolved route.
type Dispatcher struct {
	fsys     billy.Filesystem
	renderer Renderer
	executor Executor
	logger   logging.Logger
	tracer   trace.Tracer
}

// New creates a dispatcher over the content filesystem and collaborators.
func New(fsys billy.Filesystem, renderer Renderer, executor Executor, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewLogger(logging.DefaultConfig())
	}

	return &Dispatcher{
		fsys:     fsys,
		renderer: renderer,
		executor: executor,
		logger:   logger.WithComponent("dispatch"),
		tracer:   otel.Tracer("routefs/dispatch"),
	}
}

// Dispatch produces a response descriptor for a resolved route. Errors are
// typed RouteErrors; the caller maps them onto status codes.
func (d *Dispatcher) Dispatch(ctx context.Context, route *resolver.ResolvedRoute, req *RequestContext) (*ResponseDescriptor, error) {
	desc := route.Descriptor

	ctx, span := d.tracer.Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("route.path", desc.NormalizedPath),
			attribute.String("route.kind", desc.Kind.String()),
		))
	defer span.End()

	resp, err := d.dispatch(ctx, route, req)
	if err != nil {
		span.RecordError(err)
	}
	return resp, err
}

func (d *Dispatcher) dispatch(ctx context.Context, route *resolver.ResolvedRoute, req *RequestContext) (*ResponseDescriptor, error) {
	desc := route.Descriptor

	if route.Listing {
		return d.dispatchListing(route, req)
	}

	switch desc.Kind {
	case routeindex.KindStatic:
		return d.dispatchStatic(desc, req)
	case routeindex.KindTemplate:
		return d.dispatchTemplate(desc, req)
	case routeindex.KindDynamic:
		return d.dispatchDynamic(ctx, desc, req)
	case routeindex.KindDirectoryIndex:
		return d.dispatchDirectoryIndex(ctx, route, req)
	default:
		return nil, rerr.NewInternalError("unroutable descriptor kind reached dispatch", nil).WithPath(desc.NormalizedPath)
	}
}

// dispatchStatic streams the file's bytes verbatim. The conditional-request
// fast path answers from descriptor metadata without touching the disk.
func (d *Dispatcher) dispatchStatic(desc *routeindex.RouteDescriptor, req *RequestContext) (*ResponseDescriptor, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil, rerr.NewMethodNotAllowedError(req.Method, desc.NormalizedPath)
	}

	if notModified(desc.LastModified, req.IfModifiedSince) {
		return &ResponseDescriptor{
			Status:       http.StatusNotModified,
			NotModified:  true,
			LastModified: desc.LastModified,
		}, nil
	}

	f, err := d.fsys.Open(desc.RelPath)
	if err != nil {
		return nil, staticOpenError(desc, err)
	}

	var size int64 = -1
	if fi, err := d.fsys.Stat(desc.RelPath); err == nil {
		size = fi.Size()
	}

	return &ResponseDescriptor{
		Status:        http.StatusOK,
		ContentType:   contentTypeFor(desc.RelPath),
		Body:          f,
		ContentLength: size,
		LastModified:  desc.LastModified,
	}, nil
}

func staticOpenError(desc *routeindex.RouteDescriptor, err error) error {
	switch {
	case os.IsNotExist(err):
		// The file vanished after the last scan; the index is stale
		// until the watcher catches up.
		return rerr.NewNotFoundError(desc.NormalizedPath)
	case os.IsPermission(err):
		return rerr.NewPermissionError(desc.NormalizedPath)
	default:
		return rerr.NewInternalError("opening static file", err).WithPath(desc.NormalizedPath)
	}
}

// dispatchTemplate renders the file through the template collaborator.
func (d *Dispatcher) dispatchTemplate(desc *routeindex.RouteDescriptor, req *RequestContext) (*ResponseDescriptor, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil, rerr.NewMethodNotAllowedError(req.Method, desc.NormalizedPath)
	}

	out, err := d.renderer.Render(desc.RelPath, templateContext(req))
	if err != nil {
		return nil, rerr.NewTemplateError(desc.NormalizedPath, err)
	}

	resp := NewBytesResponse(http.StatusOK, "text/html; charset=utf-8", out)
	resp.LastModified = desc.LastModified
	return resp, nil
}

// templateContext exposes request data to templates. Session values are
// passed through read-only; only dynamic handlers may mutate a session.
func templateContext(req *RequestContext) map[string]interface{} {
	query := make(map[string]string, len(req.Query))
	for k := range req.Query {
		query[k] = req.Query.Get(k)
	}

	ctx := map[string]interface{}{
		"method": req.Method,
		"path":   "/" + req.Path,
		"query":  query,
	}
	if req.Session != nil {
		ctx["session"] = req.Session.Values()
	}
	return ctx
}

// dispatchDynamic passes control to the script collaborator.
func (d *Dispatcher) dispatchDynamic(ctx context.Context, desc *routeindex.RouteDescriptor, req *RequestContext) (*ResponseDescriptor, error) {
	resp, err := d.executor.Execute(ctx, desc.RelPath, req, req.Session)
	if err != nil {
		var re *rerr.RouteError
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, rerr.NewDynamicError(desc.NormalizedPath, err)
	}
	return resp, nil
}

// dispatchDirectoryIndex delegates to whichever kind the pointed-to file
// resolves to, within the same snapshot the route came from.
func (d *Dispatcher) dispatchDirectoryIndex(ctx context.Context, route *resolver.ResolvedRoute, req *RequestContext) (*ResponseDescriptor, error) {
	desc := route.Descriptor

	target, ok := route.Snapshot.Lookup(desc.IndexTarget)
	if !ok {
		return nil, rerr.NewNotFoundError(desc.NormalizedPath)
	}

	return d.dispatch(ctx, &resolver.ResolvedRoute{
		Descriptor: target,
		Snapshot:   route.Snapshot,
	}, req)
}

var listingTemplate = pongo2.Must(pongo2.FromString(`<!DOCTYPE html>
<html>
<head><title>Index of /{{ dir }}</title></head>
<body>
<h1>Index of /{{ dir }}</h1>
<ul>
{% for entry in entries %}<li><a href="{{ entry.href }}">{{ entry.name }}</a></li>
{% endfor %}</ul>
</body>
</html>
`))

// dispatchListing synthesizes a directory listing from the snapshot. It
// never rescans the disk.
func (d *Dispatcher) dispatchListing(route *resolver.ResolvedRoute, req *RequestContext) (*ResponseDescriptor, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return nil, rerr.NewMethodNotAllowedError(req.Method, route.Descriptor.NormalizedPath)
	}

	dir := route.Descriptor.NormalizedPath

	var entries []map[string]interface{}
	for _, child := range route.Snapshot.Children(dir) {
		name := path.Base(child.NormalizedPath)
		href := "/" + child.NormalizedPath
		if child.IsDir() {
			name += "/"
			href += "/"
		}
		entries = append(entries, map[string]interface{}{"name": name, "href": href})
	}

	out, err := listingTemplate.ExecuteBytes(pongo2.Context{
		"dir":     dir,
		"entries": entries,
	})
	if err != nil {
		return nil, rerr.NewTemplateError(dir, err)
	}

	resp := NewBytesResponse(http.StatusOK, "text/html; charset=utf-8", out)
	resp.LastModified = route.Descriptor.LastModified
	return resp, nil
}

// notModified reports whether the client's cached timestamp is current.
// HTTP dates have second precision, so the comparison truncates.
func notModified(lastModified, ifModifiedSince time.Time) bool {
	if lastModified.IsZero() || ifModifiedSince.IsZero() {
		return false
	}
	return !lastModified.Truncate(time.Second).After(ifModifiedSince)
}

func contentTypeFor(relPath string) string {
	if ct := mime.TypeByExtension(path.Ext(relPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
