// Package server wires the routing engine into an HTTP server: it owns the
// route index, the resolver, the dispatcher and its collaborators, the
// session codec, and the filesystem watcher that keeps the index current.
//
// Content routes are served from the catch-all handler. Operational
// endpoints live under the /_/ prefix, which can never collide with content
// because underscore-prefixed entries are hidden from routing.
package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/conneroisu/routefs/internal/config"
	"github.com/conneroisu/routefs/internal/dispatch"
	"github.com/conneroisu/routefs/internal/logging"
	"github.com/conneroisu/routefs/internal/render"
	"github.com/conneroisu/routefs/internal/resolver"
	"github.com/conneroisu/routefs/internal/routeindex"
	"github.com/conneroisu/routefs/internal/script"
	"github.com/conneroisu/routefs/internal/session"
	"github.com/conneroisu/routefs/internal/watcher"
)

// Server serves a content directory tree as HTTP routes.
type Server struct {
	cfg    *config.Config
	logger logging.Logger

	index      *routeindex.Index
	resolver   *resolver.Resolver
	dispatcher *dispatch.Dispatcher
	sessions   *session.Codec
	watcher    *watcher.ContentWatcher
	metrics    *Metrics

	httpServer   *http.Server
	serverMutex  sync.RWMutex
	shutdownOnce sync.Once
}

// New builds a server from configuration. The content root must exist; the
// index is built on Start.
func New(cfg *config.Config, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewLogger(&logging.LoggerConfig{
			Level:  logging.ParseLevel(cfg.Log.Level),
			Format: cfg.Log.Format,
		})
	}

	rootAbs, err := filepath.Abs(cfg.Content.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving content root: %w", err)
	}

	fsys := osfs.New(rootAbs)

	index := routeindex.New(fsys, routeindex.Options{
		Root:         rootAbs,
		TemplateExts: cfg.Extensions.Template,
		DynamicExts:  cfg.Extensions.Dynamic,
		IndexPattern: cfg.Content.IndexPattern,
	}, logger)

	renderer, err := render.NewPongoRenderer(rootAbs)
	if err != nil {
		return nil, fmt.Errorf("creating renderer: %w", err)
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger.WithComponent("server"),
		index:      index,
		resolver:   resolver.New(index, cfg.Extensions.Priority, cfg.Content.Listing),
		dispatcher: dispatch.New(fsys, renderer, script.NewGojaExecutor(fsys, logger), logger),
		sessions:   session.NewCodec(cfg.Session, logger),
		metrics:    newMetrics(),
	}

	if cfg.Watch.Enabled {
		debounce := time.Duration(cfg.Watch.DebounceMs) * time.Millisecond
		w, err := watcher.New(rootAbs, debounce, logger)
		if err != nil {
			return nil, fmt.Errorf("creating watcher: %w", err)
		}
		w.AddHandler(s.handleChanges)
		s.watcher = w
	}

	return s, nil
}

// Index exposes the route index for inspection commands.
func (s *Server) Index() *routeindex.Index {
	return s.index
}

// Start builds the index, starts the watcher, and serves HTTP until the
// context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.index.BuildFull(); err != nil {
		return err
	}
	s.logger.Info(ctx, "route index built",
		"routes", s.index.Snapshot().Len(),
		"root", s.cfg.Content.Root)

	go s.observeRefreshes(ctx)

	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.serverMutex.Lock()
	s.httpServer = httpServer
	s.serverMutex.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops the watcher and drains in-flight requests. Safe to call
// more than once.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.watcher != nil {
			if werr := s.watcher.Stop(); werr != nil {
				s.logger.Warn(context.Background(), werr, "stopping watcher")
			}
		}

		s.serverMutex.RLock()
		httpServer := s.httpServer
		s.serverMutex.RUnlock()

		if httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err = httpServer.Shutdown(ctx)
		}
	})
	return err
}

// handleChanges maps a debounced change batch onto index refreshes, one per
// affected directory.
func (s *Server) handleChanges(events []watcher.ChangeEvent) error {
	subtrees := make(map[string]struct{})
	for _, event := range events {
		subtree := parentDir(event.RelPath)
		if event.IsDir && event.Type != watcher.EventTypeDeleted {
			subtree = event.RelPath
		}
		subtrees[subtree] = struct{}{}
	}

	for subtree := range subtrees {
		if err := s.index.Refresh(subtree); err != nil {
			s.logger.Warn(context.Background(), err, "refresh failed", "subtree", subtree)
		}
	}
	return nil
}

// observeRefreshes feeds snapshot publications into the metrics.
func (s *Server) observeRefreshes(ctx context.Context) {
	ch := s.index.Watch()
	defer s.index.UnWatch(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			s.metrics.refreshTotal.Inc()
			s.metrics.routesGauge.Set(float64(event.Routes))
		}
	}
}

func parentDir(rel string) string {
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return ""
}
