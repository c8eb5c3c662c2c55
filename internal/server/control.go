package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/routefs/internal/version"
)

// controlRoutes serves the operational endpoints under /_/. The prefix is
// reserved: underscore-prefixed entries in the content tree are hidden, so
// no content route can shadow these.
func (s *Server) controlRoutes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/routes", s.handleRoutes)
	r.Get("/events", s.handleEvents)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.index.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"version": version.GetVersion(),
		"routes":  snap.Len(),
		"index":   snap.Version(),
	})
}

// handleRoutes dumps the current route mapping for debugging.
func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	snap := s.index.Snapshot()

	type routeInfo struct {
		Path   string `json:"path"`
		Kind   string `json:"kind"`
		Target string `json:"target,omitempty"`
	}

	routes := make([]routeInfo, 0, snap.Len())
	for _, d := range snap.Routes() {
		routes = append(routes, routeInfo{
			Path:   "/" + d.NormalizedPath,
			Kind:   d.Kind.String(),
			Target: d.IndexTarget,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"version": snap.Version(),
		"routes":  routes,
	})
}

// changeMessage is the wire form of a refresh notification.
type changeMessage struct {
	Type      string    `json:"type"`
	Subtree   string    `json:"subtree"`
	Version   uint64    `json:"version"`
	Routes    int       `json:"routes"`
	Timestamp time.Time `json:"timestamp"`
}

// handleEvents streams index refresh events over a websocket, one JSON
// message per published snapshot. Clients use it for live reload.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug(r.Context(), "websocket accept failed", "error", err.Error())
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	ch := s.index.Watch()
	defer s.index.UnWatch(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case event, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}

			msg, err := json.Marshal(changeMessage{
				Type:      "refresh",
				Subtree:   event.Subtree,
				Version:   event.Version,
				Routes:    event.Routes,
				Timestamp: event.Timestamp,
			})
			if err != nil {
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
