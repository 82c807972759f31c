// Package httpapi serves the engine's operational endpoints: health,
// Prometheus metrics, collection channel status and stalled channel
// remediation.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/mongoversioning/internal/engine"
)

const (
	contentTypeJSON        = "application/json"
	defaultShutdownTimeout = time.Second * 5
)

// Engine is the part of engine.Engine the server reads and controls.
type Engine interface {
	RunID() string
	Channels() []engine.ChannelStatus
	Resolve(collection string, r engine.Resolution) error
}

// Server is the status HTTP server of one engine.
type Server struct {
	engine     Engine
	gatherer   prometheus.Gatherer
	addr       string
	listener   net.Listener
	httpServer *http.Server
}

// NewServer creates a server for e, exposing the metrics gathered by g.
func NewServer(e Engine, g prometheus.Gatherer, addr string) *Server {
	return &Server{
		engine:   e,
		gatherer: g,
		addr:     addr,
	}
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down, waiting up to five seconds for open requests.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/channels", s.handleChannels)
	r.Post("/channels/{collection}/resolve", s.handleResolve)

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse(s.engine.RunID()))
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewChannelsResponse(s.engine.RunID(), s.engine.Channels()))
}

// handleResolve releases a stalled channel: POST /channels/{collection}/resolve?action=retry|skip
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	var res engine.Resolution
	switch r.URL.Query().Get("action") {
	case "retry":
		res = engine.ResolutionRetry
	case "skip":
		res = engine.ResolutionSkip
	default:
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("action must be retry or skip"))
		return
	}

	if err := s.engine.Resolve(collection, res); err != nil {
		status := http.StatusNotFound
		if errors.Is(err, engine.ErrNotStalled) {
			status = http.StatusConflict
		}
		s.writeJSON(w, status, NewErrorResponse(err.Error()))
		return
	}

	slog.Info("channel resolved over HTTP", "collection", collection, "action", r.URL.Query().Get("action"))
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}
