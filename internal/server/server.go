// Package server exposes the live session to the dashboard UI over local HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tacoza/seller-live/internal/board"
	"github.com/tacoza/seller-live/internal/connection"
	"github.com/tacoza/seller-live/internal/live"
	"github.com/tacoza/seller-live/internal/menu"
	"github.com/tacoza/seller-live/internal/model"
	"github.com/tacoza/seller-live/internal/notify"
	"github.com/tacoza/seller-live/internal/transition"
	"github.com/tacoza/seller-live/internal/version"
)

// Backend is what the server needs from the session. *live.Session implements it.
type Backend interface {
	Snapshot() board.Snapshot
	Transition(ctx context.Context, orderID string, from, to model.Lane) error
	ToggleMenuItem(ctx context.Context, item menu.Item, field menu.Field) error
	Status() live.Status
	Refresh(ctx context.Context) error
	Subscribe(buffer int) (<-chan notify.Event, func())
}

var _ Backend = (*live.Session)(nil)

// Config holds server settings.
type Config struct {
	Port        int
	MetricsPath string
}

// Server is the local HTTP surface.
type Server struct {
	cfg      Config
	backend  Backend
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	srv      *http.Server
}

// New creates a Server. A nil gatherer serves the default registry.
func New(cfg Config, backend Backend, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	s := &Server{
		cfg:      cfg,
		backend:  backend,
		gatherer: gatherer,
		logger:   logger.With("component", "server"),
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/board", s.handleBoard)
	mux.HandleFunc("POST /api/orders/{id}/transition", s.handleTransition)
	mux.HandleFunc("GET /api/connection", s.handleConnection)
	mux.HandleFunc("POST /api/connection/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/menu/{slug}/toggle", s.handleMenuToggle)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.Handle("GET "+s.cfg.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.backend.Status()

	health := struct {
		Status     string         `json:"status"`
		Version    string         `json:"version"`
		Components map[string]any `json:"components"`
	}{
		Status:  "healthy",
		Version: version.Version,
		Components: map[string]any{
			"connection": st.Connection.State,
			"orders":     st.Orders,
			"feed_queue": st.Feed.Queue.Count,
		},
	}

	code := http.StatusOK
	switch st.Connection.State {
	case connection.StateConnected:
	case connection.StateStopped:
		health.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	default:
		health.Status = "degraded"
	}
	if st.Reconcile.Err != "" {
		health.Components["reconcile_error"] = st.Reconcile.Err
	}

	s.writeJSON(w, code, health)
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.backend.Snapshot())
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.backend.Status())
}

// handleRefresh resolves the subscription endpoint again.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Refresh(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.backend.Status())
}

type transitionRequest struct {
	From model.Lane `json:"from"`
	To   model.Lane `json:"to"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	for _, l := range []model.Lane{req.From, req.To} {
		if !l.Valid() {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %q", board.ErrUnknownLane, l))
			return
		}
	}

	err := s.backend.Transition(r.Context(), orderID, req.From, req.To)
	if err == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"order_id": orderID,
			"lane":     req.To,
		})
		return
	}

	var remoteErr *transition.RemoteCallError
	switch {
	case errors.Is(err, board.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, board.ErrUnknownLane):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &remoteErr):
		s.writeError(w, http.StatusBadGateway, err)
	default:
		s.logger.Error("transition failed", "order_id", orderID, "error", err)
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

type toggleRequest struct {
	Field    menu.Field `json:"field"`
	InStock  bool       `json:"in_stock"`
	Featured bool       `json:"featured"`
}

func (s *Server) handleMenuToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if req.Field != menu.FieldStock && req.Field != menu.FieldFeatured {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown field %q", req.Field))
		return
	}

	item := menu.Item{Slug: r.PathValue("slug"), InStock: req.InStock, Featured: req.Featured}
	if err := s.backend.ToggleMenuItem(r.Context(), item, req.Field); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, menu.ErrNoSlug) {
			code = http.StatusBadRequest
		}
		s.writeError(w, code, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleEvents streams notifications as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	events, cancel := s.backend.Subscribe(16)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := notify.Encode(ev)
			if err != nil {
				s.logger.Warn("encode event", "kind", ev.Kind(), "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind(), data)
			flusher.Flush()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"encode response"}` + "\n"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(data, '\n'))
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}
