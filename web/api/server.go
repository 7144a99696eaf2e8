// Package api serves the coordinator state, batch execution and live batch
// events over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/coord"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
)

// Coordinator is the read side of the claim protocol the API exposes
type Coordinator interface {
	ListClaims(ctx context.Context, milestone string) ([]domain.ClaimRecord, error)
	ReapStale(ctx context.Context, milestone string) ([]string, error)
	ListActive(ctx context.Context, milestone string) ([]domain.InstanceRecord, error)
	GetMessages(ctx context.Context, q coord.MessageQuery) ([]domain.CoordinationMessage, error)
	Activity(ctx context.Context, milestone string) ([]domain.ActivityEntry, error)
	StaleThreshold() time.Duration
}

// Executor runs task group batches
type Executor interface {
	Execute(ctx context.Context, groups []domain.TaskGroup, deadline time.Duration) *domain.BatchResult
}

// Server is the HTTP API server
type Server struct {
	coord    Coordinator
	executor Executor
	metrics  http.Handler
	addr     string
	mux      *http.ServeMux
	sseHub   *SSEHub
	logger   *zap.Logger
}

// NewServer creates a new API server. executor and metrics may be nil, which
// disables their routes.
func NewServer(c Coordinator, executor Executor, metrics http.Handler, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		coord:    c,
		executor: executor,
		metrics:  metrics,
		addr:     addr,
		mux:      http.NewServeMux(),
		sseHub:   NewSSEHub(),
		logger:   logger.With(zap.String("component", "api")),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /api/status", s.statusHandler())
	s.mux.HandleFunc("GET /api/claims/{milestone}", s.listClaimsHandler())
	s.mux.HandleFunc("POST /api/claims/{milestone}/reap", s.reapHandler())
	s.mux.HandleFunc("GET /api/instances", s.listInstancesHandler())
	s.mux.HandleFunc("GET /api/messages", s.listMessagesHandler())
	s.mux.HandleFunc("GET /api/activity/{milestone}", s.activityHandler())
	s.mux.HandleFunc("POST /api/batches", s.runBatchHandler())
	s.mux.HandleFunc("GET /api/events", s.sseHandler())
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
}

// SetExecutor enables POST /api/batches
func (s *Server) SetExecutor(e Executor) {
	s.executor = e
}

// Handler returns the route multiplexer
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Hub returns the event hub. It is a notify.Notifier, so batch events can be
// streamed to SSE clients.
func (s *Server) Hub() *SSEHub {
	return s.sseHub
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	go s.sseHub.Run(ctx)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
