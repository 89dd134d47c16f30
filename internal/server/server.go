// Package server exposes the chat service over HTTP.
//
// Routes:
//
//	GET  /               welcome message
//	POST /chat           order assistant turn
//	POST /chat/products  shopping assistant turn
//	GET  /healthz        liveness probe
//	GET  /readyz         readiness probe
//	GET  /metrics        Prometheus scrape endpoint
//
// Threads arrive whole in the request body and are returned whole with the
// assistant's reply appended. Validation failures answer 400 with a detail
// message; upstream model or database failures answer 500 with no internal
// detail.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emporia-ai/clerk/internal/chat"
	"github.com/emporia-ai/clerk/internal/health"
	"github.com/emporia-ai/clerk/internal/observe"
	"github.com/emporia-ai/clerk/internal/thread"
)

// maxBodyBytes caps request bodies; transcripts larger than this are
// malformed or abusive.
const maxBodyBytes = 1 << 20

// Engine runs one conversation turn. Implemented by *chat.Engine.
type Engine interface {
	RunTurn(ctx context.Context, t *thread.Thread) (chat.Outcome, error)
}

// Server routes HTTP requests to the chat engines.
type Server struct {
	order    Engine
	shopping Engine
	health   *health.Handler
	metrics  *observe.Metrics
	log      *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithShoppingEngine enables the POST /chat/products route. Without it the
// route answers 404.
func WithShoppingEngine(e Engine) Option {
	return func(s *Server) { s.shopping = e }
}

// WithHealth installs the liveness/readiness handler.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.health = h
		}
	}
}

// WithMetrics sets the metrics instance used by the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Server around the order assistant engine.
func New(order Engine, opts ...Option) (*Server, error) {
	if order == nil {
		return nil, errors.New("server: order engine must not be nil")
	}
	s := &Server{
		order:  order,
		health: health.New(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Handler returns the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /chat", s.handleChat(s.order))
	if s.shopping != nil {
		mux.HandleFunc("POST /chat/products", s.handleChat(s.shopping))
	}
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(s.metrics)(mux)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello World"})
}

// handleChat decodes a Thread, validates it, runs one turn and returns the
// extended Thread.
func (s *Server) handleChat(e Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var t thread.Thread
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&t); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if err := t.Validate(); err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}

		out, err := e.RunTurn(ctx, &t)
		if err != nil {
			observe.Logger(ctx).ErrorContext(ctx, "turn failed",
				"thread_id", t.ID, "error", err)
			writeDetail(w, http.StatusInternalServerError, "error generating response for chat")
			return
		}
		if out.DirectReturn {
			t.Append(out.Message)
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail":"encoding error"}`, http.StatusInternalServerError)
	}
}

// writeDetail mirrors the {"detail": ...} error body shape clients expect.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
