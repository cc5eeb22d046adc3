// Package api exposes the dialogue engine over HTTP. The chat surface is
// OpenAI-compatible so existing chat clients can point at it; the rest is a
// small read-only JSON API over sessions and orders.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"brightthread/internal/agent"
	"brightthread/internal/order"
	"brightthread/internal/session"
)

// Options tunes the HTTP surface.
type Options struct {
	RateLimitRPM   int
	RequestTimeout time.Duration
}

// Server routes HTTP requests into the turn coordinator and the stores.
type Server struct {
	coordinator *agent.Coordinator
	sessions    *session.Store
	orders      *order.Store
	logger      *zap.Logger
	router      chi.Router
}

// NewServer builds the router with its middleware stack.
func NewServer(coordinator *agent.Coordinator, sessions *session.Store, orders *order.Store, logger *zap.Logger, opts Options) *Server {
	s := &Server{
		coordinator: coordinator,
		sessions:    sessions,
		orders:      orders,
		logger:      logger.Named("api"),
	}

	if opts.RateLimitRPM <= 0 {
		opts.RateLimitRPM = 60
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 120 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(opts.RateLimitRPM, time.Minute))
		r.Post("/chat/completions", s.handleChatCompletion)
		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{sessionID}", s.handleGetConversation)
		r.Get("/orders/{orderID}", s.handleGetOrder)
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger logs one line per request with latency and status.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	var body errorBody
	body.Error.Message = message
	body.Error.Type = errType
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
