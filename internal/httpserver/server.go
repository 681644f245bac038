// Package httpserver exposes the reconciliation surface: payment
// status ingestion and polls, WhatsApp session relay, the n8n
// template-interview bridge, and the backend passthrough.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agent-relay/internal/metrics"
	"agent-relay/internal/repo"
	"agent-relay/internal/store"
	"agent-relay/internal/upstream"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies carries everything the handlers need. Repository may be
// nil when the audit database is not configured.
type Dependencies struct {
	Orders     *store.OrderStore
	Sessions   *store.WhatsAppStore
	Interviews *store.InterviewStore
	WhatsApp   *upstream.WhatsAppClient
	Backend    *upstream.BackendClient
	Audit      *Auditor
	Repository repo.Repository
}

// Server wraps an http.Server with the reconciliation routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	basePath   string
}

// New creates an HTTP server listening on addr.
func New(addr string, logger *slog.Logger, m *metrics.Metrics, deps Dependencies, basePath string) *Server {
	server := &Server{
		logger:   logger.With("component", "http"),
		basePath: normaliseBasePath(basePath),
	}

	payment := newPaymentHandler(deps.Orders, logger, m, deps.Audit)
	whatsapp := newWhatsAppHandler(deps.Sessions, deps.WhatsApp, logger, m)
	interview := newInterviewHandler(deps.Interviews, logger, m, deps.Audit)
	subscription := newSubscriptionHandler(deps.Backend, logger, m)
	admin := newAdminHandler(deps.Orders, deps.Repository, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", healthHandler)
	router.Handle("/metrics", promhttp.Handler())

	router.Get("/admin/latest-order", admin.handleLatestOrder)
	router.Get("/admin/webhook-events", admin.handleWebhookEvents)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/payment/status", payment.handleWebhook)
		r.Get("/payment/status", payment.handlePoll)
		r.Get("/subscription/api-key", subscription.handleAPIKey)
	})

	router.Route("/api/whatsapp-sessions", func(r chi.Router) {
		r.Get("/", whatsapp.handleList)
		r.Post("/", whatsapp.handleCreate)
		r.Post("/qr", whatsapp.handleQR)
		r.Get("/status", whatsapp.handleStatus)
		r.Get("/{agentId}", whatsapp.handleGet)
		r.Delete("/{agentId}", whatsapp.handleDelete)
		r.Post("/{agentId}/reconnect", whatsapp.handleReconnect)
	})

	router.Route("/api/webhook", func(r chi.Router) {
		r.Put("/n8n-template", interview.handleRegister)
		r.Post("/n8n-template", interview.handleComplete)
		r.Get("/n8n-template", interview.handlePoll)
	})

	router.HandleFunc("/api/proxy/*", subscription.handleProxy)

	handler := mountWithBasePath(server.basePath, router)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}

	return server
}

// Handler exposes the configured root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		if r.URL.RawPath != "" {
			rawTrimmed := strings.TrimPrefix(r.URL.RawPath, basePath)
			if rawTrimmed == "" {
				rawTrimmed = "/"
			}
			r.URL.RawPath = rawTrimmed
		}
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
