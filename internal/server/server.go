package server

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/helixops/ruleflow/internal/actions"
	"github.com/helixops/ruleflow/internal/engine"
	"github.com/helixops/ruleflow/internal/store"
	"github.com/helixops/ruleflow/internal/validation"
)

// Deps holds the collaborators the API server needs.
type Deps struct {
	Store     store.Store
	Runner    *engine.Runner
	Registry  *actions.Registry
	Validator *validation.RuleValidator
	Logger    *slog.Logger
}

// Server exposes the rule engine over HTTP.
type Server struct {
	deps Deps
}

// NewServer creates the API server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/rules", func(r chi.Router) {
			r.Post("/", s.handleCreateRule)
			r.Get("/", s.handleListRules)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRule)
				r.Patch("/", s.handleUpdateRule)
				r.Delete("/", s.handleDeleteRule)
				r.Post("/invoke", s.handleInvokeRule)
				r.Get("/executions", s.handleListRuleExecutions)
			})
		})

		r.Route("/executions", func(r chi.Router) {
			r.Get("/", s.handleListExecutions)
			r.Get("/{id}", s.handleGetExecution)
		})

		r.Get("/actions", s.handleListActions)
		r.Get("/audit", s.handleListAuditEvents)
	})

	return r
}
