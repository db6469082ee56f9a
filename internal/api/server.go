// Package api exposes the scheduler, the query orchestrator, the run ledger
// and the notification hub over HTTP under /api/agents.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aatumaykin/stockpilot/internal/agent"
	"github.com/aatumaykin/stockpilot/internal/cron"
	"github.com/aatumaykin/stockpilot/internal/ledger"
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/metrics"
	"github.com/aatumaykin/stockpilot/internal/notify"
	"github.com/aatumaykin/stockpilot/internal/tasks"
)

// Prefix is the mount point of every orchestration route.
const Prefix = "/api/agents"

// DefaultHeartbeat is the interval between SSE keep-alive comments.
const DefaultHeartbeat = 25 * time.Second

// Scheduler is the part of cron.Scheduler the API drives.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop()
	Status(ctx context.Context) (cron.Status, error)
	Tasks(ctx context.Context) ([]cron.TaskSummary, error)
	Trigger(ctx context.Context, name, actorID string) (tasks.Result, error)
	Enable(ctx context.Context, name string) error
	Disable(ctx context.Context, name string) error
	Reschedule(ctx context.Context, name, expr string) error
	UpdateConfig(ctx context.Context, name string, partial map[string]any) (map[string]any, error)
}

// QueryProcessor is the part of agent.Orchestrator the API drives.
type QueryProcessor interface {
	Process(ctx context.Context, req agent.Request) (agent.Result, error)
	ClearConversation(conversationID string) error
}

// Options wires the server. Gatherer and Ping are optional.
type Options struct {
	Scheduler Scheduler
	Queries   QueryProcessor
	Ledger    *ledger.Ledger
	Hub       *notify.Hub
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Ping      func(ctx context.Context) error
	Logger    *logger.Logger
	Heartbeat time.Duration
}

// Server holds the router and its collaborators.
type Server struct {
	r         *chi.Mux
	scheduler Scheduler
	queries   QueryProcessor
	ledger    *ledger.Ledger
	hub       *notify.Hub
	metrics   *metrics.Metrics
	ping      func(ctx context.Context) error
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	s := &Server{
		r:         chi.NewRouter(),
		scheduler: opts.Scheduler,
		queries:   opts.Queries,
		ledger:    opts.Ledger,
		hub:       opts.Hub,
		metrics:   opts.Metrics,
		ping:      opts.Ping,
		logger:    log.Component("api"),
		heartbeat: heartbeat,
	}

	s.r.Use(middleware.RequestID, middleware.RealIP, s.requestLogger, middleware.Recoverer)

	s.r.Get("/healthz", s.health)
	if opts.Gatherer != nil {
		s.r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	s.r.Route(Prefix, func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/tasks", s.listTasks)
		r.Post("/trigger/{taskName}", s.trigger)
		r.Put("/tasks/{taskName}/enabled", s.setEnabled)
		r.Put("/tasks/{taskName}/schedule", s.setSchedule)
		r.Put("/tasks/{taskName}/config", s.updateConfig)
		r.Post("/scheduler/start", s.startScheduler)
		r.Post("/scheduler/stop", s.stopScheduler)

		r.Post("/query", s.query)
		r.Delete("/conversation/{conversationId}", s.clearConversation)

		r.Get("/logs", s.listLogs)
		r.Get("/logs/recent", s.recentLogs)
		r.Get("/logs/stats", s.logStats)
		r.Get("/logs/{id}", s.getLog)

		r.Get("/notifications", s.listNotifications)
		r.Get("/notifications/unread", s.unreadNotifications)
		r.Put("/notifications/read-all", s.markAllRead)
		r.Put("/notifications/{id}/read", s.markRead)
		r.Get("/notifications/stream", s.streamNotifications)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.r.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
