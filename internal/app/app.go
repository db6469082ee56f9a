// Package app wires the stockpilot service together: storage, the run
// ledger, notifications, the task scheduler, the query orchestrator and the
// HTTP API.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aatumaykin/stockpilot/internal/agent"
	"github.com/aatumaykin/stockpilot/internal/analytics"
	"github.com/aatumaykin/stockpilot/internal/api"
	"github.com/aatumaykin/stockpilot/internal/cleanup"
	"github.com/aatumaykin/stockpilot/internal/config"
	"github.com/aatumaykin/stockpilot/internal/cron"
	"github.com/aatumaykin/stockpilot/internal/docstore"
	"github.com/aatumaykin/stockpilot/internal/ledger"
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/metrics"
	"github.com/aatumaykin/stockpilot/internal/notify"
	"github.com/aatumaykin/stockpilot/internal/tasks"
	"github.com/aatumaykin/stockpilot/internal/version"
	"github.com/aatumaykin/stockpilot/internal/workers"
)

// App represents the main application structure.
// It holds references to all major components and manages their lifecycle.
type App struct {
	// Configuration and core services
	config *config.Config
	logger *logger.Logger

	// Storage
	db        *sql.DB
	docs      *docstore.Store
	analytics *analytics.Service
	ledger    *ledger.Ledger

	// Notifications
	hub           *notify.Hub
	telegram      *notify.TelegramForwarder
	unsubscribers []func()

	// Observability
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// Scheduled tasks
	tasks      *tasks.Registry
	cronStore  *cron.Store
	scheduler  *cron.Scheduler
	workerPool *workers.Pool

	// Queries
	orchestrator *agent.Orchestrator
	sessionSweep *cleanup.Scheduler

	// HTTP
	api        *api.Server
	httpServer *http.Server

	// Context management
	ctx    context.Context
	cancel context.CancelFunc

	// Thread-safety
	mu      sync.Mutex
	started bool
}

// New creates a new App instance with the provided configuration and logger.
// Components are created by Initialize.
func New(cfg *config.Config, log *logger.Logger) *App {
	return &App{
		config: cfg,
		logger: log,
	}
}

// Run initializes the application, serves HTTP on the configured address
// and blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.config.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.config.Server.Addr, err)
	}
	return a.RunListener(ctx, ln)
}

// RunListener is Run over an existing listener.
func (a *App) RunListener(ctx context.Context, ln net.Listener) error {
	if err := a.Initialize(ctx); err != nil {
		ln.Close()
		return err
	}

	if a.config.Scheduler.Enabled && a.config.Scheduler.AutoStart {
		if err := a.scheduler.Start(a.ctx); err != nil {
			ln.Close()
			_ = a.Shutdown()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", logger.Field{Key: "addr", Value: ln.Addr().String()})
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	a.logger.Info("Application is running")
	a.hub.Emit(notify.Notification{
		Type:     notify.TypeInfo,
		Priority: notify.PriorityLow,
		Title:    "Service started",
		Message:  version.FormatStartupMessage(),
		Source:   "app",
	})

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server failed: %w", err)
		}
	}

	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Scheduler returns the task scheduler. Nil before Initialize.
func (a *App) Scheduler() *cron.Scheduler { return a.scheduler }

// Orchestrator returns the query orchestrator. Nil before Initialize.
func (a *App) Orchestrator() *agent.Orchestrator { return a.orchestrator }

// Docs returns the document store. Nil before Initialize.
func (a *App) Docs() *docstore.Store { return a.docs }

// Ledger returns the run ledger. Nil before Initialize.
func (a *App) Ledger() *ledger.Ledger { return a.ledger }

// Hub returns the notification hub. Nil before Initialize.
func (a *App) Hub() *notify.Hub { return a.hub }

// Handler returns the HTTP handler. Nil before Initialize.
func (a *App) Handler() http.Handler {
	if a.api == nil {
		return nil
	}
	return a.api
}
