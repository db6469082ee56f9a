package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aatumaykin/stockpilot/internal/analytics"
	"github.com/aatumaykin/stockpilot/internal/api"
	"github.com/aatumaykin/stockpilot/internal/app/builders"
	"github.com/aatumaykin/stockpilot/internal/cleanup"
	"github.com/aatumaykin/stockpilot/internal/cron"
	"github.com/aatumaykin/stockpilot/internal/docstore"
	"github.com/aatumaykin/stockpilot/internal/ledger"
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/metrics"
	"github.com/aatumaykin/stockpilot/internal/notify"
	"github.com/aatumaykin/stockpilot/internal/storage"
	"github.com/aatumaykin/stockpilot/internal/tasks"
	"github.com/aatumaykin/stockpilot/internal/workers"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "stockpilot"

// Initialize creates every component. The scheduler is left stopped and the
// HTTP server is built but not listening; Run takes care of both.
func (a *App) Initialize(ctx context.Context) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	// 1. Create application context
	a.ctx, a.cancel = context.WithCancel(ctx)
	defer func() {
		if err != nil {
			_ = a.releaseLocked()
		}
	}()

	// 2. Open storage
	a.db, err = storage.Open(a.config.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	a.docs = docstore.New(a.db)
	a.analytics = analytics.New(a.docs)
	a.ledger = ledger.New(a.db)

	// 3. Metrics
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(MetricsNamespace, a.registry)

	// 4. Notifications
	a.hub = notify.NewHub(a.config.Notifications.HistorySize, a.logger)
	a.unsubscribers = append(a.unsubscribers,
		a.hub.Subscribe(notify.MetricsObserver(a.metrics)),
		a.hub.Subscribe(notify.LogObserver(a.logger)))

	fwd, unsubscribe, err := builders.NewTelegramBuilder(a.config, a.logger, a.hub).Build(a.ctx)
	if err != nil {
		return err
	}
	a.telegram = fwd
	a.unsubscribers = append(a.unsubscribers, unsubscribe)

	// 5. Tasks and scheduler
	a.tasks = tasks.NewRegistry()
	if err := tasks.RegisterBuiltins(a.tasks, tasks.Deps{
		Analytics: a.analytics,
		Ledger:    a.ledger,
		Hub:       a.hub,
		DB:        a.db,
		BackupDir: a.config.Backup.Dir,
		Logger:    a.logger.Component("tasks"),
	}); err != nil {
		return fmt.Errorf("failed to register tasks: %w", err)
	}

	a.workerPool = workers.NewPool(a.config.Workers.PoolSize, a.config.Workers.QueueSize, a.logger, a.metrics)
	a.workerPool.Start()

	a.cronStore = cron.NewStore(a.db)
	seeded, err := a.cronStore.UpsertDefaults(a.ctx, a.tasks.List())
	if err != nil {
		return fmt.Errorf("failed to seed default tasks: %w", err)
	}
	a.scheduler = cron.NewScheduler(cron.Options{
		Store:    a.cronStore,
		Registry: a.tasks,
		Ledger:   a.ledger,
		Hub:      a.hub,
		Pool:     a.workerPool,
		Metrics:  a.metrics,
		Logger:   a.logger,
		Location: a.config.Location(),
	})

	// 6. Query orchestrator
	client, err := builders.NewLLMBuilder(a.config, a.logger, a.metrics).Build()
	if err != nil {
		return err
	}
	agentBuilder := builders.NewAgentBuilder(a.config, a.logger, client, a.docs, a.analytics)
	a.orchestrator, err = agentBuilder.BuildOrchestrator(a.ledger, a.hub, a.metrics)
	if err != nil {
		return err
	}
	a.sessionSweep = cleanup.NewScheduler(agentBuilder.Sessions(), cleanup.SchedulerConfig{
		Enabled:  a.config.Agent.SessionIdleMinutes > 0,
		Interval: time.Duration(a.config.Agent.CleanupIntervalMinutes) * time.Minute,
		MaxIdle:  time.Duration(a.config.Agent.SessionIdleMinutes) * time.Minute,
	}, a.logger)
	a.sessionSweep.Start(a.ctx)

	// 7. HTTP API
	a.api = api.NewServer(api.Options{
		Scheduler: a.scheduler,
		Queries:   a.orchestrator,
		Ledger:    a.ledger,
		Hub:       a.hub,
		Metrics:   a.metrics,
		Gatherer:  a.registry,
		Ping:      a.db.PingContext,
		Logger:    a.logger,
	})
	a.httpServer = a.newHTTPServer()

	// 8. Mark as started
	a.started = true
	a.logger.Info("Application initialized",
		logger.Field{Key: "storage", Value: a.config.Storage.Path},
		logger.Field{Key: "tasks", Value: len(a.tasks.List())},
		logger.Field{Key: "seeded_tasks", Value: seeded})
	return nil
}

func (a *App) newHTTPServer() *http.Server {
	s := a.config.Server
	return &http.Server{
		Addr:              s.Addr,
		Handler:           a.api,
		ReadHeaderTimeout: time.Duration(s.ReadTimeoutSeconds) * time.Second,
		ReadTimeout:       time.Duration(s.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(s.WriteTimeoutSeconds) * time.Second,
		ErrorLog:          slog.NewLogLogger(a.logger.StdLogger().Handler(), slog.LevelWarn),
	}
}
