package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/aatumaykin/stockpilot/internal/constants"
	"github.com/aatumaykin/stockpilot/internal/ledger"
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/metrics"
	"github.com/aatumaykin/stockpilot/internal/notify"
	"github.com/aatumaykin/stockpilot/internal/tasks"
	"github.com/aatumaykin/stockpilot/internal/workers"
)

// JobSubmitter is the part of the worker pool the scheduler needs.
type JobSubmitter interface {
	TrySubmit(job workers.Job) error
}

// Options configures a Scheduler. Only Store, Registry and Ledger are
// required.
type Options struct {
	Store    *Store
	Registry *tasks.Registry
	Ledger   *ledger.Ledger
	Hub      *notify.Hub
	Pool     JobSubmitter
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
	Location *time.Location
	Now      func() time.Time
}

// Scheduler binds enabled tasks to cron timers and executes them.
//
// Timer callbacks only enqueue a job on the pool; the run itself happens on
// a worker. A state mutex guards Start/Stop and a keyed mutex serialises
// bind-affecting operations per task name. Lock order is stateMu, then the
// name lock, then bindMu.
type Scheduler struct {
	store    *Store
	registry *tasks.Registry
	ledger   *ledger.Ledger
	hub      *notify.Hub
	pool     JobSubmitter
	metrics  *metrics.Metrics
	logger   *logger.Logger
	loc      *time.Location
	now      func() time.Time

	stateMu sync.Mutex
	state   State
	cron    *cron.Cron

	bindMu   sync.Mutex
	entries  map[string]cron.EntryID
	bindable bool // timers may be added only while starting or running

	names *keyedMutex
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		store:    opts.Store,
		registry: opts.Registry,
		ledger:   opts.Ledger,
		hub:      opts.Hub,
		pool:     opts.Pool,
		metrics:  opts.Metrics,
		logger:   opts.Logger.Component("scheduler"),
		loc:      opts.Location,
		now:      opts.Now,
		state:    StateStopped,
		cron:     cron.New(cron.WithLocation(opts.Location), cron.WithParser(parser)),
		entries:  make(map[string]cron.EntryID),
		names:    newKeyedMutex(),
	}
}

// State returns the global scheduler state.
func (s *Scheduler) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	return s.State() == StateRunning
}

// Start seeds the default schedule, binds every enabled task and starts the
// timer runner. It is a no-op when already running. On failure every binding
// made so far is removed and the scheduler stays stopped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.state == StateRunning {
		return nil
	}
	s.state = StateStarting
	s.bindMu.Lock()
	s.bindable = true
	s.bindMu.Unlock()

	if err := s.startLocked(ctx); err != nil {
		s.clearNextRuns(s.unbindAll())
		s.state = StateStopped
		s.logger.Error("scheduler start failed", err)
		return err
	}

	s.cron.Start()
	s.state = StateRunning
	s.metrics.SetSchedulerRunning(true)
	s.logger.Info("scheduler started", logger.Field{Key: "active_tasks", Value: s.activeCount()})
	return nil
}

func (s *Scheduler) startLocked(ctx context.Context) error {
	seeded, err := s.store.UpsertDefaults(ctx, s.registry.List())
	if err != nil {
		return fmt.Errorf("seed default tasks: %w", err)
	}
	if seeded > 0 {
		s.logger.Info("seeded default tasks", logger.Field{Key: "count", Value: seeded})
	}

	enabled, err := s.store.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load enabled tasks: %w", err)
	}
	for _, t := range enabled {
		if !s.registry.Has(t.Name) {
			s.logger.Warn("skipping scheduled task without handler", logger.Field{Key: "task", Value: t.Name})
			continue
		}
		if err := s.bindIfEnabled(ctx, t.Name); err != nil {
			return fmt.Errorf("bind %s: %w", t.Name, err)
		}
	}
	return nil
}

// bindIfEnabled re-reads the row under the name lock so a concurrent Disable
// cannot be overtaken by a stale ListEnabled snapshot.
func (s *Scheduler) bindIfEnabled(ctx context.Context, name string) error {
	unlock := s.names.Lock(name)
	defer unlock()

	t, err := s.store.Get(ctx, name)
	if err != nil {
		return err
	}
	if !t.Enabled {
		return nil
	}
	return s.bind(ctx, t)
}

// Stop removes every timer and stops the runner. Runs already handed to the
// pool finish and still reach the ledger. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.state == StateStopped {
		return
	}
	unbound := s.unbindAll()
	s.cron.Stop()
	s.state = StateStopped
	s.clearNextRuns(unbound)
	s.metrics.SetSchedulerRunning(false)
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) clearNextRuns(names []string) {
	for _, name := range names {
		if err := s.store.SetNextRun(context.Background(), name, nil); err != nil {
			s.logger.Error("failed to clear next run", err, logger.Field{Key: "task", Value: name})
		}
	}
}

// Bind validates t's expression, replaces any existing timer for t.Name and
// persists the computed next run. While the scheduler is stopped nothing is
// bound and the persisted next run is cleared.
func (s *Scheduler) Bind(ctx context.Context, t ScheduledTask) error {
	unlock := s.names.Lock(t.Name)
	defer unlock()
	return s.bind(ctx, t)
}

func (s *Scheduler) bind(ctx context.Context, t ScheduledTask) error {
	sched, err := Parse(t.ScheduleExpression)
	if err != nil {
		return err
	}
	name := t.Name

	// next_run is written under bindMu so Stop cannot clear it in between.
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	if !s.bindable {
		return s.store.SetNextRun(ctx, name, nil)
	}

	next := sched.Next(s.now().In(s.loc))
	if err := s.store.SetNextRun(ctx, name, &next); err != nil {
		return err
	}
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
	}
	s.entries[name] = s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(name) }))
	s.metrics.SetActiveBindings(len(s.entries))

	s.logger.Debug("task bound",
		logger.Field{Key: "task", Value: name},
		logger.Field{Key: "schedule", Value: t.ScheduleExpression},
		logger.Field{Key: "next_run", Value: next})
	return nil
}

// Unbind removes the timer for name. Unknown names are ignored.
func (s *Scheduler) Unbind(name string) {
	unlock := s.names.Lock(name)
	defer unlock()
	s.unbind(name)
}

func (s *Scheduler) unbind(name string) {
	s.bindMu.Lock()
	id, ok := s.entries[name]
	if ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	active := len(s.entries)
	s.bindMu.Unlock()
	if ok {
		s.metrics.SetActiveBindings(active)
		s.logger.Debug("task unbound", logger.Field{Key: "task", Value: name})
	}
}

// unbindAll removes every timer, refuses further bindings and returns the
// names that were bound.
func (s *Scheduler) unbindAll() []string {
	s.bindMu.Lock()
	s.bindable = false
	names := make([]string, 0, len(s.entries))
	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
		names = append(names, name)
	}
	s.bindMu.Unlock()
	s.metrics.SetActiveBindings(0)
	return names
}

// IsActive reports whether a timer is bound for name.
func (s *Scheduler) IsActive(name string) bool {
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	_, ok := s.entries[name]
	return ok
}

func (s *Scheduler) activeCount() int {
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	return len(s.entries)
}

// fire runs on the cron goroutine and only hands the run to the pool.
func (s *Scheduler) fire(name string) {
	run := func(ctx context.Context) error {
		_, err := s.run(ctx, name, constants.TriggerScheduler, "")
		return err
	}

	if s.pool == nil {
		if err := run(context.Background()); err != nil {
			s.logger.Warn("scheduled run failed",
				logger.Field{Key: "task", Value: name},
				logger.Field{Key: "error", Value: err.Error()})
		}
		return
	}

	job := workers.Job{ID: uuid.NewString(), Name: name, Run: run}
	if err := s.pool.TrySubmit(job); err != nil {
		s.logger.Error("failed to enqueue scheduled run", err, logger.Field{Key: "task", Value: name})
		s.recordDropped(name, err)
	}
}

// recordDropped books a firing the pool refused as a failed scheduler run.
func (s *Scheduler) recordDropped(name string, cause error) {
	ctx := context.Background()
	runErr := fmt.Errorf("scheduled run dropped: %w", cause)
	log := s.logger.With(logger.Field{Key: "task", Value: name})

	id, err := s.ledger.Create(ctx, constants.AgentKindScheduler, name, map[string]any{constants.MetaTrigger: constants.TriggerScheduler})
	if err == nil {
		_, err = s.ledger.Fail(ctx, id, runErr.Error())
	}
	if err != nil {
		log.Error("failed to record dropped run", err)
	}
	if err := s.store.RecordRun(ctx, name, false, s.nextRun(ctx, name)); err != nil && !errors.Is(err, tasks.ErrTaskNotFound) {
		log.Error("failed to update schedule counters", err)
	}

	s.metrics.RecordTaskRun(name, constants.TriggerScheduler, false, 0)
	if s.hub != nil {
		s.hub.TaskResult(name, constants.TriggerScheduler, runErr)
	}
}

// run loads the persisted config and executes name.
func (s *Scheduler) run(ctx context.Context, name, trigger, actorID string) (tasks.Result, error) {
	var cfg tasks.Config
	t, err := s.store.Get(ctx, name)
	switch {
	case err == nil:
		cfg = t.Config
	case errors.Is(err, tasks.ErrTaskNotFound):
		// registered but never persisted: handler defaults only
	default:
		return nil, err
	}
	return s.Execute(ctx, name, cfg, trigger, actorID)
}

// Execute runs name with cfg (merged over the handler defaults) and records
// the outcome in the ledger, the schedule store, metrics and the
// notification hub. The handler error is returned unchanged.
func (s *Scheduler) Execute(ctx context.Context, name string, cfg tasks.Config, trigger, actorID string) (tasks.Result, error) {
	if !s.registry.Has(name) {
		return nil, fmt.Errorf("%w: %s", tasks.ErrTaskNotFound, name)
	}

	meta := map[string]any{constants.MetaTrigger: trigger}
	if actorID != "" {
		meta[constants.MetaActorID] = actorID
	}
	runID, err := s.ledger.Create(ctx, constants.AgentKindScheduler, name, meta)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(
		logger.Field{Key: "task", Value: name},
		logger.Field{Key: "run_id", Value: runID},
		logger.Field{Key: "trigger", Value: trigger})
	log.Info("task run started")

	start := time.Now()
	res, runErr := s.registry.Execute(ctx, name, cfg)
	elapsed := time.Since(start)

	// bookkeeping must land even when the caller's context is gone
	bg := context.WithoutCancel(ctx)
	if runErr != nil {
		if _, err := s.ledger.Fail(bg, runID, runErr.Error()); err != nil {
			log.Error("failed to record run failure", err)
		}
	} else if _, err := s.ledger.Complete(bg, runID, res); err != nil {
		log.Error("failed to record run result", err)
	}

	if err := s.store.RecordRun(bg, name, runErr == nil, s.nextRun(bg, name)); err != nil && !errors.Is(err, tasks.ErrTaskNotFound) {
		log.Error("failed to update schedule counters", err)
	}

	s.metrics.RecordTaskRun(name, trigger, runErr == nil, elapsed)
	if s.hub != nil {
		s.hub.TaskResult(name, trigger, runErr)
	}

	if runErr != nil {
		log.Error("task run failed", runErr, logger.Field{Key: "duration_ms", Value: elapsed.Milliseconds()})
		return nil, runErr
	}
	log.Info("task run completed", logger.Field{Key: "duration_ms", Value: elapsed.Milliseconds()})
	return res, nil
}

// nextRun returns the next activation for a bound task, nil otherwise.
func (s *Scheduler) nextRun(ctx context.Context, name string) *time.Time {
	if !s.IsActive(name) {
		return nil
	}
	t, err := s.store.Get(ctx, name)
	if err != nil {
		return nil
	}
	next, err := NextRun(t.ScheduleExpression, s.now().In(s.loc))
	if err != nil {
		return nil
	}
	return &next
}

// Trigger executes name now with its persisted config. Unknown names fail
// with tasks.ErrTaskNotFound before anything is recorded.
func (s *Scheduler) Trigger(ctx context.Context, name, actorID string) (tasks.Result, error) {
	if !s.registry.Has(name) {
		return nil, fmt.Errorf("%w: %s", tasks.ErrTaskNotFound, name)
	}
	return s.run(ctx, name, constants.TriggerManual, actorID)
}

// Enable persists enabled=true and binds the task when the scheduler runs.
func (s *Scheduler) Enable(ctx context.Context, name string) error {
	return s.setEnabled(ctx, name, true)
}

// Disable persists enabled=false, removes the timer and clears the next run.
func (s *Scheduler) Disable(ctx context.Context, name string) error {
	return s.setEnabled(ctx, name, false)
}

func (s *Scheduler) setEnabled(ctx context.Context, name string, enabled bool) error {
	unlock := s.names.Lock(name)
	defer unlock()

	if err := s.store.SetEnabled(ctx, name, enabled); err != nil {
		return err
	}
	if !enabled {
		s.unbind(name)
		return s.store.SetNextRun(ctx, name, nil)
	}
	t, err := s.store.Get(ctx, name)
	if err != nil {
		return err
	}
	return s.bind(ctx, t)
}

// Reschedule validates and persists expr, rebinding when the task is enabled
// and the scheduler runs. Otherwise the persisted next run is cleared.
func (s *Scheduler) Reschedule(ctx context.Context, name, expr string) error {
	if _, err := Parse(expr); err != nil {
		return err
	}

	unlock := s.names.Lock(name)
	defer unlock()

	if err := s.store.SetSchedule(ctx, name, expr); err != nil {
		return err
	}
	t, err := s.store.Get(ctx, name)
	if err != nil {
		return err
	}
	if t.Enabled {
		return s.bind(ctx, t)
	}
	return s.store.SetNextRun(ctx, name, nil)
}

// UpdateConfig validates partial against the handler and merges it into the
// persisted config.
func (s *Scheduler) UpdateConfig(ctx context.Context, name string, partial map[string]any) (map[string]any, error) {
	def, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}

	unlock := s.names.Lock(name)
	defer unlock()

	current, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if def.Validate != nil {
		prospective := tasks.MergeConfig(def.Meta.DefaultConfig, tasks.MergeConfig(current.Config, partial))
		if err := def.Validate(prospective); err != nil {
			return nil, err
		}
	}
	return s.store.MergeConfig(ctx, name, partial)
}

// Status returns the running flag, every persisted task and ledger stats.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	state := s.State()
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return Status{}, err
	}
	stats, err := s.ledger.Stats(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{Running: state == StateRunning, State: state, Stats: stats, Tasks: make([]TaskSummary, 0, len(all))}
	for _, t := range all {
		active := s.IsActive(t.Name)
		if active {
			st.ActiveCount++
		}
		st.Tasks = append(st.Tasks, TaskSummary{ScheduledTask: t, IsActive: active})
	}
	return st, nil
}

// Tasks returns every persisted task with its binding flag.
func (s *Scheduler) Tasks(ctx context.Context) ([]TaskSummary, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TaskSummary, 0, len(all))
	for _, t := range all {
		out = append(out, TaskSummary{ScheduledTask: t, IsActive: s.IsActive(t.Name)})
	}
	return out, nil
}
