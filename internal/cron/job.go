// Package cron owns the persisted task schedule and the scheduler that binds
// enabled tasks to robfig/cron timers and executes them through the worker
// pool.
package cron

import (
	"time"

	"github.com/aatumaykin/stockpilot/internal/ledger"
)

// ScheduledTask is the persisted schedule state of one task.
type ScheduledTask struct {
	Name               string         `json:"name"`
	DisplayName        string         `json:"displayName"`
	Description        string         `json:"description"`
	ScheduleExpression string         `json:"scheduleExpression"`
	Enabled            bool           `json:"enabled"`
	TaskKind           string         `json:"taskKind"`
	Config             map[string]any `json:"config"`
	LastRun            *time.Time     `json:"lastRun,omitempty"`
	NextRun            *time.Time     `json:"nextRun,omitempty"`
	RunCount           int            `json:"runCount"`
	FailCount          int            `json:"failCount"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// State is the global scheduler state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
)

// TaskSummary is a ScheduledTask plus whether a timer is currently bound.
type TaskSummary struct {
	ScheduledTask
	IsActive bool `json:"isActive"`
}

// Status is the scheduler overview returned to the API.
type Status struct {
	Running     bool          `json:"isRunning"`
	State       State         `json:"state"`
	ActiveCount int           `json:"activeTasks"`
	Tasks       []TaskSummary `json:"tasks"`
	Stats       ledger.Stats  `json:"stats"`
}
