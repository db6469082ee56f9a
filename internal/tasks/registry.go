// Package tasks provides the registry of background task handlers.
//
// Every task is a Definition tagged with a Kind. The registry is the single
// place task names are resolved: unknown names fail with ErrTaskNotFound
// before any side effect happens.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrTaskNotFound is returned for names the registry does not know.
	ErrTaskNotFound = errors.New("task not found")
	// ErrAlreadyRegistered is returned when registering a duplicate name.
	ErrAlreadyRegistered = errors.New("task already registered")
	// ErrInvalidConfig is returned by Validate functions.
	ErrInvalidConfig = errors.New("invalid task config")
)

// Kind tags a task definition.
type Kind string

const (
	KindStockCheck    Kind = "stock_check"
	KindExpiryCheck   Kind = "expiry_check"
	KindDailyReport   Kind = "daily_report"
	KindBackup        Kind = "backup"
	KindLedgerCleanup Kind = "ledger_cleanup"
	KindCustom        Kind = "custom"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindStockCheck, KindExpiryCheck, KindDailyReport, KindBackup, KindLedgerCleanup, KindCustom:
		return true
	}
	return false
}

// Result is the handler output stored in the run ledger.
type Result map[string]any

// Meta describes a task for display and seeding.
type Meta struct {
	DisplayName     string `json:"displayName"`
	Description     string `json:"description"`
	DefaultSchedule string `json:"defaultSchedule"`
	DefaultEnabled  bool   `json:"defaultEnabled"`
	DefaultConfig   Config `json:"defaultConfig"`
}

// Handler runs a task with its merged config.
type Handler func(ctx context.Context, cfg Config) (Result, error)

// Definition is one registered task.
type Definition struct {
	Name     string
	Kind     Kind
	Meta     Meta
	Validate func(cfg Config) error
	Execute  Handler
}

// HandlerError wraps a failure returned (or panicked) by a task handler.
type HandlerError struct {
	Task string
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.Task, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Registry maps task names to definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds def. Names must be unique.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if def.Execute == nil {
		return fmt.Errorf("task %s: execute function is required", def.Name)
	}
	if def.Kind == "" {
		def.Kind = KindCustom
	}
	if !def.Kind.Valid() {
		return fmt.Errorf("task %s: unknown kind %q", def.Name, def.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

// Unregister removes name and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[name]; !ok {
		return false
	}
	delete(r.defs, name)
	return true
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return def, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

// List returns all definitions sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs name with cfg merged over the definition's default config.
// Validation failures and handler errors (including panics) come back as
// *HandlerError.
func (r *Registry) Execute(ctx context.Context, name string, cfg Config) (res Result, err error) {
	def, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	merged := MergeConfig(def.Meta.DefaultConfig, cfg)
	if def.Validate != nil {
		if verr := def.Validate(merged); verr != nil {
			return nil, &HandlerError{Task: name, Err: verr}
		}
	}

	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = &HandlerError{Task: name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	res, err = def.Execute(ctx, merged)
	if err != nil {
		return nil, &HandlerError{Task: name, Err: err}
	}
	return res, nil
}
