package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aatumaykin/stockpilot/internal/app"
	"github.com/aatumaykin/stockpilot/internal/config"
	"github.com/aatumaykin/stockpilot/internal/logger"
)

// loadConfig loads the .env file and the TOML configuration. A missing
// config file at the default path falls back to defaults.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadEnvOptional(envPath); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) && !userSetConfig() {
		return config.Default(), nil
	}
	return cfg, err
}

func userSetConfig() bool {
	f := rootCmd.PersistentFlags().Lookup("config")
	return f != nil && f.Changed
}

// validationError joins config.Validate results.
func validationError(errs []error) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, "  - "+e.Error())
	}
	return fmt.Errorf("configuration validation failed:\n%s", strings.Join(msgs, "\n"))
}

// newLogger builds the logger from cfg. CLI commands other than serve log to
// stderr so their stdout stays machine-readable.
func newLogger(cfg *config.Config, cli bool) (*logger.Logger, error) {
	lc := logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}
	if cli {
		lc.Format = "text"
		if lc.Output == "" || strings.EqualFold(lc.Output, "stdout") {
			lc.Output = "stderr"
		}
		if strings.EqualFold(lc.Level, "info") || strings.EqualFold(lc.Level, "debug") {
			lc.Level = "warn"
		}
	}
	return logger.New(lc)
}

// withApp loads the configuration, initializes the application without the
// HTTP listener, runs fn and shuts down.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return validationError(errs)
	}
	log, err := newLogger(cfg, true)
	if err != nil {
		return err
	}

	a := app.New(cfg, log)
	if err := a.Initialize(ctx); err != nil {
		return err
	}
	runErr := fn(a)
	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
