package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/stockpilot/internal/app"
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/version"
)

var (
	serveLogLevel string
	serveAddr     string
	serveNoCron   bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the StockPilot service (main command)",
	Long: `Start the HTTP API, the task scheduler and the query orchestrator.
The service shuts down gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Override from flags
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveNoCron {
		cfg.Scheduler.AutoStart = false
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return validationError(errs)
	}

	log, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	logger.SetDefault(log)

	log.Info("Starting StockPilot",
		logger.Field{Key: "version", Value: version.String()},
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "addr", Value: cfg.Server.Addr},
		logger.Field{Key: "storage", Value: cfg.Storage.Path},
		logger.Field{Key: "llm_provider", Value: cfg.LLM.Provider})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg, log).Run(ctx); err != nil {
		log.Error("StockPilot stopped with error", err)
		return err
	}
	log.Info("StockPilot stopped gracefully")
	return nil
}

func init() {
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Override log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Override the HTTP listen address")
	serveCmd.Flags().BoolVar(&serveNoCron, "no-scheduler", false, "Do not start the task scheduler on boot")
}
