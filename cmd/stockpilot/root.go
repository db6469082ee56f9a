package main

import (
	"github.com/spf13/cobra"

	"github.com/aatumaykin/stockpilot/internal/constants"
)

var (
	configPath string
	envPath    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stockpilot",
	Short: "StockPilot - pharmacy back-office agent service",
	Long: `StockPilot runs scheduled inventory checks, reports and backups, answers
natural-language questions about stock, sales and customers, and records every
run in a shared ledger.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", constants.DefaultConfigPath, "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", constants.DefaultEnvPath, "Path to .env file loaded before the configuration")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(importCmd)
}
