package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/stockpilot/internal/agent"
	"github.com/aatumaykin/stockpilot/internal/app"
)

var queryJSON bool

var queryCmd = &cobra.Command{
	Use:   `query "<question>"`,
	Short: "Ask a question about inventory, sales or customers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		return withApp(cmd.Context(), func(a *app.App) error {
			res, err := a.Orchestrator().Process(cmd.Context(), agent.Request{Query: text, UserID: "cli"})
			if err != nil {
				return err
			}
			if queryJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			if !res.Success {
				return errors.New(string(res.Type) + ": " + res.Error)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		})
	},
}

func init() {
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Print the full result as JSON")
}
