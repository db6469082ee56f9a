package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/stockpilot/internal/app"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and run scheduled tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every scheduled task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			list, err := a.Scheduler().Tasks(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSCHEDULE\tENABLED\tRUNS\tFAILS\tLAST RUN")
			for _, t := range list {
				last := "-"
				if t.LastRun != nil {
					last = t.LastRun.Local().Format(time.DateTime)
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%d\t%s\n",
					t.Name, t.ScheduleExpression, t.Enabled, t.RunCount, t.FailCount, last)
			}
			return w.Flush()
		})
	},
}

var tasksRunActor string

var tasksRunCmd = &cobra.Command{
	Use:   "run <task-name>",
	Short: "Run a task now and print its result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			res, err := a.Scheduler().Trigger(cmd.Context(), args[0], tasksRunActor)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		})
	},
}

func init() {
	tasksRunCmd.Flags().StringVar(&tasksRunActor, "actor", "cli", "Actor id recorded in the run ledger")
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksRunCmd)
}
