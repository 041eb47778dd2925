package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and executor health",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:  running (pid %d)\n", status.PID)
			if status.Version != "" {
				fmt.Fprintf(out, "Version: %s\n", status.Version)
			}

			if len(status.Jobs) > 0 {
				names := make([]string, 0, len(status.Jobs))
				for name := range status.Jobs {
					names = append(names, name)
				}
				sort.Strings(names)
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					rows = append(rows, []string{name, strconv.Itoa(status.Jobs[name])})
				}
				table := renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(out, table)
			} else {
				fmt.Fprintln(out, "No jobs recorded")
			}

			if len(status.Steps) > 0 {
				rows := make([][]string, 0, len(status.Steps))
				for _, step := range status.Steps {
					rows = append(rows, []string{step.Name, yesNo(step.Ready), step.Detail})
				}
				table := renderTable([]string{"Step", "Ready", "Detail"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft})
				fmt.Fprintln(out, table)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
