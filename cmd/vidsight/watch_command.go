package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"vidsight/internal/api"
	"vidsight/internal/notifications"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Stream live progress for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ctx.client().Events(cmd.Context(), args[0], func(event string, data []byte) error {
				if event == "snapshot" {
					var job api.Job
					if err := json.Unmarshal(data, &job); err != nil {
						return fmt.Errorf("decode snapshot: %w", err)
					}
					fmt.Fprintf(out, "%s  %s  %d%%\n", job.ID, job.Status, job.Progress)
					return nil
				}
				var ev notifications.Event
				if err := json.Unmarshal(data, &ev); err != nil {
					return fmt.Errorf("decode event: %w", err)
				}
				printEvent(out, ev)
				return nil
			})
		},
	}
}

func printEvent(out io.Writer, ev notifications.Event) {
	switch ev.Type {
	case notifications.EventProgress:
		line := fmt.Sprintf("%3d%%", ev.OverallProgress)
		if ev.Step != "" {
			line += fmt.Sprintf("  [%s %.0f%%]", ev.Step, ev.StepProgress)
		}
		if ev.Message != "" {
			line += "  " + ev.Message
		}
		fmt.Fprintln(out, line)
	case notifications.EventCompleted:
		fmt.Fprintf(out, "completed  %s\n", ev.Message)
	case notifications.EventFailed:
		fmt.Fprintf(out, "failed [%s]  %s\n", ev.ErrorKind, ev.Message)
	case notifications.EventCancelled:
		fmt.Fprintln(out, "cancelled")
	}
}
