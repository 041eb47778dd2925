package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "report <job-id>",
		Short: "Fetch the analysis report for a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			switch format {
			case "json", "markdown", "md":
			default:
				return fmt.Errorf("unsupported format %q (use json or markdown)", format)
			}

			body, _, err := ctx.client().Export(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}

			if output != "" {
				if err := os.WriteFile(output, body, 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote report to %s\n", output)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), string(body))
			if len(body) > 0 && body[len(body)-1] != '\n' {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Report format: json or markdown")
	cmd.Flags().StringVarP(&output, "output", "O", "", "Write the report to a file instead of stdout")
	return cmd
}
