package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidsight/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var options []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "submit <video-url>",
		Short: "Submit a video for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseOptions(options)
			if err != nil {
				return err
			}
			job, err := ctx.client().Submit(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, job)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted job %s\n", job.ID)
			fmt.Fprintf(out, "Follow progress with `vidsight watch %s`\n", job.ID)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&options, "option", "o", nil, "Analysis option as key=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the created job as JSON")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analysis jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobList, err := ctx.client().List(cmd.Context(), statuses)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.JobListResponse{Jobs: jobList})
			}
			if len(jobList) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
				return nil
			}
			rows := make([][]string, 0, len(jobList))
			for _, job := range jobList {
				rows = append(rows, []string{
					job.ID,
					job.Status,
					strconv.Itoa(job.Progress) + "%",
					job.CurrentStep,
					job.SourceURL,
					formatAge(job.CreatedAt),
				})
			}
			table := renderTable(
				[]string{"ID", "Status", "Progress", "Step", "Source", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by job status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print jobs as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, job)
			}
			printJobDetail(cmd, job)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job as JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for job %s (status %s)\n", job.ID, job.Status)
			return nil
		},
	}
}

func printJobDetail(cmd *cobra.Command, job api.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:      %s\n", job.ID)
	fmt.Fprintf(out, "Source:   %s\n", job.SourceURL)
	fmt.Fprintf(out, "Status:   %s\n", job.Status)
	fmt.Fprintf(out, "Progress: %d%%\n", job.Progress)
	if job.CurrentStep != "" {
		fmt.Fprintf(out, "Step:     %s\n", job.CurrentStep)
	}
	fmt.Fprintf(out, "Created:  %s\n", job.CreatedAt.Local().Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(out, "Finished: %s\n", job.CompletedAt.Local().Format(time.RFC3339))
	}
	if job.Error != nil {
		fmt.Fprintf(out, "Error:    [%s] %s: %s\n", job.Error.Kind, job.Error.Step, job.Error.Message)
	}
	if len(job.StepResults) == 0 {
		return
	}
	rows := make([][]string, 0, len(job.StepResults))
	for _, res := range job.StepResults {
		detail := res.ErrorDetail
		if res.ErrorKind != "" {
			detail = res.ErrorKind + ": " + detail
		}
		rows = append(rows, []string{
			res.Step,
			res.State,
			strconv.Itoa(res.Attempt),
			detail,
		})
	}
	table := renderTable(
		[]string{"Step", "State", "Attempt", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	)
	fmt.Fprintln(out, table)
}

func parseOptions(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	opts := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid option %q (expected key=value)", pair)
		}
		opts[key] = strings.TrimSpace(value)
	}
	return opts, nil
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}
