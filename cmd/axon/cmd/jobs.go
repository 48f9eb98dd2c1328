package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/axon-dev/axon/internal/queue"
)

// newJobsCmd creates the jobs command group for queue introspection.
func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage queued embed jobs",
	}

	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsShowCmd())
	cmd.AddCommand(newJobsPurgeCmd())

	return cmd
}

func openQueue() (*queue.Queue, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return queue.Open(cfg.Embedder.QueueDir, nil,
		queue.WithMaxRetries(cfg.Embedder.MaxRetries))
}

func newJobsListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all jobs in the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue()
			if err != nil {
				return err
			}

			jobs, skipped, err := q.List()
			if err != nil {
				return err
			}

			if jsonOutput || jsonByDefault() {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"jobs":      jobs,
					"corrupted": skipped,
				})
			}

			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty.")
			} else {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "JOB ID\tSTATUS\tRETRIES\tUPDATED\tURL")
				for _, job := range jobs {
					fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
						job.JobID, job.Status, job.Retries, job.MaxRetries,
						job.UpdatedAt.Format("2006-01-02 15:04:05"), job.URL)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}
			if skipped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Skipped %d corrupted job file(s).\n", skipped)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newJobsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue()
			if err != nil {
				return err
			}

			result := q.GetDetailed(args[0])
			switch result.Status {
			case queue.StatusNotFound:
				return fmt.Errorf("job %s not found", args[0])
			case queue.StatusCorrupted:
				return fmt.Errorf("job %s is corrupted: %v", args[0], result.Err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result.Job)
		},
	}
}

func newJobsPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove all completed and failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue()
			if err != nil {
				return err
			}

			removed, err := q.CleanupTerminal(0)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s).\n", removed)
			return nil
		},
	}
}
