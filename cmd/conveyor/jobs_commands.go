package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"conveyor/internal/api"
	"conveyor/internal/queue"
	"conveyor/internal/queueaccess"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsKillCommand(ctx))
	jobsCmd.AddCommand(newJobsSubmitCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				views, err := access.List(cmd.Context(), listStatuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.JobListResponse{Jobs: views})
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}

				rows := make([][]string, 0, len(views))
				for _, view := range views {
					rows = append(rows, []string{
						view.UUID,
						view.TenantID,
						view.Owner,
						view.AppID,
						view.Status,
						fmt.Sprintf("%d", view.RetryCount),
						view.UpdatedAt,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"UUID", "Tenant", "Owner", "App", "Status", "Retries", "Updated"},
					rows,
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by job status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job-uuid>",
		Short: "Show a job with its lifecycle history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				detail, err := access.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if detail == nil {
					return fmt.Errorf("job %s not found", args[0])
				}
				if asJSON {
					return writeJSON(cmd, detail)
				}

				out := cmd.OutOrStdout()
				job := detail.Job
				fmt.Fprintf(out, "UUID:      %s\n", job.UUID)
				fmt.Fprintf(out, "Tenant:    %s\n", job.TenantID)
				fmt.Fprintf(out, "Owner:     %s\n", job.Owner)
				fmt.Fprintf(out, "App:       %s on %s\n", job.AppID, job.ExecutionSystem)
				fmt.Fprintf(out, "Status:    %s (%s)\n", job.Status, job.StatusDetail)
				fmt.Fprintf(out, "Retries:   %d\n", job.RetryCount)
				if job.LocalJobID != "" {
					fmt.Fprintf(out, "Local ID:  %s\n", job.LocalJobID)
				}
				if job.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:     %s\n", job.ErrorMessage)
				}

				if len(detail.Events) > 0 {
					rows := make([][]string, 0, len(detail.Events))
					for _, event := range detail.Events {
						rows = append(rows, []string{event.CreatedAt, event.Status, event.Message})
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTable([]string{"Time", "Status", "Message"}, rows))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-uuid>",
		Short: "Requeue a failed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				view, err := access.Retry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s requeued, now %s\n", view.UUID, view.Status)
				return nil
			})
		},
	}
}

func newJobsKillCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <job-uuid>",
		Short: "Stop an in-flight job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				view, err := access.Kill(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s is now %s\n", view.UUID, view.Status)
				return nil
			})
		},
	}
}

func newJobsSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		tenantID      string
		owner         string
		system        string
		appID         string
		batchQueue    string
		archiveSystem string
		archivePath   string
		inputs        []string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Enqueue a new job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				job, err := store.NewJob(cmd.Context(), queue.NewJobParams{
					TenantID:        tenantID,
					Owner:           owner,
					ExecutionSystem: system,
					AppID:           appID,
					BatchQueue:      batchQueue,
					ArchiveFlag:     archiveSystem != "",
					ArchiveSystem:   archiveSystem,
					ArchivePath:     archivePath,
				})
				if err != nil {
					return err
				}
				for _, input := range inputs {
					if _, err := store.CreateFile(cmd.Context(), queue.NewFileParams{
						TenantID:  tenantID,
						Owner:     owner,
						SystemID:  system,
						Path:      "/scratch/" + job.UUID + "/" + fileName(input),
						SourceURI: input,
						JobUUID:   job.UUID,
					}); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s accepted with %d input(s)\n", job.UUID, len(inputs))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant the job belongs to")
	cmd.Flags().StringVar(&owner, "owner", "", "Job owner")
	cmd.Flags().StringVar(&system, "system", "", "Execution system id")
	cmd.Flags().StringVar(&appID, "app", "", "Application id")
	cmd.Flags().StringVar(&batchQueue, "queue", "", "Remote batch queue")
	cmd.Flags().StringVar(&archiveSystem, "archive-system", "", "Archive outputs to this system")
	cmd.Flags().StringVar(&archivePath, "archive-path", "", "Destination path on the archive system")
	cmd.Flags().StringSliceVarP(&inputs, "input", "i", nil, "Input source URI (repeatable)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("system")
	_ = cmd.MarkFlagRequired("app")
	return cmd
}

func fileName(sourceURI string) string {
	name := sourceURI
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			name = name[i+1:]
			break
		}
	}
	if name == "" {
		return "input.dat"
	}
	return name
}
