package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tokmz/apsched/pkg/scheduler"
	"github.com/tokmz/apsched/pkg/scheduler/storage"
)

var (
	jobsStore  string
	jobsUser   string
	jobsStatus string
	jobsAll    bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List scheduled jobs",
	Long: `List the jobs of the configured job stores.

With --user the SQL job store is queried for that user's jobs together with
their run status; --status and --all narrow or widen the result.`,
	RunE: listJobs,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStore, "jobstore", "", "only list jobs of this job store")
	jobsCmd.Flags().StringVar(&jobsUser, "user", "", "list jobs owned by this user id")
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "with --user, only jobs in this status (PENDING, RUNNING, COMPLETED, FAILED, CANCELLED)")
	jobsCmd.Flags().BoolVar(&jobsAll, "all", false, "with --user, include finished jobs")
}

func listJobs(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configFile, false)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if jobsUser == "" {
		if err := a.sched.Start(ctx, true); err != nil {
			return err
		}
		defer func() { _ = a.sched.Shutdown(context.Background(), false) }()
		return a.sched.PrintJobs(ctx, cmd.OutOrStdout(), jobsStore)
	}

	userID, err := uuid.Parse(jobsUser)
	if err != nil {
		return fmt.Errorf("invalid --user: %w", err)
	}
	filter, err := userJobFilter(jobsStatus, jobsAll)
	if err != nil {
		return err
	}

	store, err := a.statusStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Shutdown(context.Background()) }()

	jobs, err := store.GetUserJobs(ctx, userID, filter)
	if err != nil {
		return err
	}
	return printUserJobs(ctx, cmd.OutOrStdout(), store, jobs)
}

func userJobFilter(status string, all bool) (storage.UserJobFilter, error) {
	var filter storage.UserJobFilter
	if status != "" {
		s := storage.JobStatus(status)
		if !s.Valid() {
			return filter, fmt.Errorf("invalid --status %q", status)
		}
		filter.Status = &s
		return filter, nil
	}
	if !all {
		pending := true
		filter.Pending = &pending
	}
	return filter, nil
}

func printUserJobs(ctx context.Context, w io.Writer, store *storage.GormStore, jobs []*scheduler.Job) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, "No scheduled jobs")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tNEXT RUN\tSTATUS\tERROR")
	for _, job := range jobs {
		next := "-"
		if job.NextRunTime != nil {
			next = job.NextRunTime.Local().Format(time.RFC3339)
		}
		status, errText := "-", ""
		if record, err := store.GetRecord(ctx, job.ID); err == nil {
			status = string(record.Status)
			if record.Error != nil {
				errText = *record.Error
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", job.ID, job.Name, next, status, errText)
	}
	return tw.Flush()
}
