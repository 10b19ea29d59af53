package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/model"
)

type listFlags struct {
	status string
	limit  int
	offset int
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.status, "status", "", "Only jobs with this status (queued, processing, completed, failed)")
	cmd.Flags().IntVar(&f.limit, "limit", 20, "Page size")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "Number of jobs to skip")
}

func (f *listFlags) filter() (model.JobListFilter, error) {
	st := model.JobStatus(f.status)
	if st != "" && !st.Valid() {
		return model.JobListFilter{}, fmt.Errorf("unknown status %q", f.status)
	}
	if f.limit < 0 || f.offset < 0 {
		return model.JobListFilter{}, errors.New("--limit and --offset must not be negative")
	}
	return model.JobListFilter{Status: st, Limit: f.limit, Offset: f.offset}, nil
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List and delete generation jobs",
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsDeleteCommand(ctx))
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	flags := &listFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := flags.filter()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			list, err := client.ListJobs(cmd.Context(), f)
			if err != nil {
				return errors.New(apperr.UserMessage(err))
			}
			return printJobList(cmd, ctx, list)
		},
	}
	flags.register(cmd)
	return cmd
}

func printJobList(cmd *cobra.Command, ctx *commandContext, list *model.JobList) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, list)
	}
	if len(list.Jobs) == 0 {
		printf(cmd, "No jobs.\n")
		return nil
	}
	rows := make([][]string, 0, len(list.Jobs))
	for _, j := range list.Jobs {
		site := model.Deref(j.DeploymentURL)
		if j.Status == model.JobFailed {
			site = model.Deref(j.ErrorMessage)
		}
		rows = append(rows, []string{j.ID, j.CompanyName, string(j.Status), formatPercent(j.ProgressPercentage), since(j.CreatedAt.Time), site})
	}
	printf(cmd, "%s\n", renderTable(
		[]string{"ID", "Company", "Status", "Progress", "Created", "Site / error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	if list.Total > len(list.Jobs) {
		printf(cmd, "Showing %d-%d of %s jobs\n", list.Offset+1, list.Offset+len(list.Jobs), humanize.Comma(int64(list.Total)))
	}
	return nil
}

func newJobsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if err := client.DeleteJob(cmd.Context(), args[0]); err != nil {
				return errors.New(apperr.UserMessage(err))
			}
			if store, err := ctx.hintStore(); err == nil {
				if err := store.ForgetJob(cmd.Context(), args[0]); err != nil {
					ctx.log().Warn("clearing active job hint", logging.Err(err))
				}
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{"deleted": args[0]})
			}
			printf(cmd, "Deleted job %s\n", args[0])
			return nil
		},
	}
}

// ─── Admin ─────────────────────────────────────────────────────────────

func newAdminCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrator views (requires an admin token)",
	}
	cmd.AddCommand(newAdminUsersCommand(ctx))
	cmd.AddCommand(newAdminJobsCommand(ctx))
	cmd.AddCommand(newAdminStatsCommand(ctx))
	return cmd
}

func newAdminUsersCommand(ctx *commandContext) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			users, err := client.ListUsers(cmd.Context(), limit, offset)
			if err != nil {
				return errors.New(apperr.UserMessage(err))
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, users)
			}
			rows := make([][]string, 0, len(users.Users))
			for _, u := range users.Users {
				rows = append(rows, []string{u.Email, u.Name, u.Role, humanize.Comma(int64(u.JobCount)), since(u.CreatedAt.Time)})
			}
			printf(cmd, "%s\n", renderTable(
				[]string{"Email", "Name", "Role", "Jobs", "Joined"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of users to skip")
	return cmd
}

func newAdminJobsCommand(ctx *commandContext) *cobra.Command {
	flags := &listFlags{}
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List every user's jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := flags.filter()
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			list, err := client.ListAllJobs(cmd.Context(), f)
			if err != nil {
				return errors.New(apperr.UserMessage(err))
			}
			return printJobList(cmd, ctx, list)
		},
	}
	flags.register(cmd)
	return cmd
}

func newAdminStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show platform statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			st, err := client.GetStats(cmd.Context())
			if err != nil {
				return errors.New(apperr.UserMessage(err))
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, st)
			}
			rows := [][]string{
				{"Users", humanize.Comma(int64(st.TotalUsers))},
				{"Jobs", humanize.Comma(int64(st.TotalJobs))},
				{"Active jobs", humanize.Comma(int64(st.ActiveJobs))},
				{"Jobs (24h)", humanize.Comma(int64(st.JobsLast24h))},
				{"Success rate", humanize.FormatFloat("#.#", st.SuccessRate) + "%"},
				{"Avg duration", humanize.FormatFloat("#.#", st.AvgDurationSec) + "s"},
			}
			statuses := make([]string, 0, len(st.JobsByStatus))
			for s := range st.JobsByStatus {
				statuses = append(statuses, s)
			}
			sort.Strings(statuses)
			for _, s := range statuses {
				rows = append(rows, []string{"  " + s, humanize.Comma(int64(st.JobsByStatus[s]))})
			}
			printf(cmd, "%s\n", renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}
