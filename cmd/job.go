package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/metagraph/api/schemas"
)

func newJobCmd(a *app) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Inspects extraction jobs",
	}
	jobCmd.AddCommand(newJobStatusCmd(a), newJobListCmd(a))
	return jobCmd
}

func newJobStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Prints the record of one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := a.components(cmd, false)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			job, err := components.Tracker.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), job)
		},
	}
}

func newJobListCmd(a *app) *cobra.Command {
	var (
		scope  schemas.Scope
		limit  int
		latest bool
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lists jobs of an org, newest first",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return requireScope(scope, latest)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := a.components(cmd, false)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			if latest {
				job, err := components.Store.LatestJob(cmd.Context(), scope)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), job)
			}
			list, err := components.Store.ListJobs(cmd.Context(), scope, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), list)
		},
	}
	flags := listCmd.Flags()
	addScopeFlags(flags, &scope)
	flags.IntVar(&limit, "limit", 0, "maximum number of jobs (default 20)")
	flags.BoolVar(&latest, "latest", false, "print only the newest job of the scope")
	return listCmd
}
