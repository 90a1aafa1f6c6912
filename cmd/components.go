package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newComponentsCmd(a *app) *cobra.Command {
	var (
		jobID string
		stats bool
	)
	componentsCmd := &cobra.Command{
		Use:   "components",
		Short: "Lists the components stored by a job",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if jobID == "" {
				return fmt.Errorf("--job is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := a.components(cmd, false)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			if stats {
				counts, err := components.Store.TypeStatsByJob(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), counts)
			}
			list, err := components.Store.ComponentsByJob(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), list)
		},
	}
	componentsCmd.Flags().StringVar(&jobID, "job", "", "job id")
	componentsCmd.Flags().BoolVar(&stats, "stats", false, "print component counts per type instead")
	return componentsCmd
}
