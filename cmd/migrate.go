package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/metagraph/internal/observability"
	"github.com/xkilldash9x/metagraph/internal/store"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies the database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := a.cfg.Database().URL
			if url == "" {
				return fmt.Errorf("database URL is not configured (hint: set %s_DATABASE_URL)", envPrefix)
			}
			if err := store.Migrate(url, observability.GetLogger()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
}
