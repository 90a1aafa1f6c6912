package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/metagraph/api/schemas"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		scope  schemas.Scope
		family string
		limit  int
	)
	searchCmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Finds components by name, label or content",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return requireScope(scope, false)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := a.components(cmd, false)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			found, err := components.Store.SearchComponents(cmd.Context(), schemas.SearchQuery{
				Scope:  scope,
				Text:   args[0],
				Family: schemas.Family(family),
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), found)
		},
	}
	flags := searchCmd.Flags()
	addScopeFlags(flags, &scope)
	flags.StringVar(&family, "type", "", "restrict to one metadata type, e.g. ApexClass")
	flags.IntVar(&limit, "limit", 0, "maximum number of results (default 50)")
	return searchCmd
}
