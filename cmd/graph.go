package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newGraphCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "graph <component-id> [component-id...]",
		Short: "Prints the dependency network of a component, or the subgraph of several",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid component id %q", arg)
				}
				ids = append(ids, id)
			}

			components, err := a.components(cmd, false)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			if len(ids) == 1 {
				net, err := components.Graph.Network(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), net)
			}
			sub, err := components.Graph.Subgraph(cmd.Context(), ids)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sub)
		},
	}
}
