package cmd

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/metagraph/api/schemas"
	"github.com/xkilldash9x/metagraph/internal/observability"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		scope       schemas.Scope
		archivePath string
		snapshotJob string
		inMemory    bool
		concurrency int
	)

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Builds the dependency graph from a local archive or a stored snapshot",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if (archivePath == "") == (snapshotJob == "") {
				return fmt.Errorf("exactly one of --archive or --snapshot is required")
			}
			if err := requireScope(scope, true); err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				if concurrency <= 0 {
					return fmt.Errorf("--concurrency must be a positive integer")
				}
				a.cfg.SetExtractionConcurrency(concurrency)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var data []byte
			if archivePath != "" {
				path, err := homedir.Expand(archivePath)
				if err != nil {
					return err
				}
				data, err = os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read archive: %w", err)
				}
			}

			components, err := a.components(cmd, inMemory)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			var jobID string
			if data != nil {
				jobID, err = components.Service.StartLocalAnalysis(ctx, scope, data)
			} else {
				jobID, err = components.Service.StartSnapshotAnalysis(ctx, scope, snapshotJob)
			}
			if err != nil {
				return err
			}
			observability.GetLogger().Info("Analysis started", observability.JobFields(jobID, scope)...)

			components.Service.Wait()
			return reportJob(cmd, components.Tracker, jobID)
		},
	}

	flags := analyzeCmd.Flags()
	flags.StringVar(&archivePath, "archive", "", "path to a retrieve zip")
	flags.StringVar(&snapshotJob, "snapshot", "", "job id whose stored archive is analyzed again")
	addScopeFlags(flags, &scope)
	flags.BoolVar(&inMemory, "memory", false, "use the in-memory store")
	flags.IntVar(&concurrency, "concurrency", 0, "override extraction.analysis_concurrency")
	return analyzeCmd
}
