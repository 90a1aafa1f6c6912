package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/xkilldash9x/metagraph/api/schemas"
)

func addScopeFlags(flags *pflag.FlagSet, scope *schemas.Scope) {
	flags.StringVar(&scope.OrgID, "org", "", "organization id")
	flags.StringVar(&scope.IntegrationID, "integration", "", "integration id")
}

type jobReader interface {
	Get(ctx context.Context, id string) (schemas.ExtractionJob, error)
}

// reportJob prints the job record and turns a failed job into a command
// error.
func reportJob(cmd *cobra.Command, jobs jobReader, jobID string) error {
	job, err := jobs.Get(cmd.Context(), jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if err := writeJSON(cmd.OutOrStdout(), job); err != nil {
		return err
	}
	if job.Status == schemas.JobFailed {
		return fmt.Errorf("job %s failed: %s", job.ID, job.Error)
	}
	return nil
}
