package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/metagraph/api/schemas"
	"github.com/xkilldash9x/metagraph/internal/metadataapi"
	"github.com/xkilldash9x/metagraph/internal/observability"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		scope    schemas.Scope
		session  metadataapi.Session
		wait     bool
		inMemory bool
	)

	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "Starts a remote metadata retrieve and builds the dependency graph",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := requireScope(scope, true); err != nil {
				return err
			}
			// The session usually comes from the login collaborator via the
			// environment.
			_ = a.v.BindEnv("session.id", envPrefix+"_SESSION_ID")
			_ = a.v.BindEnv("session.server_url", envPrefix+"_SERVER_URL")
			if session.SessionID == "" {
				session.SessionID = a.v.GetString("session.id")
			}
			if session.ServerURL == "" {
				session.ServerURL = a.v.GetString("session.server_url")
			}
			return applyRemoteOverrides(cmd, a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			components, err := a.components(cmd, inMemory)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			jobID, err := components.Service.StartExtraction(ctx, session, scope)
			if err != nil {
				return err
			}
			logger.Info("Extraction started", observability.JobFields(jobID, scope)...)

			// An in-memory run loses its results on exit, so it always waits.
			if !wait && !inMemory {
				fmt.Fprintln(cmd.OutOrStdout(), jobID)
				logger.Info("Waiting for the job to finish before exiting", zap.String("job_id", jobID))
				return nil
			}
			components.Service.Wait()
			return reportJob(cmd, components.Tracker, jobID)
		},
	}

	flags := extractCmd.Flags()
	flags.StringVar(&session.SessionID, "session-id", "", "session id for the remote API (env "+envPrefix+"_SESSION_ID)")
	flags.StringVar(&session.ServerURL, "server-url", "", "server URL returned at login (env "+envPrefix+"_SERVER_URL)")
	addScopeFlags(flags, &scope)
	flags.BoolVar(&wait, "wait", false, "wait for the job and print its final record")
	flags.BoolVar(&inMemory, "memory", false, "use the in-memory store")
	flags.Duration("poll-interval", 0, "override remote.poll_interval")
	flags.Int("max-attempts", 0, "override remote.max_poll_attempts")
	return extractCmd
}

// applyRemoteOverrides copies explicitly set polling flags onto the config.
func applyRemoteOverrides(cmd *cobra.Command, a *app) error {
	flags := cmd.Flags()
	if flags.Changed("poll-interval") {
		d, err := flags.GetDuration("poll-interval")
		if err != nil {
			return err
		}
		if d < 0 {
			return fmt.Errorf("--poll-interval must not be negative")
		}
		a.cfg.SetRemotePollInterval(d)
	}
	if flags.Changed("max-attempts") {
		n, err := flags.GetInt("max-attempts")
		if err != nil {
			return err
		}
		if n <= 0 {
			return fmt.Errorf("--max-attempts must be a positive integer")
		}
		a.cfg.SetRemoteMaxPollAttempts(n)
	}
	return nil
}

func requireScope(scope schemas.Scope, needIntegration bool) error {
	if strings.TrimSpace(scope.OrgID) == "" {
		return fmt.Errorf("--org is required")
	}
	if needIntegration && strings.TrimSpace(scope.IntegrationID) == "" {
		return fmt.Errorf("--integration is required")
	}
	return nil
}
