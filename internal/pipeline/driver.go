package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/metagraph/api/schemas"
	"github.com/xkilldash9x/metagraph/internal/jobs"
	"github.com/xkilldash9x/metagraph/internal/metadataapi"
)

// RemoteClient is the part of *metadataapi.Client the driver uses.
type RemoteClient interface {
	metadataapi.StatusChecker
	Submit(ctx context.Context) (metadataapi.RetrieveHandle, error)
}

// DriverConfig holds the polling budget.
type DriverConfig struct {
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Driver sequences one job: submit, poll, download, analyze. It is the only
// code that transitions a run.
type Driver struct {
	analyzer *Analyzer
	sink     schemas.ArchiveSink
	cfg      DriverConfig
	log      *zap.Logger
}

// NewDriver creates a driver. sink may be nil to skip archive snapshots.
func NewDriver(analyzer *Analyzer, sink schemas.ArchiveSink, cfg DriverConfig, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		analyzer: analyzer,
		sink:     sink,
		cfg:      cfg,
		log:      logger.Named("driver"),
	}
}

// RunRemote executes a full remote extraction. Any error fails the run; the
// returned error is the one recorded on the job.
func (d *Driver) RunRemote(ctx context.Context, run *jobs.Run, client RemoteClient) error {
	return d.finish(ctx, run, d.runRemote(ctx, run, client))
}

// RunArchive analyzes archive bytes that are already local.
func (d *Driver) RunArchive(ctx context.Context, run *jobs.Run, data []byte) error {
	err := run.Transition(ctx, schemas.JobDownloading)
	if err == nil {
		err = run.Progress(ctx, "Zip file size: %d bytes", len(data))
	}
	if err == nil {
		err = d.analyze(ctx, run, data)
	}
	return d.finish(ctx, run, err)
}

func (d *Driver) finish(ctx context.Context, run *jobs.Run, err error) error {
	if err == nil {
		return nil
	}
	if failErr := run.Fail(ctx, err); failErr != nil {
		run.Logger().Error("Failed to record job failure", zap.Error(failErr), zap.NamedError("cause", err))
	}
	return err
}

func (d *Driver) runRemote(ctx context.Context, run *jobs.Run, client RemoteClient) error {
	if err := run.Progress(ctx, "Submitting retrieve request"); err != nil {
		return err
	}
	handle, err := client.Submit(ctx)
	if err != nil {
		return fmt.Errorf("retrieve submit failed: %w", err)
	}
	if err := run.Transition(ctx, schemas.JobSubmitted); err != nil {
		return err
	}
	if err := run.SetRemoteJobID(ctx, handle.AsyncID); err != nil {
		return err
	}
	if err := run.Progress(ctx, "Job ID: %s", handle.AsyncID); err != nil {
		return err
	}

	status, err := d.await(ctx, run, client, handle)
	if err != nil {
		return err
	}

	if err := run.Progress(ctx, "Zip file size: %d bytes", len(status.Archive)); err != nil {
		return err
	}
	d.snapshot(ctx, run, status.Archive)
	return d.analyze(ctx, run, status.Archive)
}

// await returns the finished retrieve status and leaves the run in the
// downloading state.
func (d *Driver) await(ctx context.Context, run *jobs.Run, client RemoteClient, handle metadataapi.RetrieveHandle) (metadataapi.RetrieveStatus, error) {
	if handle.Done {
		if err := run.Progress(ctx, "Job completed immediately"); err != nil {
			return metadataapi.RetrieveStatus{}, err
		}
		if err := run.Transition(ctx, schemas.JobDownloading); err != nil {
			return metadataapi.RetrieveStatus{}, err
		}
		status, err := client.CheckStatus(ctx, handle.AsyncID)
		if err != nil {
			return status, fmt.Errorf("retrieve download failed: %w", err)
		}
		if !status.Done {
			return status, &metadataapi.RemoteFault{Code: "NOT_READY", Message: "retrieve reported done but its result is not ready", Permanent: true}
		}
		return status, status.Err()
	}

	if err := run.Transition(ctx, schemas.JobPolling); err != nil {
		return metadataapi.RetrieveStatus{}, err
	}
	poller := metadataapi.NewPoller(client, d.cfg.PollInterval, d.cfg.MaxPollAttempts, run.Logger())
	status, err := poller.Poll(ctx, handle.AsyncID, func(a metadataapi.Attempt) {
		state := a.Status.State
		if a.Err != nil {
			state = "error: " + a.Err.Error()
		} else if state == "" {
			state = "unknown"
		}
		if perr := run.Progress(ctx, "Checking retrieve status (attempt %d/%d): %s", a.Number, a.Max, state); perr != nil {
			run.Logger().Warn("Failed to record poll progress", zap.Error(perr))
		}
	})
	if err != nil {
		return status, fmt.Errorf("retrieve polling failed: %w", err)
	}
	if err := run.Transition(ctx, schemas.JobDownloading); err != nil {
		return status, err
	}
	return status, nil
}

// snapshot keeps a copy of the archive. A failed upload is logged and does
// not fail the run.
func (d *Driver) snapshot(ctx context.Context, run *jobs.Run, data []byte) {
	if d.sink == nil {
		return
	}
	if err := d.sink.PutArchive(ctx, run.ID(), data); err != nil {
		run.Logger().Warn("Failed to store archive snapshot", zap.Error(err))
		if perr := run.Progress(ctx, "Archive snapshot failed: %v", err); perr != nil {
			run.Logger().Warn("Failed to record snapshot progress", zap.Error(perr))
		}
		return
	}
	if perr := run.Progress(ctx, "Archive snapshot stored"); perr != nil {
		run.Logger().Warn("Failed to record snapshot progress", zap.Error(perr))
	}
}

func (d *Driver) analyze(ctx context.Context, run *jobs.Run, data []byte) error {
	if err := run.Transition(ctx, schemas.JobAnalyzing); err != nil {
		return err
	}
	stats, err := d.analyzer.Analyze(ctx, run.ID(), run.Scope(), data, run.Progress)
	if err != nil {
		if serr := run.SetStats(ctx, stats); serr != nil {
			run.Logger().Warn("Failed to record partial stats", zap.Error(serr))
		}
		return fmt.Errorf("analysis failed: %w", err)
	}
	return run.Succeed(ctx, stats)
}
