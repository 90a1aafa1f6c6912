// Package service runs extraction jobs in the background and owns the
// lifecycle of the components they need.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/metagraph/api/schemas"
	"github.com/xkilldash9x/metagraph/internal/jobs"
	"github.com/xkilldash9x/metagraph/internal/metadataapi"
	"github.com/xkilldash9x/metagraph/internal/pipeline"
)

// ErrSnapshotsDisabled is returned when re-analysis of a stored archive is
// requested without a snapshot sink.
var ErrSnapshotsDisabled = errors.New("archive snapshots are not enabled")

// ClientFactory builds a metadata API client for one session.
type ClientFactory func(session metadataapi.Session) (pipeline.RemoteClient, error)

// Service starts jobs. Each job runs in its own goroutine, detached from the
// caller's cancellation, and reports through the tracker.
type Service struct {
	tracker   *jobs.Tracker
	driver    *pipeline.Driver
	sink      schemas.ArchiveSink
	newClient ClientFactory

	wg  sync.WaitGroup
	log *zap.Logger
}

// New creates a service. sink may be nil.
func New(tracker *jobs.Tracker, driver *pipeline.Driver, sink schemas.ArchiveSink, newClient ClientFactory, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tracker:   tracker,
		driver:    driver,
		sink:      sink,
		newClient: newClient,
		log:       logger.Named("service"),
	}
}

// StartExtraction creates a remote job and returns its id immediately. The
// session is checked before any job is created.
func (s *Service) StartExtraction(ctx context.Context, session metadataapi.Session, scope schemas.Scope) (string, error) {
	if s.newClient == nil {
		return "", fmt.Errorf("no metadata API client factory configured")
	}
	client, err := s.newClient(session)
	if err != nil {
		return "", err
	}
	run, err := s.tracker.Create(ctx, scope, schemas.SourceRemote)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	s.spawn(ctx, run, func(ctx context.Context) error {
		return s.driver.RunRemote(ctx, run, client)
	})
	return run.ID(), nil
}

// StartLocalAnalysis runs the analysis passes over archive bytes the caller
// already holds.
func (s *Service) StartLocalAnalysis(ctx context.Context, scope schemas.Scope, data []byte) (string, error) {
	return s.startArchive(ctx, scope, schemas.SourceArchive, data)
}

// StartSnapshotAnalysis re-analyzes the archive stored for an earlier job.
func (s *Service) StartSnapshotAnalysis(ctx context.Context, scope schemas.Scope, snapshotJobID string) (string, error) {
	if s.sink == nil {
		return "", ErrSnapshotsDisabled
	}
	data, err := s.sink.GetArchive(ctx, snapshotJobID)
	if err != nil {
		return "", fmt.Errorf("failed to load snapshot for job %s: %w", snapshotJobID, err)
	}
	return s.startArchive(ctx, scope, schemas.SourceSnapshot, data)
}

func (s *Service) startArchive(ctx context.Context, scope schemas.Scope, source schemas.JobSource, data []byte) (string, error) {
	run, err := s.tracker.Create(ctx, scope, source)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	s.spawn(ctx, run, func(ctx context.Context) error {
		return s.driver.RunArchive(ctx, run, data)
	})
	return run.ID(), nil
}

func (s *Service) spawn(ctx context.Context, run *jobs.Run, work func(context.Context) error) {
	jobCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("job panicked: %v", r)
				run.Logger().Error("Recovered from panic in job goroutine", zap.Any("panic", r))
				if failErr := run.Fail(jobCtx, err); failErr != nil {
					run.Logger().Error("Failed to record job failure", zap.Error(failErr))
				}
			}
		}()
		if err := work(jobCtx); err != nil {
			run.Logger().Warn("Job failed", zap.Error(err))
		}
	}()
}

// Job returns the current record of a job.
func (s *Service) Job(ctx context.Context, id string) (schemas.ExtractionJob, error) {
	return s.tracker.Get(ctx, id)
}

// Wait blocks until every started job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
