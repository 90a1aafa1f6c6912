// Package jobs tracks the lifecycle of extraction runs. The Tracker is the
// registry readers query; a Run is the write capability handed to the single
// driver of one job.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/metagraph/api/schemas"
	"github.com/xkilldash9x/metagraph/internal/observability"
)

// Tracker is a concurrency-safe registry of live runs keyed by job id. Every
// mutation is written through to the job store, which also answers reads for
// runs that are no longer live.
type Tracker struct {
	mu    sync.RWMutex
	runs  map[string]*Run
	store schemas.JobStore
	now   func() time.Time
	newID func() string
	log   *zap.Logger
}

// NewTracker creates a tracker over the given job store.
func NewTracker(store schemas.JobStore, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		runs:  make(map[string]*Run),
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
		log:   logger.Named("jobs"),
	}
}

// Create registers a new job in the starting state and returns the run
// handle that owns it.
func (t *Tracker) Create(ctx context.Context, scope schemas.Scope, source schemas.JobSource) (*Run, error) {
	job := schemas.ExtractionJob{
		ID:          t.newID(),
		Scope:       scope,
		Source:      source,
		Status:      schemas.JobStarting,
		SubmittedAt: t.now(),
		Progress:    []schemas.ProgressEntry{},
	}
	if err := t.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	run := &Run{
		tracker: t,
		id:      job.ID,
		scope:   scope,
		job:     job,
		log:     t.log.With(observability.JobFields(job.ID, scope)...),
	}
	t.mu.Lock()
	t.runs[job.ID] = run
	t.mu.Unlock()

	run.log.Info("Job created", zap.String("source", string(source)))
	return run, nil
}

// Get returns a snapshot of the job. Live runs are answered from memory,
// anything else from the job store.
func (t *Tracker) Get(ctx context.Context, id string) (schemas.ExtractionJob, error) {
	t.mu.RLock()
	run, live := t.runs[id]
	t.mu.RUnlock()
	if live {
		return run.Snapshot(), nil
	}
	return t.store.GetJob(ctx, id)
}

// Active returns the ids of the live runs: those not yet terminal, plus
// failed runs whose final record could not be persisted.
func (t *Tracker) Active() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.runs))
	for id := range t.runs {
		ids = append(ids, id)
	}
	return ids
}

func (t *Tracker) release(id string) {
	t.mu.Lock()
	delete(t.runs, id)
	t.mu.Unlock()
}

// Run is the exclusive write handle of one job.
type Run struct {
	tracker *Tracker
	id      string
	scope   schemas.Scope
	mu      sync.Mutex
	job     schemas.ExtractionJob
	log     *zap.Logger
}

func (r *Run) ID() string { return r.id }

// Logger returns a logger carrying the job's identifying fields.
func (r *Run) Logger() *zap.Logger { return r.log }

// Scope returns the scope the job was created under.
func (r *Run) Scope() schemas.Scope { return r.scope }

// Status returns the current status.
func (r *Run) Status() schemas.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job.Status
}

// Snapshot returns a deep copy of the job record.
func (r *Run) Snapshot() schemas.ExtractionJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job.Clone()
}

// Transition moves the job to the next status. Use Succeed and Fail for the
// terminal states.
func (r *Run) Transition(ctx context.Context, to schemas.JobStatus) error {
	if to.Terminal() {
		return fmt.Errorf("%w: use Succeed or Fail to reach %s", ErrInvalidTransition, to)
	}
	return r.update(ctx, func(job *schemas.ExtractionJob) error {
		if err := CheckTransition(job.Status, to); err != nil {
			return err
		}
		if job.Status != to {
			r.log.Debug("Job status changed", zap.String("from", string(job.Status)), zap.String("to", string(to)))
		}
		job.Status = to
		return nil
	})
}

// Progress appends one entry to the progress trace.
func (r *Run) Progress(ctx context.Context, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return r.update(ctx, func(job *schemas.ExtractionJob) error {
		job.Progress = append(job.Progress, schemas.ProgressEntry{At: r.tracker.now(), Message: msg})
		r.log.Info(msg)
		return nil
	})
}

// SetRemoteJobID records the provider's async process id.
func (r *Run) SetRemoteJobID(ctx context.Context, id string) error {
	return r.update(ctx, func(job *schemas.ExtractionJob) error {
		job.RemoteJobID = id
		return nil
	})
}

// SetStats records the latest counters without changing status.
func (r *Run) SetStats(ctx context.Context, stats schemas.JobStats) error {
	return r.update(ctx, func(job *schemas.ExtractionJob) error {
		job.Stats = stats
		return nil
	})
}

// Succeed completes the job from the analyzing state.
func (r *Run) Succeed(ctx context.Context, stats schemas.JobStats) error {
	return r.finish(ctx, func(job *schemas.ExtractionJob) error {
		if err := CheckTransition(job.Status, schemas.JobSucceeded); err != nil {
			return err
		}
		job.Status = schemas.JobSucceeded
		job.Stats = stats
		return nil
	})
}

// Fail moves the job to failed with the cause's message. It is valid from
// any non-terminal state.
func (r *Run) Fail(ctx context.Context, cause error) error {
	return r.finish(ctx, func(job *schemas.ExtractionJob) error {
		if job.Status.Terminal() {
			return fmt.Errorf("%w: %s", ErrTerminalState, job.Status)
		}
		job.Status = schemas.JobFailed
		if cause != nil {
			job.Error = cause.Error()
		}
		return nil
	})
}

// finish applies a terminal mutation. The run leaves the live map only once
// the terminal record is persisted. A success that cannot be saved is rolled
// back so the driver can still record the failure; a failure that cannot be
// saved stays live so readers see it.
func (r *Run) finish(ctx context.Context, mutate func(*schemas.ExtractionJob) error) error {
	r.mu.Lock()
	if r.job.Status.Terminal() {
		status := r.job.Status
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTerminalState, status)
	}
	next := r.job.Clone()
	if err := mutate(&next); err != nil {
		r.mu.Unlock()
		return err
	}
	completed := r.tracker.now()
	next.CompletedAt = &completed

	saveErr := r.tracker.store.SaveJob(ctx, next)
	if saveErr != nil && next.Status == schemas.JobSucceeded {
		r.mu.Unlock()
		return fmt.Errorf("failed to persist job %s: %w", next.ID, saveErr)
	}
	r.job = next
	r.mu.Unlock()

	if saveErr != nil {
		r.log.Error("Terminal job state not persisted, keeping run live",
			zap.String("status", string(next.Status)), zap.Error(saveErr))
		return fmt.Errorf("failed to persist job %s: %w", next.ID, saveErr)
	}

	r.tracker.release(r.id)
	r.log.Info("Job finished",
		zap.String("status", string(next.Status)),
		zap.Int("components", next.Stats.ComponentsStored),
		zap.Int("dependencies", next.Stats.DependenciesStored),
		zap.String("error", next.Error),
	)
	return nil
}

// update applies a mutation under the run lock and writes the result through
// to the store. The in-memory record keeps the mutation even when the write
// fails so readers still see the latest state.
func (r *Run) update(ctx context.Context, mutate func(*schemas.ExtractionJob) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.job.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminalState, r.job.Status)
	}
	next := r.job.Clone()
	if err := mutate(&next); err != nil {
		return err
	}
	r.job = next

	if err := r.tracker.store.SaveJob(ctx, next); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", next.ID, err)
	}
	return nil
}
