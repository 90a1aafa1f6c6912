package metadataapi

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// StatusChecker performs a single status check. *Client implements it.
type StatusChecker interface {
	CheckStatus(ctx context.Context, asyncID string) (RetrieveStatus, error)
}

// Attempt describes one finished status check.
type Attempt struct {
	Number int
	Max    int
	Status RetrieveStatus
	Err    error
}

// Poller repeats status checks at a fixed interval up to a hard cap.
type Poller struct {
	checker     StatusChecker
	interval    time.Duration
	maxAttempts int
	log         *zap.Logger
}

// NewPoller creates a poller. A zero interval polls without waiting.
func NewPoller(checker StatusChecker, interval time.Duration, maxAttempts int, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Poller{
		checker:     checker,
		interval:    interval,
		maxAttempts: maxAttempts,
		log:         logger.Named("poller"),
	}
}

// Poll checks the job until it is done. The first check runs immediately and
// each later one waits one full interval after the previous check returned. Transient failures consume an attempt;
// anything else ends polling at once. onAttempt, when set, is called after
// every check.
func (p *Poller) Poll(ctx context.Context, asyncID string, onAttempt func(Attempt)) (RetrieveStatus, error) {
	limiter := rate.NewLimiter(rate.Every(p.interval), 1)

	for n := 1; n <= p.maxAttempts; n++ {
		if err := limiter.Wait(ctx); err != nil {
			return RetrieveStatus{}, fmt.Errorf("poll wait interrupted: %w", err)
		}

		status, err := p.checker.CheckStatus(ctx, asyncID)
		limiter = p.drained()
		if onAttempt != nil {
			onAttempt(Attempt{Number: n, Max: p.maxAttempts, Status: status, Err: err})
		}
		if err != nil {
			if !Retryable(err) {
				return RetrieveStatus{}, err
			}
			p.log.Warn("Status check failed, retrying",
				zap.String("async_id", asyncID),
				zap.Int("attempt", n),
				zap.Int("max_attempts", p.maxAttempts),
				zap.Error(err),
			)
			continue
		}
		if status.Done {
			if err := status.Err(); err != nil {
				return status, err
			}
			return status, nil
		}
		p.log.Debug("Retrieve still running", zap.String("async_id", asyncID), zap.Int("attempt", n), zap.String("state", status.State))
	}
	return RetrieveStatus{}, &TimeoutError{Attempts: p.maxAttempts}
}

// drained returns a limiter whose next token is one interval away, so a slow
// check never shortens the following wait.
func (p *Poller) drained() *rate.Limiter {
	l := rate.NewLimiter(rate.Every(p.interval), 1)
	l.Allow()
	return l
}
