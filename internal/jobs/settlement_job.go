package jobs

import (
	"context"
	"time"

	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/services/settlement"
)

// SettlementRunner is the part of the settlement service the job drives
type SettlementRunner interface {
	RunScheduled(ctx context.Context, cutoff time.Time) (*settlement.RunResult, error)
}

// SettlementJob settles every entry created before the start of the current
// UTC day
type SettlementJob struct {
	runner  SettlementRunner
	logger  logging.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewSettlementJob creates a new settlement job
func NewSettlementJob(runner SettlementRunner, logger logging.Logger) *SettlementJob {
	return &SettlementJob{
		runner:  runner,
		logger:  logger,
		timeout: 10 * time.Minute,
		now:     time.Now,
	}
}

// Cutoff returns the cutoff a run started now would use
func (j *SettlementJob) Cutoff() time.Time {
	return j.now().UTC().Truncate(24 * time.Hour)
}

// Run performs one settlement run. Errors are logged; the next tick retries
// whatever is still unsettled.
func (j *SettlementJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	cutoff := j.Cutoff()
	entry := j.logger.WithField("cutoff", cutoff)
	entry.Info("Starting scheduled settlement run")

	result, err := j.runner.RunScheduled(ctx, cutoff)
	if err != nil {
		entry.WithError(err).Error("Scheduled settlement run failed")
		return
	}
	entry.WithFields(logging.Fields{
		"batches": len(result.Batches),
		"skipped": result.Skipped,
	}).Info("Scheduled settlement run complete")
}
