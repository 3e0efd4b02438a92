package jobs

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/cruisemall/affiliate/internal/config"
	"github.com/cruisemall/affiliate/internal/logging"
)

// ScheduleRecurringJobs registers the recurring jobs on a new scheduler. The
// caller starts and stops it.
func ScheduleRecurringJobs(cfg config.SettlementConfig, settlementJob *SettlementJob, logger logging.Logger) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	// A run still in progress when the next tick fires is not started twice
	s.SingletonModeAll()

	if !cfg.Enabled {
		logger.Info("Scheduled settlement disabled")
		return s, nil
	}

	if _, err := s.Cron(cfg.Cron).Tag("settlement").Do(settlementJob.Run); err != nil {
		return nil, fmt.Errorf("failed to schedule settlement %q: %w", cfg.Cron, err)
	}
	logger.WithField("cron", cfg.Cron).Info("Scheduled settlement run")
	return s, nil
}
