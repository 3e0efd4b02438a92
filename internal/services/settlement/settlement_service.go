package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cruisemall/affiliate/internal/apperrors"
	"github.com/cruisemall/affiliate/internal/database"
	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/metrics"
	"github.com/cruisemall/affiliate/internal/models"
	"github.com/cruisemall/affiliate/internal/security"
	"github.com/cruisemall/affiliate/internal/security/audit"
	"github.com/cruisemall/affiliate/internal/services/ledger"
)

// RunResult summarises one settlement run
type RunResult struct {
	Cutoff  time.Time                `json:"cutoff"`
	Batches []models.SettlementBatch `json:"batches"`
	Skipped int                      `json:"skipped"`
}

type group struct {
	ProfileID uuid.UUID
	Currency  string
}

// SettlementService pays out unsettled ledger entries in per-profile batches.
// Closed batches are never reopened; late reversals and adjustments land in
// the next run.
type SettlementService struct {
	runner *database.TxRunner
	ledger *ledger.LedgerService
	policy security.Policy
	audit  *audit.Logger
	logger logging.Logger
}

// NewSettlementService creates a new settlement service
func NewSettlementService(runner *database.TxRunner, ledgerService *ledger.LedgerService, policy security.Policy, auditLogger *audit.Logger, logger logging.Logger) *SettlementService {
	return &SettlementService{runner: runner, ledger: ledgerService, policy: policy, audit: auditLogger, logger: logger}
}

// Run settles on behalf of an administrator
func (s *SettlementService) Run(ctx context.Context, actor security.Actor, cutoff time.Time) (*RunResult, error) {
	if err := s.policy.Authorize(actor, security.ActionRunSettlement); err != nil {
		return nil, err
	}
	return s.run(ctx, &actor.ID, cutoff)
}

// RunScheduled settles from the scheduler, with no acting user
func (s *SettlementService) RunScheduled(ctx context.Context, cutoff time.Time) (*RunResult, error) {
	return s.run(ctx, nil, cutoff)
}

func (s *SettlementService) run(ctx context.Context, actorID *uuid.UUID, cutoff time.Time) (*RunResult, error) {
	var groups []group
	if err := s.runner.DB().WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("profile_id, currency").
		Where("settled = ? AND created_at < ?", false, cutoff).
		Group("profile_id, currency").
		Order("profile_id, currency").
		Scan(&groups).Error; err != nil {
		return nil, fmt.Errorf("error listing unsettled profiles: %w", err)
	}

	result := &RunResult{Cutoff: cutoff}
	var errs []error
	for _, g := range groups {
		batch, err := s.settle(ctx, actorID, g, cutoff)
		var settled *apperrors.AlreadySettledError
		switch {
		case errors.As(err, &settled):
			metrics.SettlementConflicts.Inc()
			s.logger.WithFields(logging.Fields{
				"profile_id": g.ProfileID,
				"currency":   g.Currency,
				"entries":    settled.EntryIDs,
			}).Warn("Settlement batch lost to a concurrent run, skipping")
			result.Skipped++
		case err != nil:
			errs = append(errs, fmt.Errorf("profile %s %s: %w", g.ProfileID, g.Currency, err))
		case batch == nil:
			result.Skipped++
		default:
			result.Batches = append(result.Batches, *batch)
		}
	}

	s.logger.WithFields(logging.Fields{
		"cutoff":  cutoff,
		"batches": len(result.Batches),
		"skipped": result.Skipped,
		"failed":  len(errs),
	}).Info("Settlement run finished")
	return result, errors.Join(errs...)
}

// settle pays one (profile, currency) group. It returns nil, nil when another
// run already took every entry.
func (s *SettlementService) settle(ctx context.Context, actorID *uuid.UUID, g group, cutoff time.Time) (*models.SettlementBatch, error) {
	var batch *models.SettlementBatch
	err := s.runner.Transact(ctx, func(tx *gorm.DB) error {
		var entries []models.LedgerEntry
		if err := tx.Where("profile_id = ? AND currency = ? AND settled = ? AND created_at < ?", g.ProfileID, g.Currency, false, cutoff).
			Order("id ASC").
			Find(&entries).Error; err != nil {
			return fmt.Errorf("error loading unsettled entries: %w", err)
		}
		var err error
		batch, err = s.settleEntries(tx, actorID, g, cutoff, entries)
		return err
	})
	if err != nil {
		return nil, err
	}
	if batch != nil {
		metrics.SettlementBatches.Inc()
		s.logger.WithFields(logging.Fields{
			"batch_id":   batch.ID,
			"profile_id": batch.ProfileID,
			"entries":    batch.EntryCount,
			"net":        batch.NetAmount.String(),
		}).Info("Settlement batch created")
	}
	return batch, nil
}

// settleEntries writes the batch row and flips the settled projection of
// entries in one step. entries may be stale; MarkSettledWithTx rejects the
// whole set if any of them was settled in the meantime.
func (s *SettlementService) settleEntries(tx *gorm.DB, actorID *uuid.UUID, g group, cutoff time.Time, entries []models.LedgerEntry) (*models.SettlementBatch, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]uint64, 0, len(entries))
	withholding := decimal.Zero
	for _, e := range entries {
		ids = append(ids, e.ID)
		if e.Withholding.Valid {
			withholding = withholding.Add(e.Withholding.Decimal)
		}
	}

	batch := &models.SettlementBatch{
		ProfileID:        g.ProfileID,
		Currency:         g.Currency,
		CutoffAt:         cutoff,
		EntryCount:       len(entries),
		NetAmount:        ledger.Fold(entries),
		WithholdingTotal: withholding,
		CreatedBy:        actorID,
	}
	if err := tx.Create(batch).Error; err != nil {
		return nil, fmt.Errorf("error creating settlement batch: %w", err)
	}
	if err := s.ledger.MarkSettledWithTx(tx, ids, batch.ID, time.Now()); err != nil {
		return nil, err
	}

	if err := s.audit.Record(tx, audit.Event{
		Type:       audit.EventTypeSettlementCreated,
		ActorID:    actorID,
		TargetType: "settlement_batch",
		TargetID:   batch.ID.String(),
		Metadata: map[string]interface{}{
			"profile_id": g.ProfileID,
			"entries":    len(ids),
			"net":        batch.NetAmount.String(),
		},
	}); err != nil {
		return nil, err
	}
	return batch, nil
}

// GetBatch loads a settlement batch
func (s *SettlementService) GetBatch(ctx context.Context, id uuid.UUID) (*models.SettlementBatch, error) {
	var batch models.SettlementBatch
	if err := s.runner.DB().WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("settlement batch", id)
		}
		return nil, fmt.Errorf("error finding settlement batch: %w", err)
	}
	return &batch, nil
}

// ListBatches lists a profile's batches, newest first
func (s *SettlementService) ListBatches(ctx context.Context, profileID uuid.UUID) ([]models.SettlementBatch, error) {
	var batches []models.SettlementBatch
	if err := s.runner.DB().WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at DESC").
		Find(&batches).Error; err != nil {
		return nil, fmt.Errorf("error listing settlement batches: %w", err)
	}
	return batches, nil
}
