package refund

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cruisemall/affiliate/internal/apperrors"
	"github.com/cruisemall/affiliate/internal/database"
	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/metrics"
	"github.com/cruisemall/affiliate/internal/models"
	"github.com/cruisemall/affiliate/internal/notify"
	"github.com/cruisemall/affiliate/internal/security"
	"github.com/cruisemall/affiliate/internal/security/audit"
	"github.com/cruisemall/affiliate/internal/services/ledger"
)

// Result is the outcome of a processed refund
type Result struct {
	Sale      *models.Sale         `json:"sale"`
	Reversals []models.LedgerEntry `json:"reversal_entries"`
}

// RefundService reverses a sale's commission with mirror entries and can
// revoke those mirrors when the refund itself was a mistake
type RefundService struct {
	runner   *database.TxRunner
	ledger   *ledger.LedgerService
	policy   security.Policy
	audit    *audit.Logger
	notifier notify.Notifier
	logger   logging.Logger
}

// NewRefundService creates a new refund service
func NewRefundService(
	runner *database.TxRunner,
	ledgerService *ledger.LedgerService,
	policy security.Policy,
	auditLogger *audit.Logger,
	notifier notify.Notifier,
	logger logging.Logger,
) *RefundService {
	return &RefundService{
		runner:   runner,
		ledger:   ledgerService,
		policy:   policy,
		audit:    auditLogger,
		notifier: notifier,
		logger:   logger,
	}
}

// ProcessRefund marks the sale REFUNDED and appends one REFUND mirror for
// every EARNED and ADJUSTMENT entry it carries
func (s *RefundService) ProcessRefund(ctx context.Context, actor security.Actor, saleID uuid.UUID, reason string) (*Result, error) {
	if err := s.policy.Authorize(actor, security.ActionProcessRefund); err != nil {
		return nil, err
	}

	var (
		sale      *models.Sale
		reversals []models.LedgerEntry
	)
	err := s.runner.Transact(ctx, func(tx *gorm.DB) error {
		reversals = nil

		var err error
		sale, err = ledger.LockSale(tx, saleID)
		if err != nil {
			return err
		}
		if !sale.Status.CanTransition(models.SaleStatusRefunded) {
			return &apperrors.InvalidStateError{Entity: "sale", ID: saleID.String(), Status: string(sale.Status), Op: "refund"}
		}

		var originals []models.LedgerEntry
		if err := tx.Where("sale_id = ? AND entry_type <> ?", saleID, models.EntryTypeRefund).
			Order("id ASC").
			Find(&originals).Error; err != nil {
			return fmt.Errorf("error loading ledger entries: %w", err)
		}

		now := time.Now()
		for i := range originals {
			mirror := originals[i].Reversal()
			mirror.Note = fmt.Sprintf("reversal of entry %d", originals[i].ID)
			mirror.Reason = reason
			mirror.AuthorizedBy = &actor.ID
			mirror.AuthorizedAt = &now
			if err := s.ledger.Append(tx, sale, &mirror); err != nil {
				return err
			}
			reversals = append(reversals, mirror)
		}

		if err := tx.Model(sale).Updates(map[string]interface{}{
			"status":        models.SaleStatusRefunded,
			"refunded_at":   now,
			"refund_reason": reason,
		}).Error; err != nil {
			return fmt.Errorf("error marking sale refunded: %w", err)
		}
		sale.Status = models.SaleStatusRefunded
		sale.RefundedAt = &now
		sale.RefundReason = reason

		if err := refundLead(tx, sale.LeadID); err != nil {
			return err
		}

		return s.audit.Record(tx, audit.Event{
			Type:       audit.EventTypeRefundProcessed,
			ActorID:    &actor.ID,
			TargetType: "sale",
			TargetID:   saleID.String(),
			Metadata: map[string]interface{}{
				"reason":    reason,
				"reversals": len(reversals),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.Refunds.WithLabelValues("process").Inc()
	ledger.Count(reversals...)
	s.logger.WithFields(logging.Fields{
		"sale_id":   saleID,
		"actor_id":  actor.ID,
		"reversals": len(reversals),
	}).Info("Refund processed")

	notify.Dispatch(ctx, s.notifier, s.logger, notifications(sale, reversals,
		"Sale refunded",
		"Commission on sale %s was reversed after a refund.")...)
	return &Result{Sale: sale, Reversals: reversals}, nil
}

// CancelRefund deletes the sale's REFUND entries and restores the status the
// sale had before the refund. Reversals already paid out in a settlement
// batch block the cancel.
func (s *RefundService) CancelRefund(ctx context.Context, actor security.Actor, saleID uuid.UUID) (*models.Sale, error) {
	if err := s.policy.Authorize(actor, security.ActionCancelRefund); err != nil {
		return nil, err
	}

	var (
		sale    *models.Sale
		revoked []models.LedgerEntry
	)
	err := s.runner.Transact(ctx, func(tx *gorm.DB) error {
		var err error
		sale, err = ledger.LockSale(tx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != models.SaleStatusRefunded {
			return &apperrors.InvalidStateError{Entity: "sale", ID: saleID.String(), Status: string(sale.Status), Op: "cancel refund of"}
		}

		revoked, err = s.ledger.RevokeReversals(tx, saleID)
		if err != nil {
			return err
		}

		restored := sale.PreRefundStatus()
		if err := tx.Model(sale).Updates(map[string]interface{}{
			"status":        restored,
			"refunded_at":   nil,
			"refund_reason": "",
		}).Error; err != nil {
			return fmt.Errorf("error restoring sale status: %w", err)
		}
		sale.Status = restored
		sale.RefundedAt = nil
		sale.RefundReason = ""

		if err := restoreLead(tx, sale.LeadID); err != nil {
			return err
		}

		return s.audit.Record(tx, audit.Event{
			Type:       audit.EventTypeRefundCancelled,
			ActorID:    &actor.ID,
			TargetType: "sale",
			TargetID:   saleID.String(),
			Metadata: map[string]interface{}{
				"restored_status": restored,
				"revoked":         len(revoked),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.Refunds.WithLabelValues("cancel").Inc()
	s.logger.WithFields(logging.Fields{
		"sale_id":  saleID,
		"actor_id": actor.ID,
		"revoked":  len(revoked),
		"status":   sale.Status,
	}).Info("Refund cancelled")

	notify.Dispatch(ctx, s.notifier, s.logger, notifications(sale, revoked,
		"Refund cancelled",
		"The refund on sale %s was cancelled and your commission restored.")...)
	return sale, nil
}

// refundLead marks the lead REFUNDED and remembers the status it had
func refundLead(tx *gorm.DB, leadID *uuid.UUID) error {
	if leadID == nil {
		return nil
	}
	var lead models.Lead
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&lead, "id = ?", *leadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("error loading lead: %w", err)
	}
	if err := tx.Model(&lead).UpdateColumns(map[string]interface{}{
		"status":            models.LeadStatusRefunded,
		"pre_refund_status": lead.Status,
	}).Error; err != nil {
		return fmt.Errorf("error updating lead status: %w", err)
	}
	return nil
}

// restoreLead puts back the status recorded by refundLead
func restoreLead(tx *gorm.DB, leadID *uuid.UUID) error {
	if leadID == nil {
		return nil
	}
	var lead models.Lead
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&lead, "id = ?", *leadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("error loading lead: %w", err)
	}
	restored := lead.PreRefundStatus
	if restored == "" {
		restored = models.LeadStatusConverted
	}
	if err := tx.Model(&lead).UpdateColumns(map[string]interface{}{
		"status":            restored,
		"pre_refund_status": "",
	}).Error; err != nil {
		return fmt.Errorf("error restoring lead status: %w", err)
	}
	return nil
}

// notifications builds one notification per affected profile
func notifications(sale *models.Sale, entries []models.LedgerEntry, title, bodyFormat string) []notify.Notification {
	seen := make(map[uuid.UUID]bool)
	var notes []notify.Notification
	for _, e := range entries {
		if seen[e.ProfileID] {
			continue
		}
		seen[e.ProfileID] = true
		notes = append(notes, notify.Notification{
			Title:              title,
			Body:               fmt.Sprintf(bodyFormat, sale.ID),
			RecipientProfileID: e.ProfileID,
		})
	}
	return notes
}
