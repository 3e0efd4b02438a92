package adjustment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

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

// AdjustmentService runs the request/approve/reject workflow. Approval
// appends an ADJUSTMENT entry; nothing already in the ledger is edited.
type AdjustmentService struct {
	runner   *database.TxRunner
	ledger   *ledger.LedgerService
	policy   security.Policy
	audit    *audit.Logger
	notifier notify.Notifier
	logger   logging.Logger
}

// NewAdjustmentService creates a new adjustment service
func NewAdjustmentService(
	runner *database.TxRunner,
	ledgerService *ledger.LedgerService,
	policy security.Policy,
	auditLogger *audit.Logger,
	notifier notify.Notifier,
	logger logging.Logger,
) *AdjustmentService {
	return &AdjustmentService{
		runner:   runner,
		ledger:   ledgerService,
		policy:   policy,
		audit:    auditLogger,
		notifier: notifier,
		logger:   logger,
	}
}

// RequestAdjustment proposes delta against an existing ledger entry.
// Affiliates may only request against their own entries.
func (s *AdjustmentService) RequestAdjustment(ctx context.Context, actor security.Actor, entryID uint64, delta decimal.Decimal, reason string) (*models.AdjustmentRequest, error) {
	if err := s.policy.Authorize(actor, security.ActionRequestAdjustment); err != nil {
		return nil, err
	}
	if delta.IsZero() {
		return nil, apperrors.InvalidEntry("adjustment delta must be non-zero")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.InvalidEntry("adjustment reason is required")
	}

	var req *models.AdjustmentRequest
	err := s.runner.Transact(ctx, func(tx *gorm.DB) error {
		var entry models.LedgerEntry
		if err := tx.First(&entry, "id = ?", entryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("ledger entry", entryID)
			}
			return fmt.Errorf("error finding ledger entry: %w", err)
		}
		if !actor.IsAdmin() && (actor.ProfileID == nil || *actor.ProfileID != entry.ProfileID) {
			return &apperrors.AuthorizationError{ActorID: actor.ID.String(), Action: string(security.ActionRequestAdjustment)}
		}

		req = &models.AdjustmentRequest{
			LedgerEntryID: entry.ID,
			SaleID:        entry.SaleID,
			ProfileID:     entry.ProfileID,
			DeltaAmount:   delta,
			Currency:      entry.Currency,
			Reason:        reason,
			RequestedBy:   actor.ID,
			Status:        models.AdjustmentStatusRequested,
		}
		if err := tx.Create(req).Error; err != nil {
			return fmt.Errorf("error creating adjustment request: %w", err)
		}

		return s.audit.Record(tx, audit.Event{
			Type:       audit.EventTypeAdjustmentRequested,
			ActorID:    &actor.ID,
			TargetType: "adjustment_request",
			TargetID:   req.ID.String(),
			Metadata: map[string]interface{}{
				"ledger_entry_id": entry.ID,
				"delta":           delta.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logging.Fields{
		"request_id": req.ID,
		"entry_id":   entryID,
		"actor_id":   actor.ID,
		"delta":      delta.String(),
	}).Info("Adjustment requested")
	return req, nil
}

// Approve decides a REQUESTED adjustment as APPROVED and appends its
// ADJUSTMENT entry in the same transaction
func (s *AdjustmentService) Approve(ctx context.Context, actor security.Actor, requestID uuid.UUID, note string) (*models.AdjustmentRequest, *models.LedgerEntry, error) {
	return s.decide(ctx, actor, requestID, models.AdjustmentStatusApproved, note)
}

// Reject decides a REQUESTED adjustment as REJECTED. The ledger is not touched.
func (s *AdjustmentService) Reject(ctx context.Context, actor security.Actor, requestID uuid.UUID, note string) (*models.AdjustmentRequest, error) {
	req, _, err := s.decide(ctx, actor, requestID, models.AdjustmentStatusRejected, note)
	return req, err
}

func (s *AdjustmentService) decide(ctx context.Context, actor security.Actor, requestID uuid.UUID, decision models.AdjustmentStatus, note string) (*models.AdjustmentRequest, *models.LedgerEntry, error) {
	if err := s.policy.Authorize(actor, security.ActionDecideAdjustment); err != nil {
		return nil, nil, err
	}

	var (
		req   models.AdjustmentRequest
		entry *models.LedgerEntry
	)
	err := s.runner.Transact(ctx, func(tx *gorm.DB) error {
		entry = nil
		if err := tx.First(&req, "id = ?", requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("adjustment request", requestID)
			}
			return fmt.Errorf("error finding adjustment request: %w", err)
		}
		if req.Status.Terminal() {
			return &apperrors.AlreadyDecidedError{RequestID: requestID.String(), Status: string(req.Status)}
		}

		sale, err := ledger.LockSale(tx, req.SaleID)
		if err != nil {
			return err
		}
		if decision == models.AdjustmentStatusApproved &&
			(sale.Status == models.SaleStatusRefunded || sale.Status == models.SaleStatusCancelled) {
			return &apperrors.InvalidStateError{Entity: "sale", ID: sale.ID.String(), Status: string(sale.Status), Op: "adjust"}
		}

		now := time.Now()
		res := tx.Model(&models.AdjustmentRequest{}).
			Where("id = ? AND status = ?", requestID, models.AdjustmentStatusRequested).
			Updates(map[string]interface{}{
				"status":        decision,
				"approver_id":   actor.ID,
				"decided_at":    now,
				"decision_note": note,
			})
		if res.Error != nil {
			return fmt.Errorf("error deciding adjustment request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var current models.AdjustmentRequest
			if err := tx.Select("status").First(&current, "id = ?", requestID).Error; err != nil {
				return fmt.Errorf("error reloading adjustment request: %w", err)
			}
			return &apperrors.AlreadyDecidedError{RequestID: requestID.String(), Status: string(current.Status)}
		}
		req.Status = decision
		req.ApproverID = &actor.ID
		req.DecidedAt = &now
		req.DecisionNote = note

		eventType := audit.EventTypeAdjustmentRejected
		if decision == models.AdjustmentStatusApproved {
			eventType = audit.EventTypeAdjustmentApproved

			requestRef := req.ID
			approver := actor.ID
			entry = &models.LedgerEntry{
				SaleID:              req.SaleID,
				ProfileID:           req.ProfileID,
				EntryType:           models.EntryTypeAdjustment,
				Amount:              req.DeltaAmount,
				Currency:            req.Currency,
				Note:                fmt.Sprintf("adjustment of entry %d", req.LedgerEntryID),
				AdjustmentRequestID: &requestRef,
				AuthorizedBy:        &approver,
				AuthorizedAt:        &now,
				Reason:              req.Reason,
				Metadata:            models.JSON{"adjusts_entry_id": req.LedgerEntryID},
			}
			if err := s.ledger.Append(tx, sale, entry); err != nil {
				return err
			}
			if err := tx.Model(&models.AdjustmentRequest{}).
				Where("id = ?", requestID).
				UpdateColumn("result_entry_id", entry.ID).Error; err != nil {
				return fmt.Errorf("error linking adjustment entry: %w", err)
			}
			req.ResultEntryID = &entry.ID
		}

		return s.audit.Record(tx, audit.Event{
			Type:       eventType,
			ActorID:    &actor.ID,
			TargetType: "adjustment_request",
			TargetID:   requestID.String(),
			Metadata: map[string]interface{}{
				"sale_id": req.SaleID,
				"delta":   req.DeltaAmount.String(),
				"note":    note,
			},
		})
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.AdjustmentsDecided.WithLabelValues(strings.ToLower(string(decision))).Inc()
	if entry != nil {
		ledger.Count(*entry)
	}
	s.logger.WithFields(logging.Fields{
		"request_id": requestID,
		"sale_id":    req.SaleID,
		"actor_id":   actor.ID,
		"decision":   decision,
	}).Info("Adjustment decided")

	notify.Dispatch(ctx, s.notifier, s.logger, decisionNotification(&req))
	return &req, entry, nil
}

// Get loads an adjustment request
func (s *AdjustmentService) Get(ctx context.Context, id uuid.UUID) (*models.AdjustmentRequest, error) {
	var req models.AdjustmentRequest
	if err := s.runner.DB().WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("adjustment request", id)
		}
		return nil, fmt.Errorf("error finding adjustment request: %w", err)
	}
	return &req, nil
}

// ListBySale lists every request raised against a sale's entries
func (s *AdjustmentService) ListBySale(ctx context.Context, saleID uuid.UUID) ([]models.AdjustmentRequest, error) {
	var reqs []models.AdjustmentRequest
	if err := s.runner.DB().WithContext(ctx).
		Where("sale_id = ?", saleID).
		Order("created_at ASC").
		Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("error listing adjustment requests: %w", err)
	}
	return reqs, nil
}

// ListPending lists undecided requests, oldest first
func (s *AdjustmentService) ListPending(ctx context.Context, limit int) ([]models.AdjustmentRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var reqs []models.AdjustmentRequest
	if err := s.runner.DB().WithContext(ctx).
		Where("status = ?", models.AdjustmentStatusRequested).
		Order("created_at ASC").
		Limit(limit).
		Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("error listing pending adjustment requests: %w", err)
	}
	return reqs, nil
}

func decisionNotification(req *models.AdjustmentRequest) notify.Notification {
	if req.Status == models.AdjustmentStatusApproved {
		return notify.Notification{
			Title:              "Commission adjustment approved",
			Body:               fmt.Sprintf("An adjustment of %s %s was added to your commission.", req.DeltaAmount.String(), req.Currency),
			RecipientProfileID: req.ProfileID,
		}
	}
	return notify.Notification{
		Title:              "Commission adjustment rejected",
		Body:               fmt.Sprintf("Your adjustment request of %s %s was rejected.", req.DeltaAmount.String(), req.Currency),
		RecipientProfileID: req.ProfileID,
	}
}
