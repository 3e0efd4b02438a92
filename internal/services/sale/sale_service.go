package sale

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"gorm.io/gorm"

	"github.com/cruisemall/affiliate/internal/apperrors"
	"github.com/cruisemall/affiliate/internal/config"
	"github.com/cruisemall/affiliate/internal/database"
	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/models"
	"github.com/cruisemall/affiliate/internal/services/ledger"
	"github.com/cruisemall/affiliate/internal/services/profile"
)

// CreateSaleInput is what the sale origination collaborator hands over
type CreateSaleInput struct {
	SaleAmount  decimal.Decimal        `json:"sale_amount"`
	Currency    string                 `json:"currency"`
	ProductCode string                 `json:"product_code"`
	ManagerID   *uuid.UUID             `json:"manager_id,omitempty"`
	AgentID     *uuid.UUID             `json:"agent_id,omitempty"`
	LeadID      *uuid.UUID             `json:"lead_id,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// SaleService records attributed sales and posts their commission
type SaleService struct {
	runner *database.TxRunner
	ledger *ledger.LedgerService
	rates  config.CommissionConfig
	logger logging.Logger
}

// NewSaleService creates a new sale service
func NewSaleService(runner *database.TxRunner, ledgerService *ledger.LedgerService, rates config.CommissionConfig, logger logging.Logger) *SaleService {
	return &SaleService{runner: runner, ledger: ledgerService, rates: rates, logger: logger}
}

// CreateSale records a PENDING sale. At least one of manager and agent is
// required; when only an agent is given, the agent's active manager is
// attributed too.
func (s *SaleService) CreateSale(ctx context.Context, input CreateSaleInput) (*models.Sale, error) {
	if !input.SaleAmount.IsPositive() {
		return nil, apperrors.InvalidEntry("sale amount must be positive")
	}
	unit, err := currency.ParseISO(strings.TrimSpace(input.Currency))
	if err != nil || unit == currency.XXX {
		return nil, apperrors.InvalidEntry("invalid currency %q", input.Currency)
	}
	if strings.TrimSpace(input.ProductCode) == "" {
		return nil, apperrors.InvalidEntry("product code is required")
	}

	sale := &models.Sale{
		SaleAmount:  input.SaleAmount,
		Currency:    unit.String(),
		ProductCode: input.ProductCode,
		ManagerID:   input.ManagerID,
		AgentID:     input.AgentID,
		LeadID:      input.LeadID,
		Status:      models.SaleStatusPending,
		Metadata:    models.JSON(input.Metadata),
	}

	err = s.runner.Transact(ctx, func(tx *gorm.DB) error {
		if sale.AgentID != nil {
			if err := requireProfileType(tx, *sale.AgentID, models.ProfileTypeSalesAgent); err != nil {
				return err
			}
			if sale.ManagerID == nil {
				managerID, err := profile.ActiveManagerWithTx(tx, *sale.AgentID)
				if err != nil {
					return err
				}
				sale.ManagerID = managerID
			}
		}
		if !sale.Attributed() {
			return apperrors.InvalidEntry("sale must be attributed to a manager or an agent")
		}
		if sale.ManagerID != nil {
			if err := requireProfileType(tx, *sale.ManagerID, models.ProfileTypeBranchManager); err != nil {
				return err
			}
		}

		if sale.LeadID != nil {
			res := tx.Model(&models.Lead{}).Where("id = ?", *sale.LeadID).Update("status", models.LeadStatusConverted)
			if res.Error != nil {
				return fmt.Errorf("error updating lead: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return apperrors.NotFound("lead", *sale.LeadID)
			}
		}

		if err := tx.Create(sale).Error; err != nil {
			return fmt.Errorf("error creating sale: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logging.Fields{
		"sale_id": sale.ID,
		"amount":  sale.SaleAmount.String(),
		"product": sale.ProductCode,
	}).Info("Sale recorded")
	return sale, nil
}

// GetSale loads a sale by id
func (s *SaleService) GetSale(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	if err := s.runner.DB().WithContext(ctx).First(&sale, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("sale", id)
		}
		return nil, fmt.Errorf("error finding sale: %w", err)
	}
	return &sale, nil
}

// ConfirmSale moves a PENDING sale to CONFIRMED and posts the EARNED entries
// of its manager and agent in the same transaction
func (s *SaleService) ConfirmSale(ctx context.Context, saleID uuid.UUID) (*models.Sale, []models.LedgerEntry, error) {
	var (
		sale    *models.Sale
		entries []models.LedgerEntry
	)

	err := s.runner.Transact(ctx, func(tx *gorm.DB) error {
		entries = nil

		var err error
		sale, err = ledger.LockSale(tx, saleID)
		if err != nil {
			return err
		}
		if !sale.Status.CanTransition(models.SaleStatusConfirmed) {
			return &apperrors.InvalidStateError{Entity: "sale", ID: saleID.String(), Status: string(sale.Status), Op: "confirm"}
		}
		if !sale.Attributed() {
			return &apperrors.InvalidStateError{Entity: "sale", ID: saleID.String(), Status: "UNATTRIBUTED", Op: "confirm"}
		}

		now := time.Now()
		if err := tx.Model(sale).Updates(map[string]interface{}{
			"status":       models.SaleStatusConfirmed,
			"confirmed_at": now,
		}).Error; err != nil {
			return fmt.Errorf("error confirming sale: %w", err)
		}
		sale.Status = models.SaleStatusConfirmed
		sale.ConfirmedAt = &now

		for _, e := range s.split(sale) {
			entry := e
			if err := s.ledger.Append(tx, sale, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	ledger.Count(entries...)
	s.logger.WithFields(logging.Fields{
		"sale_id": saleID,
		"entries": len(entries),
	}).Info("Sale confirmed")
	return sale, entries, nil
}

// CancelSale moves a PENDING sale to CANCELLED
func (s *SaleService) CancelSale(ctx context.Context, saleID uuid.UUID, reason string) (*models.Sale, error) {
	var sale *models.Sale
	err := s.runner.Transact(ctx, func(tx *gorm.DB) error {
		var err error
		sale, err = ledger.LockSale(tx, saleID)
		if err != nil {
			return err
		}
		if !sale.Status.CanTransition(models.SaleStatusCancelled) {
			return &apperrors.InvalidStateError{Entity: "sale", ID: saleID.String(), Status: string(sale.Status), Op: "cancel"}
		}

		metadata := models.JSON{}
		for k, v := range sale.Metadata {
			metadata[k] = v
		}
		if reason != "" {
			metadata["cancel_reason"] = reason
		}

		now := time.Now()
		if err := tx.Model(sale).Updates(map[string]interface{}{
			"status":       models.SaleStatusCancelled,
			"cancelled_at": now,
			"metadata":     metadata,
		}).Error; err != nil {
			return fmt.Errorf("error cancelling sale: %w", err)
		}
		sale.Status = models.SaleStatusCancelled
		sale.CancelledAt = &now
		sale.Metadata = metadata
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// split computes the EARNED postings of a sale. Amounts that round to zero
// are not posted.
func (s *SaleService) split(sale *models.Sale) []models.LedgerEntry {
	var entries []models.LedgerEntry
	add := func(profileID *uuid.UUID, rate decimal.Decimal, note string) {
		if profileID == nil {
			return
		}
		amount := sale.SaleAmount.Mul(rate).Round(2)
		if amount.IsZero() {
			return
		}
		entries = append(entries, models.LedgerEntry{
			SaleID:      sale.ID,
			ProfileID:   *profileID,
			EntryType:   models.EntryTypeEarned,
			Amount:      amount,
			Currency:    sale.Currency,
			Withholding: decimal.NewNullDecimal(amount.Mul(s.rates.WithholdingRate).Round(2)),
			Note:        note,
		})
	}
	add(sale.ManagerID, s.rates.ManagerRate, "branch manager commission")
	add(sale.AgentID, s.rates.AgentRate, "sales agent commission")
	return entries
}

func requireProfileType(tx *gorm.DB, id uuid.UUID, want models.ProfileType) error {
	var p models.Profile
	if err := tx.First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("profile", id)
		}
		return fmt.Errorf("error finding profile: %w", err)
	}
	if p.Type != want {
		return &apperrors.InvalidStateError{Entity: "profile", ID: id.String(), Status: string(p.Type), Op: "attribute sale to"}
	}
	if p.Status != models.ProfileStatusActive {
		return &apperrors.InvalidStateError{Entity: "profile", ID: id.String(), Status: string(p.Status), Op: "attribute sale to"}
	}
	return nil
}
