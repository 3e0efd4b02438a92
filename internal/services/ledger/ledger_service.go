package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cruisemall/affiliate/internal/apperrors"
	"github.com/cruisemall/affiliate/internal/database"
	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/metrics"
	"github.com/cruisemall/affiliate/internal/models"
)

// LedgerService owns the ledger_entries table. Every change to a profile's
// position is a new signed entry; the only in-place write is the settlement
// projection, and the only delete is revoking refund reversals.
type LedgerService struct {
	runner *database.TxRunner
	logger logging.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(runner *database.TxRunner, logger logging.Logger) *LedgerService {
	return &LedgerService{runner: runner, logger: logger}
}

// RecordEarned appends one EARNED entry for profileID on saleID
func (s *LedgerService) RecordEarned(ctx context.Context, saleID, profileID uuid.UUID, amount decimal.Decimal, currency string, withholding *decimal.Decimal) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{
		SaleID:    saleID,
		ProfileID: profileID,
		EntryType: models.EntryTypeEarned,
		Amount:    amount,
		Currency:  currency,
	}
	if withholding != nil {
		entry.Withholding = decimal.NewNullDecimal(*withholding)
	}

	err := s.runner.Transact(ctx, func(tx *gorm.DB) error {
		sale, err := LockSale(tx, saleID)
		if err != nil {
			return err
		}
		return s.Append(tx, sale, entry)
	})
	if err != nil {
		return nil, err
	}

	Count(*entry)
	s.logger.WithFields(logging.Fields{
		"sale_id":    saleID,
		"profile_id": profileID,
		"entry_id":   entry.ID,
		"amount":     amount.String(),
	}).Info("Recorded earned commission")
	return entry, nil
}

// Append validates entry against the locked sale and inserts it with tx.
// The caller must hold the sale row lock (see LockSale).
func (s *LedgerService) Append(tx *gorm.DB, sale *models.Sale, entry *models.LedgerEntry) error {
	if entry.SaleID != sale.ID {
		return apperrors.InvalidEntry("entry sale %s does not match locked sale %s", entry.SaleID, sale.ID)
	}
	if entry.Amount.IsZero() {
		return apperrors.InvalidEntry("amount must be non-zero")
	}
	if entry.Withholding.Valid && !entry.Withholding.Decimal.IsZero() &&
		entry.Withholding.Decimal.Sign() != entry.Amount.Sign() {
		return apperrors.InvalidEntry("withholding %s must carry the sign of amount %s", entry.Withholding.Decimal, entry.Amount)
	}
	if entry.Currency == "" {
		entry.Currency = sale.Currency
	}
	if entry.Currency != sale.Currency {
		return apperrors.InvalidEntry("currency %s does not match sale currency %s", entry.Currency, sale.Currency)
	}

	switch sale.Status {
	case models.SaleStatusCancelled:
		return apperrors.InvalidEntry("sale %s is cancelled", sale.ID)
	case models.SaleStatusRefunded:
		return &apperrors.InvalidStateError{Entity: "sale", ID: sale.ID.String(), Status: string(sale.Status), Op: "post to"}
	}

	if err := profileExists(tx, entry.ProfileID); err != nil {
		return err
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("error creating ledger entry: %w", err)
	}
	return nil
}

// GetEntry loads a single entry
func (s *LedgerService) GetEntry(ctx context.Context, id uint64) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := s.runner.DB().WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("ledger entry", id)
		}
		return nil, fmt.Errorf("error finding ledger entry: %w", err)
	}
	return &entry, nil
}

// Entries returns every entry of a sale in creation order
func (s *LedgerService) Entries(ctx context.Context, saleID uuid.UUID) ([]models.LedgerEntry, error) {
	db := s.runner.DB().WithContext(ctx)
	if err := saleExists(db, saleID); err != nil {
		return nil, err
	}

	var entries []models.LedgerEntry
	if err := db.
		Where("sale_id = ?", saleID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("error listing ledger entries: %w", err)
	}
	return entries, nil
}

// BalanceFor folds the entries of (saleID, profileID) in creation order
func (s *LedgerService) BalanceFor(ctx context.Context, saleID, profileID uuid.UUID) (decimal.Decimal, error) {
	db := s.runner.DB().WithContext(ctx)
	if err := saleExists(db, saleID); err != nil {
		return decimal.Zero, err
	}
	if err := profileExists(db, profileID); err != nil {
		return decimal.Zero, err
	}

	var entries []models.LedgerEntry
	if err := db.
		Where("sale_id = ? AND profile_id = ?", saleID, profileID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return decimal.Zero, fmt.Errorf("error loading ledger entries: %w", err)
	}
	return Fold(entries), nil
}

// BalanceForProfile folds every entry of a profile across all sales
func (s *LedgerService) BalanceForProfile(ctx context.Context, profileID uuid.UUID) (decimal.Decimal, error) {
	db := s.runner.DB().WithContext(ctx)
	if err := profileExists(db, profileID); err != nil {
		return decimal.Zero, err
	}

	var entries []models.LedgerEntry
	if err := db.
		Where("profile_id = ?", profileID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return decimal.Zero, fmt.Errorf("error loading ledger entries: %w", err)
	}
	return Fold(entries), nil
}

// Recompute replays the full entry dump of a sale into per-profile balances
func (s *LedgerService) Recompute(ctx context.Context, saleID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	entries, err := s.Entries(ctx, saleID)
	if err != nil {
		return nil, err
	}
	balances := make(map[uuid.UUID]decimal.Decimal)
	for _, e := range entries {
		balances[e.ProfileID] = balances[e.ProfileID].Add(e.Amount)
	}
	return balances, nil
}

// FindUnsettledByProfile lists a profile's unsettled entries in creation order
func (s *LedgerService) FindUnsettledByProfile(ctx context.Context, profileID uuid.UUID) ([]models.LedgerEntry, error) {
	return s.findUnsettled(ctx, "profile_id = ?", profileID)
}

// FindUnsettledBySale lists a sale's unsettled entries in creation order
func (s *LedgerService) FindUnsettledBySale(ctx context.Context, saleID uuid.UUID) ([]models.LedgerEntry, error) {
	return s.findUnsettled(ctx, "sale_id = ?", saleID)
}

func (s *LedgerService) findUnsettled(ctx context.Context, cond string, arg interface{}) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := s.runner.DB().WithContext(ctx).
		Where(cond, arg).
		Where("settled = ?", false).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("error listing unsettled entries: %w", err)
	}
	return entries, nil
}

// MarkSettled flips the settled projection of every entry in entryIDs to the
// batch, or of none of them
func (s *LedgerService) MarkSettled(ctx context.Context, entryIDs []uint64, batchID uuid.UUID) error {
	err := s.runner.Transact(ctx, func(tx *gorm.DB) error {
		return s.MarkSettledWithTx(tx, entryIDs, batchID, time.Now())
	})
	if err != nil {
		return err
	}
	s.logger.WithFields(logging.Fields{
		"batch_id": batchID,
		"entries":  len(entryIDs),
	}).Info("Marked ledger entries settled")
	return nil
}

// MarkSettledWithTx is MarkSettled inside the caller's transaction. It issues
// one conditional update; if it does not cover the whole set the error
// returned makes the caller roll back.
func (s *LedgerService) MarkSettledWithTx(tx *gorm.DB, entryIDs []uint64, batchID uuid.UUID, at time.Time) error {
	ids := uniqueIDs(entryIDs)
	if len(ids) == 0 {
		return apperrors.InvalidEntry("settlement set is empty")
	}

	var found []uint64
	if err := tx.Model(&models.LedgerEntry{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return fmt.Errorf("error checking ledger entries: %w", err)
	}
	if len(found) != len(ids) {
		return apperrors.NotFound("ledger entry", firstMissing(ids, found))
	}

	result := tx.Model(&models.LedgerEntry{}).
		Where("id IN ? AND settled = ?", ids, false).
		UpdateColumns(map[string]interface{}{
			"settled":             true,
			"settlement_batch_id": batchID,
			"settled_at":          at,
		})
	if result.Error != nil {
		return fmt.Errorf("error settling ledger entries: %w", result.Error)
	}
	if result.RowsAffected == int64(len(ids)) {
		return nil
	}

	// Another batch got there first. Report which of ours were already taken.
	var taken []uint64
	if err := tx.Model(&models.LedgerEntry{}).
		Where("id IN ? AND (settled = ? AND (settlement_batch_id IS NULL OR settlement_batch_id <> ?))", ids, true, batchID).
		Order("id ASC").
		Pluck("id", &taken).Error; err != nil {
		return fmt.Errorf("error checking settled entries: %w", err)
	}
	if len(taken) == 0 {
		taken = ids
	}
	return &apperrors.AlreadySettledError{EntryIDs: taken}
}

// RevokeReversals deletes the REFUND entries of a sale. EARNED and ADJUSTMENT
// entries are never selected, and the model's delete hook refuses them
// regardless. Settled reversals belong to a closed batch and block the revoke.
func (s *LedgerService) RevokeReversals(tx *gorm.DB, saleID uuid.UUID) ([]models.LedgerEntry, error) {
	var reversals []models.LedgerEntry
	if err := tx.Where("sale_id = ? AND entry_type = ?", saleID, models.EntryTypeRefund).
		Order("id ASC").
		Find(&reversals).Error; err != nil {
		return nil, fmt.Errorf("error loading refund entries: %w", err)
	}

	for _, r := range reversals {
		if r.Settled {
			return nil, &apperrors.InvalidStateError{
				Entity: "ledger entry",
				ID:     fmt.Sprint(r.ID),
				Status: "SETTLED",
				Op:     "revoke",
			}
		}
	}

	for i := range reversals {
		if err := tx.Delete(&reversals[i]).Error; err != nil {
			return nil, fmt.Errorf("error deleting refund entry %d: %w", reversals[i].ID, err)
		}
	}
	return reversals, nil
}

// LockSale loads a sale with a row lock held until tx ends
func LockSale(tx *gorm.DB, saleID uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sale, "id = ?", saleID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("sale", saleID)
		}
		return nil, fmt.Errorf("error locking sale: %w", err)
	}
	return &sale, nil
}

// Fold sums entry amounts in the given order
func Fold(entries []models.LedgerEntry) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range entries {
		balance = balance.Add(e.Amount)
	}
	return balance
}

// Count records committed entries in the metrics
func Count(entries ...models.LedgerEntry) {
	for _, e := range entries {
		metrics.LedgerEntries.WithLabelValues(string(e.EntryType)).Inc()
	}
}

func profileExists(tx *gorm.DB, profileID uuid.UUID) error {
	var count int64
	if err := tx.Model(&models.Profile{}).Where("id = ?", profileID).Count(&count).Error; err != nil {
		return fmt.Errorf("error finding profile: %w", err)
	}
	if count == 0 {
		return apperrors.NotFound("profile", profileID)
	}
	return nil
}

func saleExists(db *gorm.DB, saleID uuid.UUID) error {
	var sale models.Sale
	if err := db.Select("id").First(&sale, "id = ?", saleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("sale", saleID)
		}
		return fmt.Errorf("error finding sale: %w", err)
	}
	return nil
}

func uniqueIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func firstMissing(want, found []uint64) uint64 {
	have := make(map[uint64]struct{}, len(found))
	for _, id := range found {
		have[id] = struct{}{}
	}
	for _, id := range want {
		if _, ok := have[id]; !ok {
			return id
		}
	}
	return 0
}
