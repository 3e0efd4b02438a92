package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EntryType classifies a ledger entry
type EntryType string

const (
	EntryTypeEarned     EntryType = "EARNED"
	EntryTypeAdjustment EntryType = "ADJUSTMENT"
	EntryTypeRefund     EntryType = "REFUND"
)

// Revocable reports whether entries of this type may ever be removed. Only
// refund reversals are revocable, and only by cancelling the refund.
func (t EntryType) Revocable() bool {
	return t == EntryTypeRefund
}

var (
	// ErrDurableEntry is returned when a delete targets an EARNED or ADJUSTMENT entry
	ErrDurableEntry = errors.New("durable ledger entries cannot be deleted")
	// ErrImmutableEntry is returned when a hooked update targets a ledger entry
	ErrImmutableEntry = errors.New("ledger entries are immutable")
)

// LedgerEntry is one signed commission movement for a profile on a sale.
// Rows are write-once; Settled, SettlementBatchID and SettledAt are the only
// columns ever written after insert.
type LedgerEntry struct {
	ID          uint64              `gorm:"primaryKey;autoIncrement" json:"id"`
	SaleID      uuid.UUID           `gorm:"type:uuid;not null;index:idx_ledger_sale_profile" json:"sale_id"`
	ProfileID   uuid.UUID           `gorm:"type:uuid;not null;index:idx_ledger_sale_profile" json:"profile_id"`
	EntryType   EntryType           `gorm:"type:varchar(20);not null;index" json:"entry_type"`
	Amount      decimal.Decimal     `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency    string              `gorm:"type:varchar(3);not null" json:"currency"`
	Withholding decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"withholding"`
	Note        string              `gorm:"type:text" json:"note,omitempty"`

	// Provenance
	ReversesEntryID     *uint64    `gorm:"index" json:"reverses_entry_id,omitempty"`
	AdjustmentRequestID *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"adjustment_request_id,omitempty"`
	AuthorizedBy        *uuid.UUID `gorm:"type:uuid" json:"authorized_by,omitempty"`
	AuthorizedAt        *time.Time `json:"authorized_at,omitempty"`
	Reason              string     `gorm:"type:text" json:"reason,omitempty"`
	Metadata            JSON       `gorm:"type:jsonb" json:"metadata,omitempty"`

	// Settlement projection
	Settled           bool       `gorm:"not null;default:false;index" json:"settled"`
	SettlementBatchID *uuid.UUID `gorm:"type:uuid;index" json:"settlement_batch_id,omitempty"`
	SettledAt         *time.Time `json:"settled_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName pins the table name
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// BeforeUpdate rejects hooked updates. The settlement projection is written
// with UpdateColumns, which skips hooks.
func (e *LedgerEntry) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableEntry
}

// BeforeDelete only lets revocable entries go
func (e *LedgerEntry) BeforeDelete(tx *gorm.DB) error {
	if !e.EntryType.Revocable() {
		return ErrDurableEntry
	}
	return nil
}

// Reversal returns the equal-and-opposite mirror of e. The caller fills in
// the actor and reason.
func (e *LedgerEntry) Reversal() LedgerEntry {
	originalID := e.ID
	mirror := LedgerEntry{
		SaleID:          e.SaleID,
		ProfileID:       e.ProfileID,
		EntryType:       EntryTypeRefund,
		Amount:          e.Amount.Neg(),
		Currency:        e.Currency,
		ReversesEntryID: &originalID,
	}
	if e.Withholding.Valid {
		mirror.Withholding = decimal.NewNullDecimal(e.Withholding.Decimal.Neg())
	}
	return mirror
}
