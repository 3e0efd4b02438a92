package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementBatch is one payout of unsettled entries for a profile. NetAmount
// may be negative when reversals outweigh new earnings; the shortfall is
// recovered from later payouts.
type SettlementBatch struct {
	Base
	ProfileID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"profile_id"`
	Currency         string          `gorm:"type:varchar(3);not null" json:"currency"`
	CutoffAt         time.Time       `gorm:"not null" json:"cutoff_at"`
	EntryCount       int             `gorm:"not null" json:"entry_count"`
	NetAmount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"net_amount"`
	WithholdingTotal decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"withholding_total"`
	CreatedBy        *uuid.UUID      `gorm:"type:uuid" json:"created_by,omitempty"`
}

// TableName pins the table name
func (SettlementBatch) TableName() string {
	return "settlement_batches"
}
