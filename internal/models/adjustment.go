package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdjustmentStatus is the state of an adjustment request
type AdjustmentStatus string

const (
	AdjustmentStatusRequested AdjustmentStatus = "REQUESTED"
	AdjustmentStatusApproved  AdjustmentStatus = "APPROVED"
	AdjustmentStatusRejected  AdjustmentStatus = "REJECTED"
)

// Terminal reports whether the request has been decided
func (s AdjustmentStatus) Terminal() bool {
	return s == AdjustmentStatusApproved || s == AdjustmentStatusRejected
}

// AdjustmentRequest proposes a signed delta against an existing ledger entry
type AdjustmentRequest struct {
	Base
	LedgerEntryID uint64           `gorm:"not null;index" json:"ledger_entry_id"`
	SaleID        uuid.UUID        `gorm:"type:uuid;not null;index" json:"sale_id"`
	ProfileID     uuid.UUID        `gorm:"type:uuid;not null;index" json:"profile_id"`
	DeltaAmount   decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"delta_amount"`
	Currency      string           `gorm:"type:varchar(3);not null" json:"currency"`
	Reason        string           `gorm:"type:text;not null" json:"reason"`
	RequestedBy   uuid.UUID        `gorm:"type:uuid;not null" json:"requested_by"`
	Status        AdjustmentStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ApproverID    *uuid.UUID       `gorm:"type:uuid" json:"approver_id,omitempty"`
	DecidedAt     *time.Time       `json:"decided_at,omitempty"`
	DecisionNote  string           `gorm:"type:text" json:"decision_note,omitempty"`
	ResultEntryID *uint64          `json:"result_entry_id,omitempty"`
}

// TableName pins the table name
func (AdjustmentRequest) TableName() string {
	return "adjustment_requests"
}
