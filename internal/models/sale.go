package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleStatus is the status of an attributed purchase
type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "PENDING"
	SaleStatusConfirmed SaleStatus = "CONFIRMED"
	SaleStatusRefunded  SaleStatus = "REFUNDED"
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

// saleTransitions lists the forward moves of the sale state machine. Leaving
// REFUNDED is only done by the refund processor's cancel operation and is not
// listed here.
var saleTransitions = map[SaleStatus][]SaleStatus{
	SaleStatusPending:   {SaleStatusConfirmed, SaleStatusCancelled, SaleStatusRefunded},
	SaleStatusConfirmed: {SaleStatusRefunded},
}

// CanTransition reports whether from→to is a forward move
func (from SaleStatus) CanTransition(to SaleStatus) bool {
	for _, s := range saleTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Sale is one purchase attributed to the affiliate program
type Sale struct {
	Base
	SaleAmount   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"sale_amount"`
	Currency     string          `gorm:"type:varchar(3);not null" json:"currency"`
	ProductCode  string          `gorm:"type:varchar(100);not null;index" json:"product_code"`
	ManagerID    *uuid.UUID      `gorm:"type:uuid;index" json:"manager_id,omitempty"`
	AgentID      *uuid.UUID      `gorm:"type:uuid;index" json:"agent_id,omitempty"`
	LeadID       *uuid.UUID      `gorm:"type:uuid;index" json:"lead_id,omitempty"`
	Status       SaleStatus      `gorm:"type:varchar(20);not null;index" json:"status"`
	ConfirmedAt  *time.Time      `json:"confirmed_at,omitempty"`
	RefundedAt   *time.Time      `json:"refunded_at,omitempty"`
	RefundReason string          `gorm:"type:text" json:"refund_reason,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	Metadata     JSON            `gorm:"type:jsonb" json:"metadata,omitempty"`
}

// TableName pins the table name
func (Sale) TableName() string {
	return "sales"
}

// Attributed reports whether the sale names a manager or an agent
func (s *Sale) Attributed() bool {
	return s.ManagerID != nil || s.AgentID != nil
}

// PreRefundStatus is the status a cancelled refund restores
func (s *Sale) PreRefundStatus() SaleStatus {
	if s.ConfirmedAt != nil {
		return SaleStatusConfirmed
	}
	return SaleStatusPending
}
