// Package audit records administrative actions on the affiliate ledger
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventType represents the type of audit event
type EventType string

const (
	EventTypeAdjustmentRequested EventType = "adjustment_requested"
	EventTypeAdjustmentApproved  EventType = "adjustment_approved"
	EventTypeAdjustmentRejected  EventType = "adjustment_rejected"
	EventTypeRefundProcessed     EventType = "refund_processed"
	EventTypeRefundCancelled     EventType = "refund_cancelled"
	EventTypeSettlementCreated   EventType = "settlement_created"
	EventTypeManagerAssigned     EventType = "manager_assigned"
)

// AuditLog represents an audit log entry in the database
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID    *uuid.UUID `gorm:"type:uuid;index" json:"actor_id,omitempty"`
	TargetType string     `gorm:"type:varchar(50);index" json:"target_type"`
	TargetID   string     `gorm:"type:varchar(64);index" json:"target_id"`
	EventType  EventType  `gorm:"type:varchar(50);index" json:"event_type"`
	Metadata   string     `gorm:"type:text" json:"metadata"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

// TableName pins the table name
func (AuditLog) TableName() string {
	return "audit_logs"
}

// Event describes one audited action
type Event struct {
	Type       EventType
	ActorID    *uuid.UUID
	TargetType string
	TargetID   string
	Metadata   map[string]interface{}
}

// Logger is the audit logger
type Logger struct {
	db *gorm.DB
}

// NewLogger creates a new audit logger
func NewLogger(db *gorm.DB) *Logger {
	return &Logger{db: db}
}

// Record writes the event with tx, so it commits or rolls back together
// with the action it describes
func (l *Logger) Record(tx *gorm.DB, event Event) error {
	var metadataJSON string
	if event.Metadata != nil {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
		metadataJSON = string(b)
	}

	return tx.Create(&AuditLog{
		ID:         uuid.New(),
		ActorID:    event.ActorID,
		TargetType: event.TargetType,
		TargetID:   event.TargetID,
		EventType:  event.Type,
		Metadata:   metadataJSON,
		CreatedAt:  time.Now(),
	}).Error
}

// ForTarget lists the audit trail of one entity, newest first
func (l *Logger) ForTarget(targetType, targetID string, limit int) ([]AuditLog, error) {
	var logs []AuditLog
	err := l.db.Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
