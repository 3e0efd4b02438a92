package models

import (
	"time"

	"github.com/google/uuid"
)

// ProfileType is the affiliate tier of a participant
type ProfileType string

const (
	ProfileTypeBranchManager ProfileType = "BRANCH_MANAGER"
	ProfileTypeSalesAgent    ProfileType = "SALES_AGENT"
)

// Valid reports whether t is a known profile type
func (t ProfileType) Valid() bool {
	return t == ProfileTypeBranchManager || t == ProfileTypeSalesAgent
}

// ProfileStatus is the lifecycle status of a profile
type ProfileStatus string

const (
	ProfileStatusActive     ProfileStatus = "ACTIVE"
	ProfileStatusSuspended  ProfileStatus = "SUSPENDED"
	ProfileStatusTerminated ProfileStatus = "TERMINATED"
)

// Valid reports whether s is a known profile status
func (s ProfileStatus) Valid() bool {
	switch s {
	case ProfileStatusActive, ProfileStatusSuspended, ProfileStatusTerminated:
		return true
	}
	return false
}

// Profile is an affiliate participant, created when the contract is approved
type Profile struct {
	Base
	Type               ProfileType   `gorm:"type:varchar(20);not null;index" json:"type"`
	Status             ProfileStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	AffiliateCode      string        `gorm:"type:varchar(64);not null;uniqueIndex" json:"affiliate_code"`
	DisplayName        string        `gorm:"type:varchar(255);not null" json:"display_name"`
	ContractApprovedAt time.Time     `json:"contract_approved_at"`
}

// TableName pins the table name
func (Profile) TableName() string {
	return "profiles"
}

// RelationStatus is the status of a manager/agent relation version
type RelationStatus string

const (
	RelationStatusActive RelationStatus = "ACTIVE"
	RelationStatusEnded  RelationStatus = "ENDED"
)

// ProfileRelation links a sales agent to a branch manager. Reassignment ends
// the current row and inserts a new one, so history is kept.
type ProfileRelation struct {
	Base
	AgentID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"agent_id"`
	ManagerID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"manager_id"`
	Status     RelationStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	StartedAt  time.Time      `gorm:"not null" json:"started_at"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
	AssignedBy uuid.UUID      `gorm:"type:uuid" json:"assigned_by"`
}

// TableName pins the table name
func (ProfileRelation) TableName() string {
	return "profile_relations"
}
