package security

import (
	"github.com/google/uuid"

	"github.com/cruisemall/affiliate/internal/apperrors"
)

// Role is the role carried by an authenticated actor
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleAffiliate Role = "affiliate"
)

// Actor is the authenticated caller handed over by the session layer
type Actor struct {
	ID        uuid.UUID  `json:"id"`
	Role      Role       `json:"role"`
	ProfileID *uuid.UUID `json:"profile_id,omitempty"`
}

// IsAdmin reports whether the actor holds the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Action names a guarded ledger operation
type Action string

const (
	ActionRequestAdjustment Action = "request_adjustment"
	ActionDecideAdjustment  Action = "decide_adjustment"
	ActionProcessRefund     Action = "process_refund"
	ActionCancelRefund      Action = "cancel_refund"
	ActionRunSettlement     Action = "run_settlement"
	ActionManageProfiles    Action = "manage_profiles"
)

// Policy decides whether an actor may perform an action. Services ask it
// once per operation.
type Policy interface {
	Authorize(actor Actor, action Action) error
}

// RolePolicy allows admin-only actions to admins and everything else to any
// authenticated actor
type RolePolicy struct {
	adminOnly map[Action]bool
}

// NewRolePolicy returns the default policy
func NewRolePolicy() *RolePolicy {
	return &RolePolicy{
		adminOnly: map[Action]bool{
			ActionDecideAdjustment: true,
			ActionProcessRefund:    true,
			ActionCancelRefund:     true,
			ActionRunSettlement:    true,
			ActionManageProfiles:   true,
		},
	}
}

// Authorize implements Policy
func (p *RolePolicy) Authorize(actor Actor, action Action) error {
	if actor.ID == uuid.Nil {
		return &apperrors.AuthorizationError{ActorID: "anonymous", Action: string(action)}
	}
	if p.adminOnly[action] && !actor.IsAdmin() {
		return &apperrors.AuthorizationError{ActorID: actor.ID.String(), Action: string(action)}
	}
	return nil
}
