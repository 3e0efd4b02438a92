package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cruisemall/affiliate/internal/apperrors"
	"github.com/cruisemall/affiliate/internal/database"
	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/models"
	"github.com/cruisemall/affiliate/internal/security"
	"github.com/cruisemall/affiliate/internal/security/audit"
)

const codeAttempts = 5

// ProfileService is the registry of affiliate participants and the
// manager/agent relation graph
type ProfileService struct {
	runner *database.TxRunner
	policy security.Policy
	audit  *audit.Logger
	logger logging.Logger
}

// NewProfileService creates a new profile service
func NewProfileService(runner *database.TxRunner, policy security.Policy, auditLogger *audit.Logger, logger logging.Logger) *ProfileService {
	return &ProfileService{runner: runner, policy: policy, audit: auditLogger, logger: logger}
}

// CreateProfile registers an ACTIVE participant on contract approval
func (s *ProfileService) CreateProfile(ctx context.Context, actor security.Actor, profileType models.ProfileType, displayName string) (*models.Profile, error) {
	if err := s.policy.Authorize(actor, security.ActionManageProfiles); err != nil {
		return nil, err
	}
	if !profileType.Valid() {
		return nil, apperrors.InvalidEntry("invalid profile type %q", profileType)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, apperrors.InvalidEntry("display name is required")
	}

	profile := &models.Profile{
		Type:               profileType,
		Status:             models.ProfileStatusActive,
		DisplayName:        displayName,
		ContractApprovedAt: time.Now(),
	}

	err := s.runner.Transact(ctx, func(tx *gorm.DB) error {
		code, err := uniqueCode(tx, displayName)
		if err != nil {
			return err
		}
		profile.AffiliateCode = code
		if err := tx.Create(profile).Error; err != nil {
			return fmt.Errorf("error creating profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logging.Fields{
		"profile_id": profile.ID,
		"type":       profile.Type,
		"code":       profile.AffiliateCode,
	}).Info("Profile created")
	return profile, nil
}

// GetProfile loads a profile by id
func (s *ProfileService) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := s.runner.DB().WithContext(ctx).First(&profile, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("profile", id)
		}
		return nil, fmt.Errorf("error finding profile: %w", err)
	}
	return &profile, nil
}

// GetByAffiliateCode resolves a referral link code
func (s *ProfileService) GetByAffiliateCode(ctx context.Context, code string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.runner.DB().WithContext(ctx).First(&profile, "affiliate_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("profile", code)
		}
		return nil, fmt.Errorf("error finding profile: %w", err)
	}
	return &profile, nil
}

// UpdateStatus moves a profile between ACTIVE, SUSPENDED and TERMINATED.
// A TERMINATED profile stays terminated.
func (s *ProfileService) UpdateStatus(ctx context.Context, actor security.Actor, id uuid.UUID, status models.ProfileStatus) (*models.Profile, error) {
	if err := s.policy.Authorize(actor, security.ActionManageProfiles); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.InvalidEntry("invalid profile status %q", status)
	}

	var profile models.Profile
	err := s.runner.Transact(ctx, func(tx *gorm.DB) error {
		if err := lockProfile(tx, id, &profile); err != nil {
			return err
		}
		if profile.Status == models.ProfileStatusTerminated && status != models.ProfileStatusTerminated {
			return &apperrors.InvalidStateError{Entity: "profile", ID: id.String(), Status: string(profile.Status), Op: "reactivate"}
		}
		if err := tx.Model(&profile).Update("status", status).Error; err != nil {
			return fmt.Errorf("error updating profile status: %w", err)
		}
		profile.Status = status
		if status == models.ProfileStatusTerminated {
			return endActiveRelations(tx, id, time.Now())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// AssignManager makes managerID the agent's active manager. The previous
// relation is ended, not overwritten.
func (s *ProfileService) AssignManager(ctx context.Context, actor security.Actor, agentID, managerID uuid.UUID) (*models.ProfileRelation, error) {
	if err := s.policy.Authorize(actor, security.ActionManageProfiles); err != nil {
		return nil, err
	}

	var relation *models.ProfileRelation
	err := s.runner.Transact(ctx, func(tx *gorm.DB) error {
		var agent, manager models.Profile
		if err := lockProfile(tx, agentID, &agent); err != nil {
			return err
		}
		if err := lockProfile(tx, managerID, &manager); err != nil {
			return err
		}
		if agent.Type != models.ProfileTypeSalesAgent {
			return &apperrors.InvalidStateError{Entity: "profile", ID: agentID.String(), Status: string(agent.Type), Op: "assign a manager to"}
		}
		if manager.Type != models.ProfileTypeBranchManager {
			return &apperrors.InvalidStateError{Entity: "profile", ID: managerID.String(), Status: string(manager.Type), Op: "assign as manager"}
		}
		if manager.Status != models.ProfileStatusActive {
			return &apperrors.InvalidStateError{Entity: "profile", ID: managerID.String(), Status: string(manager.Status), Op: "assign as manager"}
		}

		current, err := activeRelation(tx, agentID)
		if err != nil {
			return err
		}
		if current != nil && current.ManagerID == managerID {
			relation = current
			return nil
		}

		now := time.Now()
		if err := endActiveRelations(tx, agentID, now); err != nil {
			return err
		}

		relation = &models.ProfileRelation{
			AgentID:    agentID,
			ManagerID:  managerID,
			Status:     models.RelationStatusActive,
			StartedAt:  now,
			AssignedBy: actor.ID,
		}
		if err := tx.Create(relation).Error; err != nil {
			return fmt.Errorf("error creating profile relation: %w", err)
		}

		return s.audit.Record(tx, audit.Event{
			Type:       audit.EventTypeManagerAssigned,
			ActorID:    &actor.ID,
			TargetType: "profile",
			TargetID:   agentID.String(),
			Metadata: map[string]interface{}{
				"manager_id":  managerID,
				"relation_id": relation.ID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logging.Fields{
		"agent_id":   agentID,
		"manager_id": managerID,
		"actor_id":   actor.ID,
	}).Info("Manager assigned")
	return relation, nil
}

// ActiveManager returns the agent's current manager, or nil when unassigned
func (s *ProfileService) ActiveManager(ctx context.Context, agentID uuid.UUID) (*models.Profile, error) {
	db := s.runner.DB().WithContext(ctx)
	rel, err := activeRelation(db, agentID)
	if err != nil || rel == nil {
		return nil, err
	}
	var manager models.Profile
	if err := db.First(&manager, "id = ?", rel.ManagerID).Error; err != nil {
		return nil, fmt.Errorf("error finding manager: %w", err)
	}
	return &manager, nil
}

// RelationHistory lists every manager relation of an agent, oldest first
func (s *ProfileService) RelationHistory(ctx context.Context, agentID uuid.UUID) ([]models.ProfileRelation, error) {
	var relations []models.ProfileRelation
	if err := s.runner.DB().WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("started_at ASC").
		Find(&relations).Error; err != nil {
		return nil, fmt.Errorf("error listing profile relations: %w", err)
	}
	return relations, nil
}

// DeleteProfile soft-deletes a profile no ledger entry refers to
func (s *ProfileService) DeleteProfile(ctx context.Context, actor security.Actor, id uuid.UUID) error {
	if err := s.policy.Authorize(actor, security.ActionManageProfiles); err != nil {
		return err
	}

	return s.runner.Transact(ctx, func(tx *gorm.DB) error {
		var profile models.Profile
		if err := lockProfile(tx, id, &profile); err != nil {
			return err
		}

		var refs int64
		if err := tx.Model(&models.LedgerEntry{}).Where("profile_id = ?", id).Count(&refs).Error; err != nil {
			return fmt.Errorf("error counting ledger entries: %w", err)
		}
		if refs > 0 {
			return &apperrors.InvalidStateError{Entity: "profile", ID: id.String(), Status: "REFERENCED_BY_LEDGER", Op: "delete"}
		}

		if err := endActiveRelations(tx, id, time.Now()); err != nil {
			return err
		}
		if err := tx.Delete(&profile).Error; err != nil {
			return fmt.Errorf("error deleting profile: %w", err)
		}
		return nil
	})
}

// ActiveManagerWithTx is ActiveManager's lookup inside a caller's transaction
func ActiveManagerWithTx(tx *gorm.DB, agentID uuid.UUID) (*uuid.UUID, error) {
	rel, err := activeRelation(tx, agentID)
	if err != nil || rel == nil {
		return nil, err
	}
	return &rel.ManagerID, nil
}

func lockProfile(tx *gorm.DB, id uuid.UUID, profile *models.Profile) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(profile, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("profile", id)
		}
		return fmt.Errorf("error finding profile: %w", err)
	}
	return nil
}

func activeRelation(db *gorm.DB, agentID uuid.UUID) (*models.ProfileRelation, error) {
	var rel models.ProfileRelation
	err := db.Where("agent_id = ? AND status = ?", agentID, models.RelationStatusActive).First(&rel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error finding active relation: %w", err)
	}
	return &rel, nil
}

// endActiveRelations ends every active relation where id is agent or manager
func endActiveRelations(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	err := tx.Model(&models.ProfileRelation{}).
		Where("(agent_id = ? OR manager_id = ?) AND status = ?", id, id, models.RelationStatusActive).
		Updates(map[string]interface{}{
			"status":   models.RelationStatusEnded,
			"ended_at": at,
		}).Error
	if err != nil {
		return fmt.Errorf("error ending profile relations: %w", err)
	}
	return nil
}

func uniqueCode(tx *gorm.DB, displayName string) (string, error) {
	base := slug.Make(displayName)
	if base == "" {
		base = "affiliate"
	}
	if len(base) > 48 {
		base = strings.TrimRight(base[:48], "-")
	}

	for i := 0; i < codeAttempts; i++ {
		code := fmt.Sprintf("%s-%s", base, uuid.NewString()[:6])
		var count int64
		if err := tx.Unscoped().Model(&models.Profile{}).Where("affiliate_code = ?", code).Count(&count).Error; err != nil {
			return "", fmt.Errorf("error checking affiliate code: %w", err)
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique affiliate code for %q", displayName)
}
