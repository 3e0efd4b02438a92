package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/models"
	"github.com/cruisemall/affiliate/internal/services/ledger"
	"github.com/cruisemall/affiliate/internal/services/profile"
)

// ProfileHandler handles the affiliate profile registry
type ProfileHandler struct {
	profiles *profile.ProfileService
	ledger   *ledger.LedgerService
	logger   logging.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles *profile.ProfileService, ledgerService *ledger.LedgerService, logger logging.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, ledger: ledgerService, logger: logger}
}

// CreateProfileRequest represents a request to register an affiliate
type CreateProfileRequest struct {
	Type        models.ProfileType `json:"type" binding:"required,oneof=BRANCH_MANAGER SALES_AGENT"`
	DisplayName string             `json:"display_name" binding:"required"`
}

// AssignManagerRequest names the agent's new manager
type AssignManagerRequest struct {
	ManagerID uuid.UUID `json:"manager_id" binding:"required"`
}

// UpdateStatusRequest represents a profile status change
type UpdateStatusRequest struct {
	Status models.ProfileStatus `json:"status" binding:"required,oneof=ACTIVE SUSPENDED TERMINATED"`
}

// CreateProfile registers a new affiliate profile
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.profiles.CreateProfile(c.Request.Context(), actor, req.Type, req.DisplayName)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"profile": p})
}

// GetProfile returns a profile with its balance across all sales
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	p, err := h.profiles.GetProfile(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	balance, err := h.ledger.BalanceForProfile(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": p, "balance": balance})
}

// AssignManager moves an agent under a new manager
func (h *ProfileHandler) AssignManager(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	agentID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req AssignManagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	relation, err := h.profiles.AssignManager(c.Request.Context(), actor, agentID, req.ManagerID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"relation": relation})
}

// UpdateStatus suspends, reactivates or terminates a profile
func (h *ProfileHandler) UpdateStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.profiles.UpdateStatus(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": p})
}

// RelationHistory lists every manager an agent has reported to
func (h *ProfileHandler) RelationHistory(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	relations, err := h.profiles.RelationHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"relations": relations})
}

// DeleteProfile removes a profile that no ledger entry references
func (h *ProfileHandler) DeleteProfile(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.profiles.DeleteProfile(c.Request.Context(), actor, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}
