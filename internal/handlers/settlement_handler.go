package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/models"
	"github.com/cruisemall/affiliate/internal/services/ledger"
	"github.com/cruisemall/affiliate/internal/services/settlement"
)

// SettlementHandler handles settlement runs and unsettled entry queries
type SettlementHandler struct {
	settlements *settlement.SettlementService
	ledger      *ledger.LedgerService
	logger      logging.Logger
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(settlements *settlement.SettlementService, ledgerService *ledger.LedgerService, logger logging.Logger) *SettlementHandler {
	return &SettlementHandler{settlements: settlements, ledger: ledgerService, logger: logger}
}

// RunSettlementRequest sets the cutoff; entries created before it are paid.
// An empty cutoff means now.
type RunSettlementRequest struct {
	Cutoff *time.Time `json:"cutoff"`
}

// Unsettled lists unsettled entries for either a profile or a sale
func (h *SettlementHandler) Unsettled(c *gin.Context) {
	var (
		entries []models.LedgerEntry
		err     error
	)

	switch {
	case c.Query("profile_id") != "":
		id, perr := uuid.Parse(c.Query("profile_id"))
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile_id"})
			return
		}
		entries, err = h.ledger.FindUnsettledByProfile(c.Request.Context(), id)
	case c.Query("sale_id") != "":
		id, perr := uuid.Parse(c.Query("sale_id"))
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sale_id"})
			return
		}
		entries, err = h.ledger.FindUnsettledBySale(c.Request.Context(), id)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile_id or sale_id is required"})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   ledger.Fold(entries),
	})
}

// Run settles every unsettled entry created before the cutoff
func (h *SettlementHandler) Run(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req RunSettlementRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	cutoff := time.Now()
	if req.Cutoff != nil {
		cutoff = *req.Cutoff
	}

	result, err := h.settlements.Run(c.Request.Context(), actor, cutoff)
	if err != nil {
		// Batches that committed before the failure stay committed
		if result != nil {
			h.logger.WithError(err).Error("Settlement run finished with failures")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "settlement run partially failed", "result": result})
			return
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetBatch returns one settlement batch
func (h *SettlementHandler) GetBatch(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	batch, err := h.settlements.GetBatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"batch": batch})
}

// ListBatches lists a profile's settlement batches
func (h *SettlementHandler) ListBatches(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	batches, err := h.settlements.ListBatches(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"batches": batches})
}
