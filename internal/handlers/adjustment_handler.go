package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/services/adjustment"
)

const defaultPendingLimit = 50

// AdjustmentHandler handles adjustment requests and their decisions
type AdjustmentHandler struct {
	adjustments *adjustment.AdjustmentService
	logger      logging.Logger
}

// NewAdjustmentHandler creates a new adjustment handler
func NewAdjustmentHandler(adjustments *adjustment.AdjustmentService, logger logging.Logger) *AdjustmentHandler {
	return &AdjustmentHandler{adjustments: adjustments, logger: logger}
}

// RequestAdjustmentRequest asks for a signed change to a ledger entry's profile balance
type RequestAdjustmentRequest struct {
	EntryID     uint64          `json:"entry_id" binding:"required"`
	DeltaAmount decimal.Decimal `json:"delta_amount"`
	Reason      string          `json:"reason" binding:"required"`
}

// DecisionRequest carries the approver's note
type DecisionRequest struct {
	Note string `json:"note"`
}

// RequestAdjustment files a new adjustment request
func (h *AdjustmentHandler) RequestAdjustment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req RequestAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.adjustments.RequestAdjustment(c.Request.Context(), actor, req.EntryID, req.DeltaAmount, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"adjustment": r})
}

// GetAdjustment returns one adjustment request
func (h *AdjustmentHandler) GetAdjustment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	r, err := h.adjustments.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"adjustment": r})
}

// ListBySale lists the adjustment requests filed against a sale
func (h *AdjustmentHandler) ListBySale(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	list, err := h.adjustments.ListBySale(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"adjustments": list})
}

// ListPending lists requests awaiting a decision, oldest first
func (h *AdjustmentHandler) ListPending(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPendingLimit)))
	if err != nil || limit <= 0 {
		limit = defaultPendingLimit
	}

	list, err := h.adjustments.ListPending(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"adjustments": list})
}

// Approve approves a request and posts its ADJUSTMENT entry
func (h *AdjustmentHandler) Approve(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req DecisionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	r, entry, err := h.adjustments.Approve(c.Request.Context(), actor, id, req.Note)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"adjustment": r, "entry": entry})
}

// Reject rejects a request
func (h *AdjustmentHandler) Reject(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req DecisionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	r, err := h.adjustments.Reject(c.Request.Context(), actor, id, req.Note)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"adjustment": r})
}
