package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/services/refund"
)

// RefundHandler handles refunds and their cancellation
type RefundHandler struct {
	refunds *refund.RefundService
	logger  logging.Logger
}

// NewRefundHandler creates a new refund handler
func NewRefundHandler(refunds *refund.RefundService, logger logging.Logger) *RefundHandler {
	return &RefundHandler{refunds: refunds, logger: logger}
}

// ProcessRefundRequest carries the refund reason
type ProcessRefundRequest struct {
	Reason string `json:"reason"`
}

// ProcessRefund refunds a sale and reverses its commission
func (h *RefundHandler) ProcessRefund(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req ProcessRefundRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.refunds.ProcessRefund(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CancelRefund undoes a refund and restores the commission
func (h *RefundHandler) CancelRefund(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	s, err := h.refunds.CancelRefund(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sale": s})
}
