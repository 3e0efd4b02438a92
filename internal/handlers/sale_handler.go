package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/services/ledger"
	"github.com/cruisemall/affiliate/internal/services/sale"
)

// SaleHandler handles sale origination and the per-sale ledger views
type SaleHandler struct {
	sales  *sale.SaleService
	ledger *ledger.LedgerService
	logger logging.Logger
}

// NewSaleHandler creates a new sale handler
func NewSaleHandler(sales *sale.SaleService, ledgerService *ledger.LedgerService, logger logging.Logger) *SaleHandler {
	return &SaleHandler{sales: sales, ledger: ledgerService, logger: logger}
}

// CancelSaleRequest carries the reason a pending sale is dropped
type CancelSaleRequest struct {
	Reason string `json:"reason"`
}

// CreateSale records a pending attributed sale
func (h *SaleHandler) CreateSale(c *gin.Context) {
	var req sale.CreateSaleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.sales.CreateSale(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"sale": s})
}

// GetSale returns a sale
func (h *SaleHandler) GetSale(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	s, err := h.sales.GetSale(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sale": s})
}

// ConfirmSale confirms a pending sale and posts its commission
func (h *SaleHandler) ConfirmSale(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	s, entries, err := h.sales.ConfirmSale(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sale": s, "entries": entries})
}

// CancelSale cancels a pending sale
func (h *SaleHandler) CancelSale(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req CancelSaleRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	s, err := h.sales.CancelSale(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sale": s})
}

// Entries dumps the sale's ledger in creation order with per-profile balances
func (h *SaleHandler) Entries(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	entries, err := h.ledger.Entries(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	balances, err := h.ledger.Recompute(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":  entries,
		"balances": balances,
	})
}

// Balance returns one profile's balance on one sale
func (h *SaleHandler) Balance(c *gin.Context) {
	saleID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	profileID, ok := uuidParam(c, "profile_id")
	if !ok {
		return
	}

	balance, err := h.ledger.BalanceFor(c.Request.Context(), saleID, profileID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sale_id":    saleID,
		"profile_id": profileID,
		"balance":    balance,
	})
}

// GetEntry returns one ledger entry
func (h *SaleHandler) GetEntry(c *gin.Context) {
	id, ok := entryIDParam(c, "id")
	if !ok {
		return
	}

	entry, err := h.ledger.GetEntry(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}
