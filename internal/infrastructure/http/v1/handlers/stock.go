package handlers

import (
	"github.com/gin-gonic/gin"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/domain/ledger"
	"pharmstock/internal/infrastructure/http/v1/dto"
)

// StockHandler serves read access to the batch ledger.
type StockHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, service *ledger.Service) *StockHandler {
	return &StockHandler{BaseHandler: base, service: service}
}

// Availability handles GET /stock/:barcode/availability.
func (h *StockHandler) Availability(c *gin.Context) {
	barcode := c.Param("barcode")
	byBranch, err := h.service.Availability(c.Request.Context(), barcode)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, dto.NewAvailabilityResponse(barcode, byBranch))
}

// Batches handles GET /stock/:barcode/batches.
func (h *StockHandler) Batches(c *gin.Context) {
	var req dto.BatchListRequest
	if !h.BindQuery(c, &req) {
		return
	}

	filter, err := req.ToFilter()
	if err != nil {
		h.HandleError(c, apperror.NewValidation("invalid net price").WithDetail("error", err.Error()))
		return
	}

	barcode := c.Param("barcode")
	batches, err := h.service.FindBatches(c.Request.Context(), barcode, ledger.Branch(req.Branch), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if batches == nil {
		batches = []ledger.Batch{}
	}
	h.OK(c, dto.BatchListResponse{
		Barcode: barcode,
		Branch:  req.Branch,
		Batches: batches,
	})
}
