package handlers

import (
	"github.com/gin-gonic/gin"

	"pharmstock/internal/domain/payment"
	"pharmstock/internal/infrastructure/http/v1/dto"
)

// PaymentHandler serves payment reconciliation.
type PaymentHandler struct {
	*BaseHandler
	service *payment.Service
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(base *BaseHandler, service *payment.Service) *PaymentHandler {
	return &PaymentHandler{BaseHandler: base, service: service}
}

// Create handles POST /payments.
func (h *PaymentHandler) Create(c *gin.Context) {
	var req dto.CreatePaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p, err := req.ToPayment()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	p.CreatedBy = h.GetUserID(c)
	p.UpdatedBy = p.CreatedBy
	if err := h.service.CreatePayment(c.Request.Context(), p); err != nil {
		h.HandleError(c, err)
		return
	}
	h.CreatedNumbered(c, p.ID.String(), p.Number)
}

// Update handles PUT /payments/:number.
func (h *PaymentHandler) Update(c *gin.Context) {
	var req dto.UpdatePaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	returnIDs, err := req.ParsedReturnIDs()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	p, err := h.service.UpdatePayment(c.Request.Context(), c.Param("number"), req.BillNumbers, returnIDs, req.HardcopyBillNumber)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, p)
}

// Get handles GET /payments/:number.
func (h *PaymentHandler) Get(c *gin.Context) {
	p, err := h.service.GetPayment(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, p)
}

// List handles GET /payments.
func (h *PaymentHandler) List(c *gin.Context) {
	var req dto.PaymentListRequest
	if !h.BindQuery(c, &req) {
		return
	}

	result, err := h.service.List(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, dto.FromListResult(result))
}

// Outstanding handles GET /counterparties/:id/outstanding.
func (h *PaymentHandler) Outstanding(c *gin.Context) {
	out, err := h.service.ComputeOutstanding(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, out)
}
