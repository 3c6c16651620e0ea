package handlers

import (
	"github.com/gin-gonic/gin"

	"pharmstock/internal/domain/billing"
	"pharmstock/internal/infrastructure/http/v1/dto"
)

// BillHandler serves purchase bills, sale bills and returns.
type BillHandler struct {
	*BaseHandler
	service *billing.Service
}

// NewBillHandler creates a new bill handler.
func NewBillHandler(base *BaseHandler, service *billing.Service) *BillHandler {
	return &BillHandler{BaseHandler: base, service: service}
}

// CreatePurchase handles POST /purchase-bills.
func (h *BillHandler) CreatePurchase(c *gin.Context) {
	var req dto.CreatePurchaseBillRequest
	if !h.BindJSON(c, &req) {
		return
	}

	bill := req.ToBill()
	bill.CreatedBy = h.GetUserID(c)
	bill.UpdatedBy = bill.CreatedBy
	if err := h.service.CreatePurchaseBill(c.Request.Context(), bill); err != nil {
		h.HandleError(c, err)
		return
	}
	h.CreatedNumbered(c, bill.ID.String(), bill.Number)
}

// CreateSale handles POST /sale-bills.
func (h *BillHandler) CreateSale(c *gin.Context) {
	var req dto.CreateSaleBillRequest
	if !h.BindJSON(c, &req) {
		return
	}

	bill := req.ToBill()
	bill.CreatedBy = h.GetUserID(c)
	bill.UpdatedBy = bill.CreatedBy
	if err := h.service.CreateSaleBill(c.Request.Context(), bill); err != nil {
		h.HandleError(c, err)
		return
	}
	h.CreatedNumbered(c, bill.ID.String(), bill.Number)
}

// Get handles GET /bills/:number.
func (h *BillHandler) Get(c *gin.Context) {
	bill, err := h.service.GetBill(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, bill)
}

// List handles GET /bills.
func (h *BillHandler) List(c *gin.Context) {
	var req dto.BillListRequest
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

// Edit handles PUT /bills/:number.
func (h *BillHandler) Edit(c *gin.Context) {
	var req dto.EditBillRequest
	if !h.BindJSON(c, &req) {
		return
	}

	var status *billing.PaymentStatus
	if req.PaymentStatus != nil {
		s := billing.PaymentStatus(*req.PaymentStatus)
		status = &s
	}

	bill, err := h.service.EditBill(c.Request.Context(), c.Param("number"), req.ToLines(), status)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, bill)
}

// Delete handles DELETE /bills/:number.
func (h *BillHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteBill(c.Request.Context(), c.Param("number")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// CreateReturn handles POST /returns.
func (h *BillHandler) CreateReturn(c *gin.Context) {
	var req dto.CreateReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}

	returns, err := h.service.ProcessReturn(c.Request.Context(), req.CounterpartyID, req.BillNumber, req.ToItems())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, returns)
}

// ListReturns handles GET /returns.
func (h *BillHandler) ListReturns(c *gin.Context) {
	var req dto.ReturnListRequest
	if !h.BindQuery(c, &req) {
		return
	}

	returns, err := h.service.ListReturns(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if returns == nil {
		returns = []*billing.Return{}
	}
	h.OK(c, returns)
}
