package handlers

import (
	"github.com/gin-gonic/gin"

	"pharmstock/internal/core/apperror"
	"pharmstock/internal/core/id"
	"pharmstock/internal/domain/transport"
	"pharmstock/internal/infrastructure/http/v1/dto"
)

// TransportHandler serves the branch-to-branch transport workflow.
type TransportHandler struct {
	*BaseHandler
	service *transport.Service
}

// NewTransportHandler creates a new transport handler.
func NewTransportHandler(base *BaseHandler, service *transport.Service) *TransportHandler {
	return &TransportHandler{BaseHandler: base, service: service}
}

// Send handles POST /transports.
func (h *TransportHandler) Send(c *gin.Context) {
	var req dto.SendTransportRequest
	if !h.BindJSON(c, &req) {
		return
	}

	t := req.ToTransport()
	t.CreatedBy = h.GetUserID(c)
	t.UpdatedBy = t.CreatedBy
	if err := h.service.Send(c.Request.Context(), t); err != nil {
		h.HandleError(c, err)
		return
	}
	h.CreatedNumbered(c, t.ID.String(), t.Number)
}

// Receive handles POST /transports/:id/receive.
func (h *TransportHandler) Receive(c *gin.Context) {
	transportID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.HandleError(c, apperror.NewValidation("invalid transport id").WithDetail("id", c.Param("id")))
		return
	}

	var req dto.ReceiveTransportRequest
	if !h.BindJSON(c, &req) {
		return
	}

	resolved, err := h.service.Receive(c.Request.Context(), transportID, *req.Accept, req.Notes)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, resolved)
}

// Get handles GET /transports/:id.
func (h *TransportHandler) Get(c *gin.Context) {
	transportID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.HandleError(c, apperror.NewValidation("invalid transport id").WithDetail("id", c.Param("id")))
		return
	}

	t, err := h.service.Get(c.Request.Context(), transportID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, t)
}

// List handles GET /transports.
func (h *TransportHandler) List(c *gin.Context) {
	var req dto.TransportListRequest
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
