package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/institute-api/internal/dto"
	"github.com/noah-isme/institute-api/internal/models"
	"github.com/noah-isme/institute-api/internal/service"
	"github.com/noah-isme/institute-api/pkg/response"
)

type paymentService interface {
	Collect(ctx context.Context, req service.CollectPaymentRequest) (*models.PaymentReceipt, error)
	ListTransactions(ctx context.Context, feeID string) ([]models.Transaction, error)
}

// PaymentHandler exposes fee collection endpoints.
type PaymentHandler struct {
	payments paymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Collect godoc
// @Summary Collect a payment against a fee
// @Description The collector is the authenticated caller.
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Fee ID"
// @Param payload body dto.CollectPaymentRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /fees/{id}/payments [post]
func (h *PaymentHandler) Collect(c *gin.Context) {
	var body dto.CollectPaymentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, bindError(err, "invalid payment payload"))
		return
	}
	receipt, err := h.payments.Collect(c.Request.Context(), service.CollectPaymentRequest{
		FeeID:       c.Param("id"),
		CollectorID: actorID(c),
		Amount:      body.Amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, receipt)
}

// List godoc
// @Summary List payments of a fee
// @Tags Payments
// @Produce json
// @Param id path string true "Fee ID"
// @Success 200 {object} response.Envelope
// @Router /fees/{id}/payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	txns, err := h.payments.ListTransactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, txns, nil)
}
