package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/institute-api/internal/dto"
	"github.com/noah-isme/institute-api/internal/models"
	"github.com/noah-isme/institute-api/internal/service"
	"github.com/noah-isme/institute-api/pkg/response"
)

type discountService interface {
	CreateDiscount(ctx context.Context, req service.CreateDiscountRequest) (*service.DiscountResult, error)
	ListDiscounts(ctx context.Context, enrollmentID string) ([]models.StudentDiscount, error)
}

// DiscountHandler exposes student discount endpoints.
type DiscountHandler struct {
	discounts discountService
}

// NewDiscountHandler constructs DiscountHandler.
func NewDiscountHandler(discounts discountService) *DiscountHandler {
	return &DiscountHandler{discounts: discounts}
}

// Create godoc
// @Summary Grant a discount to an enrollment
// @Description Applies immediately to the current fee when it covers that month and the fee is not PAID.
// @Tags Discounts
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.CreateDiscountRequest true "Discount"
// @Success 201 {object} response.Envelope
// @Router /enrollments/{id}/discounts [post]
func (h *DiscountHandler) Create(c *gin.Context) {
	var body dto.CreateDiscountRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, bindError(err, "invalid discount payload"))
		return
	}
	result, err := h.discounts.CreateDiscount(c.Request.Context(), service.CreateDiscountRequest{
		EnrollmentID:        c.Param("id"),
		DiscountType:        models.DiscountType(strings.ToUpper(body.DiscountType)),
		DiscountAmount:      body.DiscountAmount,
		DiscountDuration:    models.DiscountDuration(strings.ToUpper(body.DiscountDuration)),
		ApplicableFromMonth: body.ApplicableFromMonth,
		CreatedBy:           actorID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List discounts of an enrollment
// @Tags Discounts
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/discounts [get]
func (h *DiscountHandler) List(c *gin.Context) {
	discounts, err := h.discounts.ListDiscounts(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, discounts, nil)
}
