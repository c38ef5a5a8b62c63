package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/institute-api/internal/dto"
	"github.com/noah-isme/institute-api/internal/models"
	appErrors "github.com/noah-isme/institute-api/pkg/errors"
	"github.com/noah-isme/institute-api/pkg/response"
)

type billingService interface {
	ListFees(ctx context.Context, filter models.FeeFilter) ([]models.Fee, *models.Pagination, error)
	StudentLedger(ctx context.Context, studentID string) (*models.StudentLedger, error)
	RunMonthlyBilling(ctx context.Context, asOf time.Time) (*models.BillingRunSummary, error)
}

// FeeHandler exposes fee listings and billing runs.
type FeeHandler struct {
	billing billingService
	now     func() time.Time
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(billing billingService) *FeeHandler {
	return &FeeHandler{billing: billing, now: time.Now}
}

// List godoc
// @Summary List fees
// @Tags Fees
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param enrollmentId query string false "Filter by enrollment"
// @Param status query string false "UNPAID, PARTIAL or PAID"
// @Param cycleFrom query string false "Earliest cycle (YYYY-MM-DD)"
// @Param cycleTo query string false "Latest cycle (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /fees [get]
func (h *FeeHandler) List(c *gin.Context) {
	filter := models.FeeFilter{
		StudentID:    c.Query("studentId"),
		EnrollmentID: c.Query("enrollmentId"),
		Status:       models.FeeStatus(strings.ToUpper(c.Query("status"))),
	}
	var err error
	if filter.CycleFrom, err = optionalDate(c, "cycleFrom"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.CycleTo, err = optionalDate(c, "cycleTo"); err != nil {
		response.Error(c, err)
		return
	}
	filter.Page, filter.PageSize = pageParams(c)

	fees, pagination, err := h.billing.ListFees(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fees, pagination)
}

// Ledger godoc
// @Summary Fee ledger of a student
// @Tags Fees
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/ledger [get]
func (h *FeeHandler) Ledger(c *gin.Context) {
	ledger, err := h.billing.StudentLedger(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ledger, nil)
}

// RunBilling godoc
// @Summary Run monthly billing now
// @Description Bills every ACTIVE enrollment for the month of as_of. Cycles already billed are skipped.
// @Tags Billing
// @Accept json
// @Produce json
// @Param payload body dto.BillingRunRequest false "Run options"
// @Success 200 {object} response.Envelope
// @Router /billing/runs [post]
func (h *FeeHandler) RunBilling(c *gin.Context) {
	var req dto.BillingRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, bindError(err, "invalid billing run payload"))
		return
	}
	asOf := h.now().UTC()
	if req.AsOf != "" {
		parsed, err := time.Parse(dateLayout, req.AsOf)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "as_of must use YYYY-MM-DD"))
			return
		}
		asOf = parsed
	}

	summary, err := h.billing.RunMonthlyBilling(c.Request.Context(), asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
