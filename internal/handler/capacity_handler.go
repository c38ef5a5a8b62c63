package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/institute-api/internal/models"
	"github.com/noah-isme/institute-api/pkg/response"
)

type capacityService interface {
	SlotOccupancy(ctx context.Context, slotID string) (*models.SlotOccupancy, error)
	CourseSlotCapacity(ctx context.Context, courseSlotID string) (*models.CourseSlotCapacity, error)
}

// CapacityHandler exposes seat availability.
type CapacityHandler struct {
	capacity capacityService
}

// NewCapacityHandler constructs CapacityHandler.
func NewCapacityHandler(capacity capacityService) *CapacityHandler {
	return &CapacityHandler{capacity: capacity}
}

// SlotOccupancy godoc
// @Summary Occupancy of a slot across every class sharing it
// @Tags Capacity
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /slots/{id}/occupancy [get]
func (h *CapacityHandler) SlotOccupancy(c *gin.Context) {
	occupancy, err := h.capacity.SlotOccupancy(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occupancy, nil)
}

// CourseSlotCapacity godoc
// @Summary Effective capacity of a class
// @Tags Capacity
// @Produce json
// @Param id path string true "Course slot ID"
// @Success 200 {object} response.Envelope
// @Router /course-slots/{id}/capacity [get]
func (h *CapacityHandler) CourseSlotCapacity(c *gin.Context) {
	capacity, err := h.capacity.CourseSlotCapacity(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, capacity, nil)
}
