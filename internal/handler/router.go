package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/institute-api/internal/middleware"
	"github.com/noah-isme/institute-api/internal/models"
)

// Handlers groups every API handler mounted under the API prefix.
type Handlers struct {
	Enrollments *EnrollmentHandler
	Discounts   *DiscountHandler
	Fees        *FeeHandler
	Payments    *PaymentHandler
	Capacity    *CapacityHandler
}

// RegisterRoutes mounts the API on group. auth runs before the role checks and audit records successful writes.
func RegisterRoutes(group *gin.RouterGroup, h Handlers, auth gin.HandlerFunc, audit middleware.AuditWriter) {
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleCollector)

	secured := group.Group("")
	if auth != nil {
		secured.Use(auth)
	}

	enrollments := secured.Group("/enrollments")
	enrollments.GET("", staff, h.Enrollments.List)
	enrollments.GET("/:id", staff, h.Enrollments.Get)
	enrollments.POST("", adminOnly, middleware.Audit(audit, models.AuditActionEnroll, "enrollments"), h.Enrollments.Enroll)
	enrollments.PUT("/:id/timing", adminOnly, middleware.Audit(audit, models.AuditActionChangeTiming, "enrollments"), h.Enrollments.ChangeTiming)
	enrollments.POST("/:id/drop", adminOnly, middleware.Audit(audit, models.AuditActionDrop, "enrollments"), h.Enrollments.Drop)
	enrollments.POST("/:id/restore", adminOnly, middleware.Audit(audit, models.AuditActionRestore, "enrollments"), h.Enrollments.Restore)
	enrollments.POST("/:id/extend", adminOnly, middleware.Audit(audit, models.AuditActionExtend, "enrollments"), h.Enrollments.Extend)
	enrollments.GET("/:id/discounts", staff, h.Discounts.List)
	enrollments.POST("/:id/discounts", adminOnly, middleware.Audit(audit, models.AuditActionDiscountCreate, "student_discounts"), h.Discounts.Create)

	secured.GET("/fees", staff, h.Fees.List)
	secured.GET("/fees/:id/payments", staff, h.Payments.List)
	secured.POST("/fees/:id/payments", staff, middleware.Audit(audit, models.AuditActionPaymentCollect, "fees"), h.Payments.Collect)
	secured.GET("/students/:id/ledger", staff, h.Fees.Ledger)
	secured.POST("/billing/runs", adminOnly, middleware.Audit(audit, models.AuditActionBillingRun, "fees"), h.Fees.RunBilling)

	secured.GET("/slots/:id/occupancy", staff, h.Capacity.SlotOccupancy)
	secured.GET("/course-slots/:id/capacity", staff, h.Capacity.CourseSlotCapacity)
}
