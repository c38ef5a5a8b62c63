package models

import "time"

// Audit actions recorded for mutating routes.
const (
	AuditActionEnroll         = "ENROLL"
	AuditActionChangeTiming   = "CHANGE_TIMING"
	AuditActionDrop           = "DROP"
	AuditActionRestore        = "RESTORE"
	AuditActionExtend         = "EXTEND"
	AuditActionDiscountCreate = "DISCOUNT_CREATE"
	AuditActionPaymentCollect = "PAYMENT_COLLECT"
	AuditActionBillingRun     = "BILLING_RUN"
	AuditActionBootstrap      = "BOOTSTRAP"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
