package models

import (
	"time"
)

// Audit actions recorded by this core. The illegal-content and admin
// override paths must never skip their audit record.
const (
	AuditIllegalContentDetected = "ILLEGAL_CONTENT_DETECTED"
	AuditVideoApproved          = "VIDEO_APPROVED"
	AuditVideoRejected          = "VIDEO_REJECTED"
	AuditVideoDeleted           = "VIDEO_DELETED"
	AuditUserBanned             = "USER_BANNED"
)

type AuditLog struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Action     string `gorm:"size:64;not null;index" json:"action"`
	EntityType string `gorm:"size:32;not null;index" json:"entity_type"`
	EntityID   string `gorm:"size:36;not null" json:"entity_id"`
	// "SYSTEM" for automated actions, otherwise the acting admin's id.
	PerformedBy string `gorm:"size:36;not null" json:"performed_by"`
	// JSON-encoded free-form context.
	Metadata string `gorm:"type:text" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
