package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/Gdheubs/Video-streaming-platform/models"
)

// Sink records audit events. Fire-and-forget from the caller's point of
// view, but the illegal-content and admin-override paths must never skip it.
type Sink interface {
	Record(ctx context.Context, action, entityType, entityID, performedBy string, metadata map[string]interface{}) error
}

// GormSink persists audit events to the audit_logs table.
type GormSink struct {
	db *gorm.DB
}

func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

func (s *GormSink) Record(ctx context.Context, action, entityType, entityID, performedBy string, metadata map[string]interface{}) error {
	entry := models.AuditLog{
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		PerformedBy: performedBy,
	}
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("audit: failed to encode metadata: %w", err)
		}
		entry.Metadata = string(b)
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("audit: failed to record %s: %w", action, err)
	}
	return nil
}

// List returns recent audit entries, optionally filtered by entity type and
// action. Used by the admin surface.
func (s *GormSink) List(ctx context.Context, entityType, action string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	if action != "" {
		q = q.Where("action = ?", action)
	}

	var logs []models.AuditLog
	if err := q.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
