package video

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Gdheubs/Video-streaming-platform/models"
)

// Repository is the persistence layer for videos. Every state transition is
// compare-and-set against the expected prior state so two concurrent
// transitions cannot corrupt the lifecycle.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, video *models.Video) error {
	return r.db.WithContext(ctx).Create(video).Error
}

func (r *Repository) ByID(ctx context.Context, id string) (*models.Video, error) {
	var video models.Video
	err := r.db.WithContext(ctx).First(&video, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &video, nil
}

// SetStatus applies updates iff the video's processing status equals expect.
func (r *Repository) SetStatus(ctx context.Context, id string, expect models.VideoStatus, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ? AND status = ?", id, expect).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

// SetModeration applies updates iff the video's moderation status equals
// expect. Satisfies the moderation engine's VideoStore.
func (r *Repository) SetModeration(ctx context.Context, id string, expect models.ModerationStatus, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ? AND moderation_status = ?", id, expect).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

// conflictOrMissing disambiguates a zero-row CAS write.
func (r *Repository) conflictOrMissing(ctx context.Context, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Video{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return models.ErrNotFound
	}
	return models.ErrConflict
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Video{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) ListPendingModeration(ctx context.Context, limit int) ([]models.Video, error) {
	var videos []models.Video
	err := r.db.WithContext(ctx).
		Where("moderation_status = ?", models.ModerationPending).
		Order("created_at asc").
		Limit(limit).
		Find(&videos).Error
	return videos, err
}

// ListPublicServable is the public feed: READY, APPROVED, PUBLIC only.
func (r *Repository) ListPublicServable(ctx context.Context, limit int) ([]models.Video, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var videos []models.Video
	err := r.db.WithContext(ctx).
		Where("status = ? AND moderation_status = ? AND visibility = ?",
			models.VideoReady, models.ModerationApproved, models.VisibilityPublic).
		Order("view_count desc, created_at desc").
		Limit(limit).
		Find(&videos).Error
	return videos, err
}

// ListStuckModeration finds videos that finished transcoding but have sat in
// PENDING longer than the threshold. The scheduler re-queues them.
func (r *Repository) ListStuckModeration(ctx context.Context, olderThan time.Time, limit int) ([]models.Video, error) {
	var videos []models.Video
	err := r.db.WithContext(ctx).
		Where("status = ? AND moderation_status = ? AND updated_at < ?",
			models.VideoReady, models.ModerationPending, olderThan).
		Order("updated_at asc").
		Limit(limit).
		Find(&videos).Error
	return videos, err
}

// AddCounts folds drained counter deltas into the persistent row without a
// read-modify-write.
func (r *Repository) AddCounts(ctx context.Context, id string, views, likes int64) error {
	updates := map[string]interface{}{}
	if views != 0 {
		updates["view_count"] = gorm.Expr("view_count + ?", views)
	}
	if likes != 0 {
		updates["like_count"] = gorm.Expr("like_count + ?", likes)
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Video{}).Where("id = ?", id).Updates(updates).Error
}

// RecordView writes the best-effort per-request view row.
func (r *Repository) RecordView(ctx context.Context, videoID string, viewerID *string) error {
	return r.db.WithContext(ctx).Create(&models.View{
		VideoID:  videoID,
		ViewerID: viewerID,
		ViewedAt: time.Now(),
	}).Error
}

// FailAllByCreator force-fails every video a banned creator owns and
// returns the affected ids so callers can invalidate caches.
func (r *Repository) FailAllByCreator(ctx context.Context, creatorID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Video{}).
		Where("creator_id = ?", creatorID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).Model(&models.Video{}).
		Where("creator_id = ?", creatorID).
		Updates(map[string]interface{}{
			"status":            models.VideoFailed,
			"moderation_status": models.ModerationRejected,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to ban creator videos: %w", err)
	}
	return ids, nil
}
