package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Gdheubs/Video-streaming-platform/models"
	"github.com/Gdheubs/Video-streaming-platform/tasks"
)

// StuckLister finds READY videos that have sat in PENDING moderation past a
// threshold.
type StuckLister interface {
	ListStuckModeration(ctx context.Context, olderThan time.Time, limit int) ([]models.Video, error)
}

// ReconcileLocks is the lock surface the reconciler needs.
type ReconcileLocks interface {
	IsLocked(ctx context.Context, videoID string) (bool, error)
	TryAcquire(ctx context.Context, videoID string) (bool, error)
	Release(ctx context.Context, videoID string) error
}

// ReconcileStaleModeration re-queues moderation scans that were lost to a
// worker crash. A video parked PENDING with policy flags is waiting on a
// human decision, not a rescan, and is left alone. Returns how many videos
// were re-queued.
func ReconcileStaleModeration(ctx context.Context, videos StuckLister, locks ReconcileLocks, queue Enqueuer, olderThan time.Time, limit int, log *logrus.Logger) (int, error) {
	stuck, err := videos.ListStuckModeration(ctx, olderThan, limit)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, v := range stuck {
		if v.ModerationFlags != "" {
			continue
		}
		locked, err := locks.IsLocked(ctx, v.ID)
		if err != nil || locked {
			continue
		}
		acquired, err := locks.TryAcquire(ctx, v.ID)
		if err != nil || !acquired {
			continue
		}
		if err := queue.Enqueue(ctx, tasks.QueueVideoModeration, tasks.ModerationTaskPayload{VideoID: v.ID}); err != nil {
			log.WithError(err).WithField("video_id", v.ID).Error("failed to re-queue moderation")
			locks.Release(ctx, v.ID)
			continue
		}
		log.WithField("video_id", v.ID).Info("stale moderation re-queued")
		requeued++
	}
	return requeued, nil
}
