package main

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Gdheubs/Video-streaming-platform/internal/platform"
	"github.com/Gdheubs/Video-streaming-platform/tasks"
	"github.com/Gdheubs/Video-streaming-platform/video"
	"github.com/Gdheubs/Video-streaming-platform/videocache"
	"github.com/Gdheubs/Video-streaming-platform/worker"
)

// staleModerationAge is how long a READY video may sit PENDING with no
// pipeline lock before the reconciler re-queues its scan.
const staleModerationAge = 30 * time.Minute

func main() {
	cfg, err := platform.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db := platform.NewDBConnection(cfg)
	rdb := platform.NewRedisClient(cfg)
	logger := platform.NewLogger()
	ctx := context.Background()

	repo := video.NewRepository(db)
	cache := videocache.New(rdb)
	coordinator := tasks.NewCoordinator(rdb)
	queue := worker.NewProcessor(rdb, logger)

	c := cron.New()

	// Fold buffered view/like counters into the database.
	_, err = c.AddFunc("@every 1m", func() {
		deltas, err := cache.DrainCounters(ctx)
		if err != nil {
			logger.WithError(err).Error("failed to drain counters")
			return
		}

		flushed := 0
		for videoID, views := range deltas.Views {
			if err := repo.AddCounts(ctx, videoID, views, deltas.Likes[videoID]); err != nil {
				logger.WithError(err).WithField("video_id", videoID).Error("failed to flush counters")
				continue
			}
			delete(deltas.Likes, videoID)
			flushed++
		}
		for videoID, likes := range deltas.Likes {
			if err := repo.AddCounts(ctx, videoID, 0, likes); err != nil {
				logger.WithError(err).WithField("video_id", videoID).Error("failed to flush counters")
				continue
			}
			flushed++
		}
		if flushed > 0 {
			logger.WithField("videos", flushed).Info("counters flushed")
		}
	})
	if err != nil {
		log.Fatal("Failed to schedule counter flush:", err)
	}

	// Re-queue videos whose moderation scan was lost to a worker crash.
	_, err = c.AddFunc("@every 5m", func() {
		_, err := worker.ReconcileStaleModeration(ctx, repo, coordinator, queue, time.Now().Add(-staleModerationAge), 50, logger)
		if err != nil {
			logger.WithError(err).Error("failed to reconcile stale moderation")
		}
	})
	if err != nil {
		log.Fatal("Failed to schedule moderation reconciler:", err)
	}

	c.Start()
	defer c.Stop()

	log.Println("Scheduler started")
	select {}
}
