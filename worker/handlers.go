package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Gdheubs/Video-streaming-platform/models"
	"github.com/Gdheubs/Video-streaming-platform/moderation"
	"github.com/Gdheubs/Video-streaming-platform/objectstore"
	"github.com/Gdheubs/Video-streaming-platform/tasks"
	"github.com/Gdheubs/Video-streaming-platform/transcode"
)

// VideoStore is the slice of persistence the pipeline needs.
type VideoStore interface {
	ByID(ctx context.Context, id string) (*models.Video, error)
	SetStatus(ctx context.Context, id string, expect models.VideoStatus, updates map[string]interface{}) error
}

// Transcoder produces the artifact set for a video.
type Transcoder interface {
	Transcode(ctx context.Context, videoID, sourceKey string, presets []transcode.QualityPreset) (*transcode.Result, error)
}

// Moderator runs the content scan against an encoded video.
type Moderator interface {
	Scan(ctx context.Context, videoID, encodedKey string) (*moderation.Result, error)
}

// Cache invalidates stale metadata after a persisted transition.
type Cache interface {
	Invalidate(ctx context.Context, videoID string) error
}

// Locks is the per-video coordination surface.
type Locks interface {
	Release(ctx context.Context, videoID string) error
	IsDeleted(ctx context.Context, videoID string) (bool, error)
}

// Enqueuer hands a task to the next stage. The Processor implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload interface{}) error
}

// tombstonePollInterval is how often a running transcode checks whether the
// video was deleted underneath it.
const tombstonePollInterval = 5 * time.Second

// Pipeline holds the handlers for the two processing stages. The per-video
// lock is acquired at confirm-upload and held through both stages; whichever
// stage ends the pipeline releases it.
type Pipeline struct {
	Videos     VideoStore
	Transcoder Transcoder
	Moderator  Moderator
	Blobs      objectstore.Store
	Cache      Cache
	Locks      Locks
	Queue      Enqueuer
	Log        *logrus.Logger
}

// HandleTranscode converts the uploaded original into the HLS artifact set
// and, on success, hands the video to the moderation stage.
func (p *Pipeline) HandleTranscode(ctx context.Context, payload string) error {
	var task tasks.TranscodeTaskPayload
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return fmt.Errorf("invalid transcode payload: %w", err)
	}
	log := p.Log.WithField("video_id", task.VideoID)

	if deleted, err := p.Locks.IsDeleted(ctx, task.VideoID); err != nil {
		return err
	} else if deleted {
		log.Info("video deleted before transcode started, dropping task")
		return p.Locks.Release(ctx, task.VideoID)
	}

	video, err := p.Videos.ByID(ctx, task.VideoID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Info("video row gone, dropping task")
			return p.Locks.Release(ctx, task.VideoID)
		}
		return err
	}

	result, err := p.transcodeWatched(ctx, video)
	if err != nil {
		p.failVideo(ctx, task.VideoID, log)
		if relErr := p.Locks.Release(ctx, task.VideoID); relErr != nil {
			log.WithError(relErr).Error("failed to release pipeline lock")
		}
		return fmt.Errorf("transcode failed for %s: %w", task.VideoID, err)
	}

	// The encode finished but the video may have been deleted while it ran.
	if deleted, err := p.Locks.IsDeleted(ctx, task.VideoID); err == nil && deleted {
		log.Info("video deleted during transcode, discarding artifacts")
		p.cleanupArtifacts(ctx, video, result)
		return p.Locks.Release(ctx, task.VideoID)
	}

	err = p.Videos.SetStatus(ctx, task.VideoID, models.VideoProcessing, map[string]interface{}{
		"status":           models.VideoReady,
		"manifest_key":     result.ManifestKey,
		"thumbnail_key":    result.ThumbnailKey,
		"sprite_key":       result.SpriteKey,
		"duration_seconds": result.DurationSeconds,
	})
	if err != nil {
		// The row moved out of PROCESSING underneath us (delete or ban);
		// the encode output belongs to nobody.
		log.WithError(err).Warn("video no longer processing, discarding artifacts")
		p.cleanupArtifacts(ctx, video, result)
		return p.Locks.Release(ctx, task.VideoID)
	}

	if err := p.Cache.Invalidate(ctx, task.VideoID); err != nil {
		log.WithError(err).Warn("failed to invalidate cache")
	}

	// Lock stays held into the moderation stage.
	if err := p.Queue.Enqueue(ctx, tasks.QueueVideoModeration, tasks.ModerationTaskPayload{VideoID: task.VideoID}); err != nil {
		// Release so the stale-moderation reconciler can pick it back up.
		if relErr := p.Locks.Release(ctx, task.VideoID); relErr != nil {
			log.WithError(relErr).Error("failed to release pipeline lock")
		}
		return fmt.Errorf("failed to enqueue moderation for %s: %w", task.VideoID, err)
	}

	log.WithField("duration_seconds", result.DurationSeconds).Info("transcode complete, moderation queued")
	return nil
}

// transcodeWatched runs the encode under a context that is canceled if the
// video's delete tombstone appears mid-run.
func (p *Pipeline) transcodeWatched(ctx context.Context, video *models.Video) (*transcode.Result, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(tombstonePollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				if deleted, err := p.Locks.IsDeleted(watchCtx, video.ID); err == nil && deleted {
					cancel()
					return
				}
			}
		}
	}()

	return p.Transcoder.Transcode(watchCtx, video.ID, video.OriginalKey, transcode.DefaultLadder)
}

// HandleModeration runs the content scan for a transcoded video and always
// releases the pipeline lock: whatever the scan decides, this video's
// pipeline run is over and retries go through the reconciler.
func (p *Pipeline) HandleModeration(ctx context.Context, payload string) error {
	var task tasks.ModerationTaskPayload
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return fmt.Errorf("invalid moderation payload: %w", err)
	}
	log := p.Log.WithField("video_id", task.VideoID)

	defer func() {
		if err := p.Locks.Release(context.Background(), task.VideoID); err != nil {
			log.WithError(err).Error("failed to release pipeline lock")
		}
	}()

	if deleted, err := p.Locks.IsDeleted(ctx, task.VideoID); err != nil {
		return err
	} else if deleted {
		log.Info("video deleted before moderation, dropping task")
		return nil
	}

	video, err := p.Videos.ByID(ctx, task.VideoID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}
	if video.Status != models.VideoReady {
		log.WithField("status", video.Status).Info("video not ready, skipping scan")
		return nil
	}

	result, err := p.Moderator.Scan(ctx, video.ID, video.ManifestKey)
	if err != nil {
		// The video stays PENDING; the reconciler re-queues it later.
		return fmt.Errorf("moderation scan failed for %s: %w", task.VideoID, err)
	}

	if err := p.Cache.Invalidate(ctx, task.VideoID); err != nil {
		log.WithError(err).Warn("failed to invalidate cache")
	}

	log.WithField("decision", result.Decision).Info("moderation scan complete")
	return nil
}

// failVideo moves a video to FAILED after an unrecoverable encode error.
func (p *Pipeline) failVideo(ctx context.Context, videoID string, log *logrus.Entry) {
	err := p.Videos.SetStatus(ctx, videoID, models.VideoProcessing, map[string]interface{}{
		"status": models.VideoFailed,
	})
	if err != nil && !errors.Is(err, models.ErrConflict) && !errors.Is(err, models.ErrNotFound) {
		log.WithError(err).Error("failed to mark video failed")
		return
	}
	if err := p.Cache.Invalidate(ctx, videoID); err != nil {
		log.WithError(err).Warn("failed to invalidate cache")
	}
}

func (p *Pipeline) cleanupArtifacts(ctx context.Context, video *models.Video, result *transcode.Result) {
	if err := p.Blobs.DeletePrefix(ctx, video.StreamPrefix()); err != nil {
		p.Log.WithError(err).Warn("failed to remove stream artifacts")
	}
	for _, key := range []string{result.ThumbnailKey, result.SpriteKey} {
		if key == "" {
			continue
		}
		if err := p.Blobs.Delete(ctx, key); err != nil {
			p.Log.WithError(err).WithField("key", key).Warn("failed to remove artifact")
		}
	}
}
