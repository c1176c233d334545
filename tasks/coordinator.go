package tasks

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	jobLockPrefix   = "video:job:"
	tombstonePrefix = "video:deleted:"

	// A pipeline lock outliving this is a crashed worker; let it expire.
	jobLockTTL   = 24 * time.Hour
	tombstoneTTL = 24 * time.Hour
)

// Coordinator serializes per-video pipeline work and carries delete
// tombstones, both on redis so they hold across worker instances.
type Coordinator struct {
	rdb *redis.Client
}

func NewCoordinator(rdb *redis.Client) *Coordinator {
	return &Coordinator{rdb: rdb}
}

// TryAcquire takes the per-video pipeline lock. At most one transcode job
// and, after it, one moderation job run under a single acquisition; a
// second confirm-upload for the same video fails here.
func (c *Coordinator) TryAcquire(ctx context.Context, videoID string) (bool, error) {
	return c.rdb.SetNX(ctx, jobLockPrefix+videoID, 1, jobLockTTL).Result()
}

// Release frees the pipeline lock once the video reaches a terminal or
// human-review state.
func (c *Coordinator) Release(ctx context.Context, videoID string) error {
	return c.rdb.Del(ctx, jobLockPrefix+videoID).Err()
}

// MarkDeleted records that the video is gone so in-flight jobs stop before
// persisting or uploading anything for it.
func (c *Coordinator) MarkDeleted(ctx context.Context, videoID string) error {
	return c.rdb.Set(ctx, tombstonePrefix+videoID, 1, tombstoneTTL).Err()
}

// IsDeleted reports whether a delete tombstone exists for the video.
func (c *Coordinator) IsDeleted(ctx context.Context, videoID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, tombstonePrefix+videoID).Result()
	return n > 0, err
}

// IsLocked reports whether a pipeline job currently holds the video.
func (c *Coordinator) IsLocked(ctx context.Context, videoID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, jobLockPrefix+videoID).Result()
	return n > 0, err
}
