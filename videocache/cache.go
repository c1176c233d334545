package videocache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Gdheubs/Video-streaming-platform/models"
)

const (
	videoKeyPrefix = "video:"
	viewKeyPrefix  = "views:"
	likeKeyPrefix  = "likes:"

	defaultTTL = time.Hour
)

// Counters is the atomic-increment contract for view/like counts. No other
// component performs read-modify-write on these values.
type Counters interface {
	IncrView(ctx context.Context, videoID string) (int64, error)
	IncrLike(ctx context.Context, videoID string) (int64, error)
}

// Cache is the fast key-value layer for hot video metadata and counters,
// read-through/write-through from the orchestrator.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb, ttl: defaultTTL}
}

// GetVideo returns the cached metadata row, if any.
func (c *Cache) GetVideo(ctx context.Context, videoID string) (*models.Video, bool) {
	data, err := c.rdb.Get(ctx, videoKeyPrefix+videoID).Result()
	if err != nil {
		return nil, false
	}

	var video models.Video
	if err := json.Unmarshal([]byte(data), &video); err != nil {
		return nil, false
	}
	return &video, true
}

func (c *Cache) SetVideo(ctx context.Context, video *models.Video) error {
	data, err := json.Marshal(video)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, videoKeyPrefix+video.ID, data, c.ttl).Err()
}

// Invalidate drops the cached row. Callers persist the DB transition first
// so a stale entry can never outlive the write.
func (c *Cache) Invalidate(ctx context.Context, videoID string) error {
	return c.rdb.Del(ctx, videoKeyPrefix+videoID).Err()
}

func (c *Cache) IncrView(ctx context.Context, videoID string) (int64, error) {
	return c.rdb.Incr(ctx, viewKeyPrefix+videoID).Result()
}

func (c *Cache) IncrLike(ctx context.Context, videoID string) (int64, error) {
	return c.rdb.Incr(ctx, likeKeyPrefix+videoID).Result()
}

// CounterDeltas are un-flushed increments per video id.
type CounterDeltas struct {
	Views map[string]int64
	Likes map[string]int64
}

// DrainCounters atomically reads and resets every pending counter so the
// caller can fold the deltas into the database. GETDEL keeps concurrent
// increments from being lost between read and reset.
func (c *Cache) DrainCounters(ctx context.Context) (*CounterDeltas, error) {
	deltas := &CounterDeltas{
		Views: make(map[string]int64),
		Likes: make(map[string]int64),
	}

	if err := c.drain(ctx, viewKeyPrefix, deltas.Views); err != nil {
		return nil, err
	}
	if err := c.drain(ctx, likeKeyPrefix, deltas.Likes); err != nil {
		return nil, err
	}
	return deltas, nil
}

func (c *Cache) drain(ctx context.Context, prefix string, out map[string]int64) error {
	keys, err := c.rdb.Keys(ctx, prefix+"*").Result()
	if err != nil {
		return err
	}

	for _, key := range keys {
		val, err := c.rdb.GetDel(ctx, key).Int64()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return err
		}
		if val != 0 {
			out[strings.TrimPrefix(key, prefix)] = val
		}
	}
	return nil
}

// MemCounters is an in-memory Counters implementation for tests and
// single-node development.
type MemCounters struct {
	mu    sync.Mutex
	views map[string]int64
	likes map[string]int64
}

func NewMemCounters() *MemCounters {
	return &MemCounters{
		views: make(map[string]int64),
		likes: make(map[string]int64),
	}
}

func (m *MemCounters) IncrView(ctx context.Context, videoID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[videoID]++
	return m.views[videoID], nil
}

func (m *MemCounters) IncrLike(ctx context.Context, videoID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.likes[videoID]++
	return m.likes[videoID], nil
}

// Views reports the current in-memory view count.
func (m *MemCounters) Views(videoID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.views[videoID]
}
