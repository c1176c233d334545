package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gdheubs/Video-streaming-platform/models"
	"github.com/Gdheubs/Video-streaming-platform/tasks"
)

type fakeStuckLister struct {
	videos []models.Video
	err    error
}

func (f *fakeStuckLister) ListStuckModeration(ctx context.Context, olderThan time.Time, limit int) ([]models.Video, error) {
	return f.videos, f.err
}

type fakeReconcileLocks struct {
	locked   map[string]bool
	released []string
}

func newFakeReconcileLocks() *fakeReconcileLocks {
	return &fakeReconcileLocks{locked: make(map[string]bool)}
}

func (f *fakeReconcileLocks) IsLocked(ctx context.Context, videoID string) (bool, error) {
	return f.locked[videoID], nil
}

func (f *fakeReconcileLocks) TryAcquire(ctx context.Context, videoID string) (bool, error) {
	if f.locked[videoID] {
		return false, nil
	}
	f.locked[videoID] = true
	return true, nil
}

func (f *fakeReconcileLocks) Release(ctx context.Context, videoID string) error {
	delete(f.locked, videoID)
	f.released = append(f.released, videoID)
	return nil
}

type countingEnqueuer struct {
	err error
	ids []string
}

func (f *countingEnqueuer) Enqueue(ctx context.Context, queueName string, payload interface{}) error {
	if f.err != nil {
		return f.err
	}
	task := payload.(tasks.ModerationTaskPayload)
	f.ids = append(f.ids, task.VideoID)
	return nil
}

func stuckVideo(id, flags string) models.Video {
	return models.Video{
		ID:               id,
		Status:           models.VideoReady,
		ModerationStatus: models.ModerationPending,
		ModerationFlags:  flags,
	}
}

func reconcilerLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(nopWriter{})
	return log
}

func TestReconcileRequeuesLostScans(t *testing.T) {
	lister := &fakeStuckLister{videos: []models.Video{stuckVideo("vid-1", ""), stuckVideo("vid-2", "")}}
	locks := newFakeReconcileLocks()
	queue := &countingEnqueuer{}

	n, err := ReconcileStaleModeration(context.Background(), lister, locks, queue, time.Now(), 50, reconcilerLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"vid-1", "vid-2"}, queue.ids)
	assert.True(t, locks.locked["vid-1"])
	assert.True(t, locks.locked["vid-2"])
}

func TestReconcileLeavesFlaggedVideosToHumanReview(t *testing.T) {
	lister := &fakeStuckLister{videos: []models.Video{
		stuckVideo("vid-flagged", "EXPLICIT_ADULT,VIOLENCE"),
		stuckVideo("vid-lost", ""),
	}}
	locks := newFakeReconcileLocks()
	queue := &countingEnqueuer{}

	n, err := ReconcileStaleModeration(context.Background(), lister, locks, queue, time.Now(), 50, reconcilerLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"vid-lost"}, queue.ids)
	assert.False(t, locks.locked["vid-flagged"])
}

func TestReconcileSkipsLockedVideos(t *testing.T) {
	lister := &fakeStuckLister{videos: []models.Video{stuckVideo("vid-1", "")}}
	locks := newFakeReconcileLocks()
	locks.locked["vid-1"] = true
	queue := &countingEnqueuer{}

	n, err := ReconcileStaleModeration(context.Background(), lister, locks, queue, time.Now(), 50, reconcilerLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, queue.ids)
}

func TestReconcileReleasesLockOnEnqueueFailure(t *testing.T) {
	lister := &fakeStuckLister{videos: []models.Video{stuckVideo("vid-1", "")}}
	locks := newFakeReconcileLocks()
	queue := &countingEnqueuer{err: errors.New("redis down")}

	n, err := ReconcileStaleModeration(context.Background(), lister, locks, queue, time.Now(), 50, reconcilerLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []string{"vid-1"}, locks.released)
	assert.False(t, locks.locked["vid-1"])
}

func TestReconcileSurfacesListError(t *testing.T) {
	lister := &fakeStuckLister{err: errors.New("db down")}

	_, err := ReconcileStaleModeration(context.Background(), lister, newFakeReconcileLocks(), &countingEnqueuer{}, time.Now(), 50, reconcilerLogger())
	assert.Error(t, err)
}
