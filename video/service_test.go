package video

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gdheubs/Video-streaming-platform/access"
	"github.com/Gdheubs/Video-streaming-platform/models"
	"github.com/Gdheubs/Video-streaming-platform/moderation"
	"github.com/Gdheubs/Video-streaming-platform/objectstore"
	"github.com/Gdheubs/Video-streaming-platform/tasks"
	"github.com/Gdheubs/Video-streaming-platform/videocache"
)

type fakeStore struct {
	mu     sync.Mutex
	videos map[string]*models.Video
	views  int
}

func newFakeStore(videos ...*models.Video) *fakeStore {
	s := &fakeStore{videos: make(map[string]*models.Video)}
	for _, v := range videos {
		s.videos[v.ID] = v
	}
	return s
}

func (s *fakeStore) Create(ctx context.Context, v *models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[v.ID] = v
	return nil
}

func (s *fakeStore) ByID(ctx context.Context, id string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copy := *v
	return &copy, nil
}

func (s *fakeStore) SetStatus(ctx context.Context, id string, expect models.VideoStatus, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return models.ErrNotFound
	}
	if v.Status != expect {
		return models.ErrConflict
	}
	if st, ok := updates["status"]; ok {
		v.Status = st.(models.VideoStatus)
	}
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.videos, id)
	return nil
}

func (s *fakeStore) ListPublicServable(ctx context.Context, limit int) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Video
	for _, v := range s.videos {
		if v.Servable() && v.Visibility == models.VisibilityPublic && len(out) < limit {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (s *fakeStore) RecordView(ctx context.Context, videoID string, viewerID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views++
	return nil
}

func (s *fakeStore) FailAllByCreator(ctx context.Context, creatorID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, v := range s.videos {
		if v.CreatorID == creatorID {
			v.Status = models.VideoFailed
			v.ModerationStatus = models.ModerationRejected
			ids = append(ids, v.ID)
		}
	}
	return ids, nil
}

type fakeUsers struct {
	approved map[string]bool
	revoked  []string
}

func (f *fakeUsers) ByID(ctx context.Context, id string) (*models.User, error) {
	return &models.User{ID: id}, nil
}

func (f *fakeUsers) IsApprovedCreator(ctx context.Context, userID string) (bool, error) {
	return f.approved[userID], nil
}

func (f *fakeUsers) RevokeCreator(ctx context.Context, userID string) error {
	f.revoked = append(f.revoked, userID)
	return nil
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]*models.Video
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*models.Video)}
}

func (f *fakeCache) GetVideo(ctx context.Context, videoID string) (*models.Video, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.entries[videoID]
	if !ok {
		return nil, false
	}
	copy := *v
	return &copy, true
}

func (f *fakeCache) SetVideo(ctx context.Context, video *models.Video) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *video
	f.entries[video.ID] = &copy
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, videoID)
	f.invalidated = append(f.invalidated, videoID)
	return nil
}

type fakeQueue struct {
	enqueued []string
}

func (f *fakeQueue) Enqueue(ctx context.Context, queueName string, payload interface{}) error {
	f.enqueued = append(f.enqueued, queueName)
	return nil
}

type fakeLocks struct {
	mu      sync.Mutex
	locked  map[string]bool
	deleted map[string]bool
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{locked: make(map[string]bool), deleted: make(map[string]bool)}
}

func (f *fakeLocks) TryAcquire(ctx context.Context, videoID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked[videoID] {
		return false, nil
	}
	f.locked[videoID] = true
	return true, nil
}

func (f *fakeLocks) Release(ctx context.Context, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locked, videoID)
	return nil
}

func (f *fakeLocks) MarkDeleted(ctx context.Context, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[videoID] = true
	return nil
}

func (f *fakeLocks) IsDeleted(ctx context.Context, videoID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleted[videoID], nil
}

type fakeEntitlements struct {
	entitled map[string]bool
}

func (f *fakeEntitlements) IsEntitled(ctx context.Context, viewerID, creatorID string) (bool, error) {
	return f.entitled[viewerID+"/"+creatorID], nil
}

type fakeAudit struct {
	actions []string
}

func (f *fakeAudit) Record(ctx context.Context, action, entityType, entityID, performedBy string, metadata map[string]interface{}) error {
	f.actions = append(f.actions, action)
	return nil
}

type flaggingTextMod struct {
	flags []moderation.Flag
}

func (f flaggingTextMod) ScreenText(ctx context.Context, text string) ([]moderation.Flag, error) {
	return f.flags, nil
}

type serviceHarness struct {
	svc          *Service
	store        *fakeStore
	users        *fakeUsers
	blobs        *objectstore.MemStore
	cache        *fakeCache
	counters     *videocache.MemCounters
	queue        *fakeQueue
	locks        *fakeLocks
	entitlements *fakeEntitlements
	audit        *fakeAudit
}

func newHarness(t *testing.T, videos ...*models.Video) *serviceHarness {
	t.Helper()
	log := logrus.New()
	log.SetOutput(nopWriter{})

	h := &serviceHarness{
		store:        newFakeStore(videos...),
		users:        &fakeUsers{approved: map[string]bool{"creator-1": true}},
		blobs:        objectstore.NewMemStore(),
		cache:        newFakeCache(),
		counters:     videocache.NewMemCounters(),
		queue:        &fakeQueue{},
		locks:        newFakeLocks(),
		entitlements: &fakeEntitlements{entitled: map[string]bool{}},
		audit:        &fakeAudit{},
	}
	h.svc = NewService(ServiceDeps{
		Store:    h.store,
		Users:    h.users,
		Blobs:    h.blobs,
		Uploads:  objectstore.NewUploadSigner("test-secret", time.Hour),
		Gateway:  access.NewGateway(h.entitlements, "test-secret"),
		Cache:    h.cache,
		Counters: h.counters,
		TextMod:  moderation.NopTextModerator{},
		Audit:    h.audit,
		Queue:    h.queue,
		Locks:    h.locks,
		Log:      log,
	})
	return h
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func servableVideo(id, creator string, vis models.Visibility) *models.Video {
	return &models.Video{
		ID:               id,
		CreatorID:        creator,
		Title:            "t",
		Visibility:       vis,
		Status:           models.VideoReady,
		ModerationStatus: models.ModerationApproved,
		ManifestKey:      "videos/" + id + "/master.m3u8",
	}
}

func TestRequestUploadCreatesProcessingRow(t *testing.T) {
	h := newHarness(t)

	slot, err := h.svc.RequestUpload(context.Background(), "creator-1", UploadRequest{
		Filename:   "my clip.mp4",
		Title:      "First upload",
		Visibility: models.VisibilityPremium,
	})
	require.NoError(t, err)
	require.NotEmpty(t, slot.VideoID)
	require.NotEmpty(t, slot.UploadToken)

	v, err := h.store.ByID(context.Background(), slot.VideoID)
	require.NoError(t, err)
	assert.Equal(t, models.VideoProcessing, v.Status)
	assert.Equal(t, models.ModerationPending, v.ModerationStatus)
	assert.Equal(t, models.VisibilityPremium, v.Visibility)
	assert.True(t, strings.HasPrefix(v.OriginalKey, "uploads/originals/creator-1/"))
	assert.NotContains(t, v.OriginalKey, " ")

	signer := objectstore.NewUploadSigner("test-secret", time.Hour)
	key, err := signer.Verify(slot.UploadToken)
	require.NoError(t, err)
	assert.Equal(t, v.OriginalKey, key)
}

func TestRequestUploadRequiresApprovedCreator(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.RequestUpload(context.Background(), "viewer-9", UploadRequest{
		Filename: "a.mp4", Title: "nope",
	})
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
}

func TestRequestUploadRejectsFlaggedText(t *testing.T) {
	h := newHarness(t)
	h.svc.textmod = flaggingTextMod{flags: []moderation.Flag{moderation.FlagExplicitAdult}}

	_, err := h.svc.RequestUpload(context.Background(), "creator-1", UploadRequest{
		Filename: "a.mp4", Title: "bad title",
	})
	assert.ErrorIs(t, err, ErrRejectedContent)
}

func TestConfirmUploadEnqueuesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	slot, err := h.svc.RequestUpload(ctx, "creator-1", UploadRequest{Filename: "a.mp4", Title: "t"})
	require.NoError(t, err)
	require.NoError(t, h.blobs.Put(ctx, slot.Key, strings.NewReader("raw bytes"), "video/mp4"))

	require.NoError(t, h.svc.ConfirmUpload(ctx, slot.VideoID, "creator-1"))
	assert.Equal(t, []string{tasks.QueueVideoTranscode}, h.queue.enqueued)

	// Same video again: the pipeline lock is already held.
	err = h.svc.ConfirmUpload(ctx, slot.VideoID, "creator-1")
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Len(t, h.queue.enqueued, 1)
}

func TestConfirmUploadRequiresSourceObject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	slot, err := h.svc.RequestUpload(ctx, "creator-1", UploadRequest{Filename: "a.mp4", Title: "t"})
	require.NoError(t, err)

	err = h.svc.ConfirmUpload(ctx, slot.VideoID, "creator-1")
	require.Error(t, err)
	assert.Empty(t, h.queue.enqueued)
}

func TestConfirmUploadByStrangerIsNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	slot, err := h.svc.RequestUpload(ctx, "creator-1", UploadRequest{Filename: "a.mp4", Title: "t"})
	require.NoError(t, err)

	err = h.svc.ConfirmUpload(ctx, slot.VideoID, "someone-else")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetHidesUnmoderatedFromViewers(t *testing.T) {
	v := servableVideo("vid-1", "creator-1", models.VisibilityPublic)
	v.ModerationStatus = models.ModerationPending
	h := newHarness(t, v)
	ctx := context.Background()

	// A stranger and an anonymous request both see nothing.
	_, err := h.svc.Get(ctx, "vid-1", "viewer-2", false)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = h.svc.Get(ctx, "vid-1", "", false)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// The owner polls processing progress on the same endpoint.
	details, err := h.svc.Get(ctx, "vid-1", "creator-1", false)
	require.NoError(t, err)
	assert.Equal(t, models.ModerationPending, details.Video.ModerationStatus)

	// Admins see everything.
	details, err = h.svc.Get(ctx, "vid-1", "admin-1", true)
	require.NoError(t, err)
	assert.Equal(t, "vid-1", details.Video.ID)
}

func TestGetRejectedLooksIdenticalToMissing(t *testing.T) {
	v := servableVideo("vid-r", "creator-1", models.VisibilityPublic)
	v.Status = models.VideoFailed
	v.ModerationStatus = models.ModerationRejected
	h := newHarness(t, v)
	ctx := context.Background()

	_, errRejected := h.svc.Get(ctx, "vid-r", "viewer-2", false)
	_, errMissing := h.svc.Get(ctx, "no-such-video", "viewer-2", false)
	assert.ErrorIs(t, errRejected, models.ErrNotFound)
	assert.ErrorIs(t, errMissing, models.ErrNotFound)
	assert.Equal(t, errRejected.Error(), errMissing.Error())
}

func TestStreamPublicAnonymous(t *testing.T) {
	h := newHarness(t, servableVideo("vid-1", "creator-1", models.VisibilityPublic))
	ctx := context.Background()

	info, err := h.svc.Stream(ctx, "vid-1", "")
	require.NoError(t, err)
	assert.True(t, info.Grant.Granted)
	assert.Nil(t, info.Grant.Credential)
	assert.Equal(t, "/stream/videos/vid-1/master.m3u8", info.ManifestPath)

	assert.Equal(t, int64(1), h.counters.Views("vid-1"))
	assert.Equal(t, 1, h.store.views)
}

func TestStreamPremiumRequiresSubscription(t *testing.T) {
	h := newHarness(t, servableVideo("vid-p", "creator-1", models.VisibilityPremium))
	ctx := context.Background()

	info, err := h.svc.Stream(ctx, "vid-p", "viewer-2")
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
	assert.Equal(t, access.ReasonSubscriptionRequired, info.Grant.Reason)
	assert.Equal(t, int64(0), h.counters.Views("vid-p"))

	h.entitlements.entitled["viewer-2/creator-1"] = true

	info, err = h.svc.Stream(ctx, "vid-p", "viewer-2")
	require.NoError(t, err)
	require.NotNil(t, info.Grant.Credential)
	assert.Equal(t, "videos/vid-p/", info.Grant.Credential.PathPrefix)
	assert.WithinDuration(t, time.Now().Add(access.DefaultCredentialTTL), info.Grant.Credential.ExpiresAt, time.Minute)
	assert.Equal(t, int64(1), h.counters.Views("vid-p"))
}

func TestStreamPrivateOnlyForOwner(t *testing.T) {
	h := newHarness(t, servableVideo("vid-x", "creator-1", models.VisibilityPrivate))
	ctx := context.Background()

	_, err := h.svc.Stream(ctx, "vid-x", "viewer-2")
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	info, err := h.svc.Stream(ctx, "vid-x", "creator-1")
	require.NoError(t, err)
	require.NotNil(t, info.Grant.Credential)
}

func TestStreamNonServableIsNotFound(t *testing.T) {
	v := servableVideo("vid-f", "creator-1", models.VisibilityPublic)
	v.Status = models.VideoFailed
	h := newHarness(t, v)

	_, err := h.svc.Stream(context.Background(), "vid-f", "viewer-2")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, int64(0), h.counters.Views("vid-f"))
}

func TestDeleteTombstonesAndCleansArtifacts(t *testing.T) {
	v := servableVideo("vid-d", "creator-1", models.VisibilityPublic)
	v.OriginalKey = "uploads/originals/creator-1/1-a.mp4"
	v.ThumbnailKey = "thumbnails/vid-d.jpg"
	h := newHarness(t, v)
	ctx := context.Background()

	for _, key := range []string{v.OriginalKey, v.ThumbnailKey, "videos/vid-d/master.m3u8", "videos/vid-d/720p/seg0.ts"} {
		require.NoError(t, h.blobs.Put(ctx, key, strings.NewReader("x"), "application/octet-stream"))
	}

	require.NoError(t, h.svc.Delete(ctx, "vid-d", "creator-1", false))

	deleted, err := h.locks.IsDeleted(ctx, "vid-d")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = h.store.ByID(ctx, "vid-d")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Empty(t, h.blobs.Keys("videos/vid-d/"))
	assert.Empty(t, h.blobs.Keys("uploads/"))
	assert.Empty(t, h.blobs.Keys("thumbnails/"))
	assert.Equal(t, []string{models.AuditVideoDeleted}, h.audit.actions)
}

func TestDeleteByStrangerIsNotFound(t *testing.T) {
	h := newHarness(t, servableVideo("vid-d", "creator-1", models.VisibilityPublic))

	err := h.svc.Delete(context.Background(), "vid-d", "viewer-2", false)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = h.store.ByID(context.Background(), "vid-d")
	assert.NoError(t, err)
}

func TestBanCreatorFailsAllVideos(t *testing.T) {
	h := newHarness(t,
		servableVideo("vid-1", "creator-1", models.VisibilityPublic),
		servableVideo("vid-2", "creator-1", models.VisibilityPremium),
		servableVideo("vid-3", "creator-2", models.VisibilityPublic),
	)
	ctx := context.Background()

	require.NoError(t, h.svc.BanCreator(ctx, "creator-1", "admin-1", "policy"))

	assert.Equal(t, []string{"creator-1"}, h.users.revoked)
	assert.Equal(t, []string{models.AuditUserBanned}, h.audit.actions)

	for _, id := range []string{"vid-1", "vid-2"} {
		v, err := h.store.ByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.VideoFailed, v.Status)
		assert.Equal(t, models.ModerationRejected, v.ModerationStatus)
	}

	untouched, err := h.store.ByID(ctx, "vid-3")
	require.NoError(t, err)
	assert.Equal(t, models.VideoReady, untouched.Status)
}

func TestGetUsesCache(t *testing.T) {
	h := newHarness(t, servableVideo("vid-c", "creator-1", models.VisibilityPublic))
	ctx := context.Background()

	_, err := h.svc.Get(ctx, "vid-c", "", false)
	require.NoError(t, err)

	// The row is cached now; mutate the store behind the cache's back and
	// confirm reads still hit the cache.
	h.store.videos["vid-c"].Title = "changed"
	details, err := h.svc.Get(ctx, "vid-c", "", false)
	require.NoError(t, err)
	assert.Equal(t, "t", details.Video.Title)

	require.NoError(t, h.cache.Invalidate(ctx, "vid-c"))
	details, err = h.svc.Get(ctx, "vid-c", "", false)
	require.NoError(t, err)
	assert.Equal(t, "changed", details.Video.Title)
}
