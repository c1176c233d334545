package moderation

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gdheubs/Video-streaming-platform/alert"
	"github.com/Gdheubs/Video-streaming-platform/models"
)

type fakeClassifier struct {
	startErr   error
	getErr     error
	result     JobResult
	pollsUntil int
	polls      int
}

func (f *fakeClassifier) StartJob(ctx context.Context, key string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return "job-1", nil
}

func (f *fakeClassifier) GetJob(ctx context.Context, jobID string) (*JobResult, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.polls++
	if f.polls <= f.pollsUntil {
		return &JobResult{Status: JobInProgress}, nil
	}
	r := f.result
	return &r, nil
}

type fakeVideoStore struct {
	mu     sync.Mutex
	videos map[string]*models.Video
}

func newFakeVideoStore(videos ...*models.Video) *fakeVideoStore {
	s := &fakeVideoStore{videos: make(map[string]*models.Video)}
	for _, v := range videos {
		s.videos[v.ID] = v
	}
	return s
}

func (s *fakeVideoStore) ByID(ctx context.Context, id string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copy := *v
	return &copy, nil
}

func (s *fakeVideoStore) SetModeration(ctx context.Context, id string, expect models.ModerationStatus, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return models.ErrNotFound
	}
	if v.ModerationStatus != expect {
		return models.ErrConflict
	}
	for col, val := range updates {
		switch col {
		case "moderation_status":
			v.ModerationStatus = val.(models.ModerationStatus)
		case "status":
			v.Status = val.(models.VideoStatus)
		case "moderation_confidence":
			v.ModerationConfidence = val.(float64)
		case "moderation_flags":
			v.ModerationFlags = val.(string)
		}
	}
	return nil
}

func (s *fakeVideoStore) ListPendingModeration(ctx context.Context, limit int) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Video
	for _, v := range s.videos {
		if v.ModerationStatus == models.ModerationPending && len(out) < limit {
			out = append(out, *v)
		}
	}
	return out, nil
}

type fakeRoleStore struct {
	revoked []string
}

func (f *fakeRoleStore) RevokeCreator(ctx context.Context, userID string) error {
	f.revoked = append(f.revoked, userID)
	return nil
}

type fakeAuditSink struct {
	records []string
}

func (f *fakeAuditSink) Record(ctx context.Context, action, entityType, entityID, performedBy string, metadata map[string]interface{}) error {
	f.records = append(f.records, action)
	return nil
}

type fakeNotifier struct {
	events []alert.Event
}

func (f *fakeNotifier) NotifyCritical(ctx context.Context, event alert.Event) error {
	f.events = append(f.events, event)
	return nil
}

type engineFixture struct {
	engine     *Engine
	videos     *fakeVideoStore
	roles      *fakeRoleStore
	audit      *fakeAuditSink
	alerts     *fakeNotifier
	classifier *fakeClassifier
}

func newFixture(classifier *fakeClassifier, videos ...*models.Video) *engineFixture {
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := newFakeVideoStore(videos...)
	roles := &fakeRoleStore{}
	auditSink := &fakeAuditSink{}
	alerts := &fakeNotifier{}

	engine := NewEngine(classifier, store, roles, auditSink, alerts, log)
	engine.SetPollPolicy(time.Millisecond, 5)

	return &engineFixture{
		engine:     engine,
		videos:     store,
		roles:      roles,
		audit:      auditSink,
		alerts:     alerts,
		classifier: classifier,
	}
}

func pendingVideo(id string) *models.Video {
	return &models.Video{
		ID:               id,
		CreatorID:        "creator-1",
		Status:           models.VideoReady,
		ModerationStatus: models.ModerationPending,
	}
}

func TestScanApprovesCleanContent(t *testing.T) {
	classifier := &fakeClassifier{result: JobResult{Status: JobSucceeded}}
	fx := newFixture(classifier, pendingVideo("v1"))

	res, err := fx.engine.Scan(context.Background(), "v1", "videos/v1/master.m3u8")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationApproved, res.Decision)
	assert.Empty(t, res.Flags)

	v, _ := fx.videos.ByID(context.Background(), "v1")
	assert.Equal(t, models.ModerationApproved, v.ModerationStatus)
	assert.Equal(t, models.VideoReady, v.Status)
}

func TestScanQueuesPolicyFlagsForHumanReview(t *testing.T) {
	classifier := &fakeClassifier{result: JobResult{
		Status: JobSucceeded,
		Labels: []Label{
			{Name: "Explicit Nudity", Confidence: 92},
			{Name: "Violence", Confidence: 71},
		},
	}}
	fx := newFixture(classifier, pendingVideo("v1"))

	res, err := fx.engine.Scan(context.Background(), "v1", "key")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationPending, res.Decision)
	assert.ElementsMatch(t, []Flag{FlagExplicitAdult, FlagViolence}, res.Flags)
	assert.EqualValues(t, 92, res.Confidence)

	v, _ := fx.videos.ByID(context.Background(), "v1")
	assert.Equal(t, models.ModerationPending, v.ModerationStatus)
	assert.Equal(t, "EXPLICIT_ADULT,VIOLENCE", v.ModerationFlags)
}

func TestScanIgnoresLowConfidenceLabels(t *testing.T) {
	classifier := &fakeClassifier{result: JobResult{
		Status: JobSucceeded,
		Labels: []Label{{Name: "Violence", Confidence: 30}},
	}}
	fx := newFixture(classifier, pendingVideo("v1"))

	res, err := fx.engine.Scan(context.Background(), "v1", "key")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationApproved, res.Decision)
}

func TestScanIllegalContentCascade(t *testing.T) {
	classifier := &fakeClassifier{result: JobResult{
		Status: JobSucceeded,
		Labels: []Label{
			{Name: "Child Exploitation", Confidence: 99},
			{Name: "Explicit Nudity", Confidence: 88},
		},
	}}
	fx := newFixture(classifier, pendingVideo("v1"))

	res, err := fx.engine.Scan(context.Background(), "v1", "key")
	require.NoError(t, err)
	assert.Equal(t, models.ModerationRejected, res.Decision)

	v, _ := fx.videos.ByID(context.Background(), "v1")
	assert.Equal(t, models.ModerationRejected, v.ModerationStatus)
	assert.Equal(t, models.VideoFailed, v.Status)

	// Creator demoted, exactly one audit record and one alert.
	assert.Equal(t, []string{"creator-1"}, fx.roles.revoked)
	assert.Equal(t, []string{models.AuditIllegalContentDetected}, fx.audit.records)
	require.Len(t, fx.alerts.events, 1)
	assert.Equal(t, alert.EventIllegalContent, fx.alerts.events[0].Type)
	assert.Equal(t, "v1", fx.alerts.events[0].VideoID)
}

func TestScanFailureLeavesVideoPending(t *testing.T) {
	cases := map[string]*fakeClassifier{
		"start error": {startErr: errors.New("transport down")},
		"poll error":  {getErr: errors.New("timeout")},
		"job failed":  {result: JobResult{Status: JobFailed}},
		"budget":      {pollsUntil: 100, result: JobResult{Status: JobSucceeded}},
	}

	for name, classifier := range cases {
		t.Run(name, func(t *testing.T) {
			fx := newFixture(classifier, pendingVideo("v1"))

			_, err := fx.engine.Scan(context.Background(), "v1", "key")
			require.Error(t, err)

			v, _ := fx.videos.ByID(context.Background(), "v1")
			assert.Equal(t, models.ModerationPending, v.ModerationStatus)
			assert.Empty(t, fx.alerts.events)
		})
	}
}

func TestScanCancelledMidPoll(t *testing.T) {
	classifier := &fakeClassifier{pollsUntil: 100, result: JobResult{Status: JobSucceeded}}
	fx := newFixture(classifier, pendingVideo("v1"))
	fx.engine.SetPollPolicy(50*time.Millisecond, 100)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := fx.engine.Scan(ctx, "v1", "key")
	require.ErrorIs(t, err, context.Canceled)

	v, _ := fx.videos.ByID(context.Background(), "v1")
	assert.Equal(t, models.ModerationPending, v.ModerationStatus)
}

func TestAdminApproveOnlyFromPending(t *testing.T) {
	fx := newFixture(&fakeClassifier{}, pendingVideo("v1"))

	require.NoError(t, fx.engine.Approve(context.Background(), "v1", "admin-1"))
	assert.Equal(t, []string{models.AuditVideoApproved}, fx.audit.records)

	// A second approve is a conflict: the video is no longer PENDING.
	err := fx.engine.Approve(context.Background(), "v1", "admin-1")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAdminRejectForcesFailure(t *testing.T) {
	fx := newFixture(&fakeClassifier{}, pendingVideo("v1"))

	require.NoError(t, fx.engine.Reject(context.Background(), "v1", "admin-1", "policy violation"))

	v, _ := fx.videos.ByID(context.Background(), "v1")
	assert.Equal(t, models.ModerationRejected, v.ModerationStatus)
	assert.Equal(t, models.VideoFailed, v.Status)
	assert.Equal(t, []string{models.AuditVideoRejected}, fx.audit.records)
}

func TestAdminApproveRejectedAfterIllegalCascade(t *testing.T) {
	classifier := &fakeClassifier{result: JobResult{
		Status: JobSucceeded,
		Labels: []Label{{Name: "Minor", Confidence: 95}},
	}}
	fx := newFixture(classifier, pendingVideo("v1"))

	_, err := fx.engine.Scan(context.Background(), "v1", "key")
	require.NoError(t, err)

	err = fx.engine.Approve(context.Background(), "v1", "admin-1")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestLateScanAfterAdminDecisionIsConflict(t *testing.T) {
	classifier := &fakeClassifier{result: JobResult{
		Status: JobSucceeded,
		Labels: []Label{{Name: "Minor", Confidence: 95}},
	}}
	fx := newFixture(classifier, pendingVideo("v1"))

	// Admin rejects while the scan is still running.
	require.NoError(t, fx.engine.Reject(context.Background(), "v1", "admin-1", "manual"))

	_, err := fx.engine.Scan(context.Background(), "v1", "key")
	require.ErrorIs(t, err, models.ErrConflict)

	// The late-arriving cascade must not fire its side effects.
	assert.Empty(t, fx.roles.revoked)
	assert.Empty(t, fx.alerts.events)
}

func TestPendingQueue(t *testing.T) {
	approved := pendingVideo("v2")
	approved.ModerationStatus = models.ModerationApproved
	fx := newFixture(&fakeClassifier{}, pendingVideo("v1"), approved)

	queue, err := fx.engine.PendingQueue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "v1", queue[0].ID)
}
