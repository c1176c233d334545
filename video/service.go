package video

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Gdheubs/Video-streaming-platform/access"
	"github.com/Gdheubs/Video-streaming-platform/audit"
	"github.com/Gdheubs/Video-streaming-platform/models"
	"github.com/Gdheubs/Video-streaming-platform/moderation"
	"github.com/Gdheubs/Video-streaming-platform/objectstore"
	"github.com/Gdheubs/Video-streaming-platform/tasks"
	"github.com/Gdheubs/Video-streaming-platform/videocache"
)

// ErrRejectedContent is returned when the text pre-filter refuses the
// submitted title or description.
var ErrRejectedContent = errors.New("content rejected by policy")

// Store is the persistence surface the orchestrator drives. *Repository is
// the production implementation.
type Store interface {
	Create(ctx context.Context, v *models.Video) error
	ByID(ctx context.Context, id string) (*models.Video, error)
	SetStatus(ctx context.Context, id string, expect models.VideoStatus, updates map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	ListPublicServable(ctx context.Context, limit int) ([]models.Video, error)
	RecordView(ctx context.Context, videoID string, viewerID *string) error
	FailAllByCreator(ctx context.Context, creatorID string) ([]string, error)
}

// UserDirectory is the account collaborator surface.
type UserDirectory interface {
	ByID(ctx context.Context, id string) (*models.User, error)
	IsApprovedCreator(ctx context.Context, userID string) (bool, error)
	RevokeCreator(ctx context.Context, userID string) error
}

// MetadataCache is the hot-row cache contract.
type MetadataCache interface {
	GetVideo(ctx context.Context, videoID string) (*models.Video, bool)
	SetVideo(ctx context.Context, video *models.Video) error
	Invalidate(ctx context.Context, videoID string) error
}

// Queue enqueues pipeline tasks. The worker Processor implements it.
type Queue interface {
	Enqueue(ctx context.Context, queueName string, payload interface{}) error
}

// Locks is the per-video job coordination contract.
type Locks interface {
	TryAcquire(ctx context.Context, videoID string) (bool, error)
	Release(ctx context.Context, videoID string) error
	MarkDeleted(ctx context.Context, videoID string) error
	IsDeleted(ctx context.Context, videoID string) (bool, error)
}

// Service is the video lifecycle orchestrator. It owns the processing state
// machine and is the only component that mutates video status.
type Service struct {
	store    Store
	users    UserDirectory
	blobs    objectstore.Store
	uploads  *objectstore.UploadSigner
	gateway  *access.Gateway
	cache    MetadataCache
	counters videocache.Counters
	textmod  moderation.TextModerator
	audit    audit.Sink
	queue    Queue
	locks    Locks
	log      *logrus.Logger
}

type ServiceDeps struct {
	Store    Store
	Users    UserDirectory
	Blobs    objectstore.Store
	Uploads  *objectstore.UploadSigner
	Gateway  *access.Gateway
	Cache    MetadataCache
	Counters videocache.Counters
	TextMod  moderation.TextModerator
	Audit    audit.Sink
	Queue    Queue
	Locks    Locks
	Log      *logrus.Logger
}

func NewService(deps ServiceDeps) *Service {
	return &Service{
		store:    deps.Store,
		users:    deps.Users,
		blobs:    deps.Blobs,
		uploads:  deps.Uploads,
		gateway:  deps.Gateway,
		cache:    deps.Cache,
		counters: deps.Counters,
		textmod:  deps.TextMod,
		audit:    deps.Audit,
		queue:    deps.Queue,
		locks:    deps.Locks,
		log:      deps.Log,
	}
}

// UploadRequest is the creator's ask for an upload slot.
type UploadRequest struct {
	Filename    string
	Title       string
	Description string
	Visibility  models.Visibility
}

// UploadSlot is the pre-authorized write target plus the created video row.
type UploadSlot struct {
	VideoID     string `json:"video_id"`
	UploadToken string `json:"upload_token"`
	Key         string `json:"key"`
}

// RequestUpload validates the creator, screens the submitted text, creates
// the video row in PROCESSING/PENDING, and mints the write target.
func (s *Service) RequestUpload(ctx context.Context, creatorID string, req UploadRequest) (*UploadSlot, error) {
	if req.Filename == "" || req.Title == "" {
		return nil, fmt.Errorf("%w: filename and title are required", models.ErrNotAuthorized)
	}
	switch req.Visibility {
	case models.VisibilityPublic, models.VisibilityPremium, models.VisibilityPrivate:
	case "":
		req.Visibility = models.VisibilityPublic
	default:
		return nil, fmt.Errorf("invalid visibility %q", req.Visibility)
	}

	approved, err := s.users.IsApprovedCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, fmt.Errorf("%w: creator verification required", models.ErrNotAuthorized)
	}

	flags, err := s.textmod.ScreenText(ctx, req.Title+"\n"+req.Description)
	if err != nil {
		// The full content scan still stands between upload and playback;
		// a pre-filter outage does not block creators.
		s.log.WithError(err).Warn("text pre-filter unavailable, continuing")
	} else if len(flags) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrRejectedContent, flags)
	}

	key := fmt.Sprintf("uploads/originals/%s/%d-%s", creatorID, time.Now().UnixNano(), sanitizeFilename(req.Filename))

	video := &models.Video{
		ID:               uuid.NewString(),
		CreatorID:        creatorID,
		Title:            req.Title,
		Description:      req.Description,
		Visibility:       req.Visibility,
		Status:           models.VideoProcessing,
		ModerationStatus: models.ModerationPending,
		OriginalKey:      key,
	}
	if err := s.store.Create(ctx, video); err != nil {
		return nil, fmt.Errorf("failed to create video: %w", err)
	}

	token, err := s.uploads.Sign(key)
	if err != nil {
		return nil, fmt.Errorf("failed to mint upload token: %w", err)
	}

	return &UploadSlot{VideoID: video.ID, UploadToken: token, Key: key}, nil
}

// ConfirmUpload kicks off the processing pipeline. It returns immediately
// after enqueuing; callers observe progress by polling Get. Concurrent
// confirms for the same video are rejected, never run twice.
func (s *Service) ConfirmUpload(ctx context.Context, videoID, callerID string) error {
	video, err := s.store.ByID(ctx, videoID)
	if err != nil {
		return err
	}
	if video.CreatorID != callerID {
		return models.ErrNotFound
	}
	if video.Status != models.VideoProcessing {
		return models.ErrConflict
	}

	if _, err := s.blobs.HeadSize(ctx, video.OriginalKey); err != nil {
		return fmt.Errorf("source not uploaded: %w", err)
	}

	acquired, err := s.locks.TryAcquire(ctx, videoID)
	if err != nil {
		return err
	}
	if !acquired {
		return models.ErrConflict
	}

	if err := s.queue.Enqueue(ctx, tasks.QueueVideoTranscode, tasks.TranscodeTaskPayload{VideoID: videoID}); err != nil {
		s.locks.Release(ctx, videoID)
		return fmt.Errorf("failed to enqueue transcode: %w", err)
	}

	s.log.WithField("video_id", videoID).Info("transcode queued")
	return nil
}

// Details is a metadata read augmented with the viewer's access outcome.
type Details struct {
	Video  *models.Video `json:"video"`
	Access *access.Grant `json:"access"`
}

// Get returns metadata for a video. Viewers only ever see APPROVED videos;
// everything else is a uniform not-found so moderation outcomes never leak.
// The owner sees their own video in any state (that is how upload progress
// is polled), and admins see everything.
func (s *Service) Get(ctx context.Context, videoID, viewerID string, isAdmin bool) (*Details, error) {
	video, err := s.lookup(ctx, videoID)
	if err != nil {
		return nil, err
	}

	owner := viewerID != "" && viewerID == video.CreatorID
	if !isAdmin && !owner && video.ModerationStatus != models.ModerationApproved {
		return nil, models.ErrNotFound
	}

	grant, err := s.gateway.Authorize(ctx, video, viewerID)
	if err != nil {
		return nil, err
	}
	return &Details{Video: video, Access: grant}, nil
}

// lookup is the read-through cache path.
func (s *Service) lookup(ctx context.Context, videoID string) (*models.Video, error) {
	if video, ok := s.cache.GetVideo(ctx, videoID); ok {
		return video, nil
	}

	video, err := s.store.ByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetVideo(ctx, video); err != nil {
		s.log.WithError(err).Warn("failed to cache video")
	}
	return video, nil
}

// StreamInfo is what the serving layer needs to start playback.
type StreamInfo struct {
	VideoID      string        `json:"video_id"`
	ManifestPath string        `json:"manifest_path"`
	Grant        *access.Grant `json:"grant"`
}

// Stream authorizes playback and, when granted, counts the view. The
// counter increment is atomic; it and the credential mint are independent.
func (s *Service) Stream(ctx context.Context, videoID, viewerID string) (*StreamInfo, error) {
	video, err := s.lookup(ctx, videoID)
	if err != nil {
		return nil, err
	}

	grant, err := s.gateway.Authorize(ctx, video, viewerID)
	if err != nil {
		return nil, err
	}
	if !grant.Granted {
		if grant.Reason == access.ReasonNotFound {
			return nil, models.ErrNotFound
		}
		return &StreamInfo{VideoID: videoID, Grant: grant}, models.ErrNotAuthorized
	}

	if _, err := s.counters.IncrView(ctx, videoID); err != nil {
		s.log.WithError(err).WithField("video_id", videoID).Error("view count increment failed")
	}

	var viewer *string
	if viewerID != "" {
		viewer = &viewerID
	}
	if err := s.store.RecordView(ctx, videoID, viewer); err != nil {
		s.log.WithError(err).Warn("failed to record view row")
	}

	return &StreamInfo{
		VideoID:      videoID,
		ManifestPath: "/stream/" + video.ManifestKey,
		Grant:        grant,
	}, nil
}

// Like counts a like on a servable video the viewer can see.
func (s *Service) Like(ctx context.Context, videoID, viewerID string) (int64, error) {
	video, err := s.lookup(ctx, videoID)
	if err != nil {
		return 0, err
	}
	if !video.Servable() {
		return 0, models.ErrNotFound
	}
	return s.counters.IncrLike(ctx, videoID)
}

// ListPublic is the public feed.
func (s *Service) ListPublic(ctx context.Context, limit int) ([]models.Video, error) {
	return s.store.ListPublicServable(ctx, limit)
}

// Delete removes a video. Only the owning creator or an admin may delete.
// The tombstone is set before the row goes so an in-flight job cannot
// resurrect the video, and artifact removal is best-effort.
func (s *Service) Delete(ctx context.Context, videoID, callerID string, isAdmin bool) error {
	video, err := s.store.ByID(ctx, videoID)
	if err != nil {
		return err
	}
	if !isAdmin && video.CreatorID != callerID {
		return models.ErrNotFound
	}

	if err := s.locks.MarkDeleted(ctx, videoID); err != nil {
		return fmt.Errorf("failed to tombstone video: %w", err)
	}

	if err := s.store.Delete(ctx, videoID); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, videoID); err != nil {
		s.log.WithError(err).Warn("failed to invalidate cache")
	}

	s.removeArtifacts(ctx, video)

	if err := s.audit.Record(ctx, models.AuditVideoDeleted, "Video", videoID, callerID, nil); err != nil {
		s.log.WithError(err).Warn("failed to audit delete")
	}
	return nil
}

func (s *Service) removeArtifacts(ctx context.Context, video *models.Video) {
	for _, key := range []string{video.OriginalKey, video.ThumbnailKey, video.SpriteKey} {
		if key == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("artifact delete failed")
		}
	}
	if err := s.blobs.DeletePrefix(ctx, video.StreamPrefix()); err != nil {
		s.log.WithError(err).Warn("stream artifact delete failed")
	}
}

// BanCreator is the administrative cascade: revoke the role, force-fail
// every video, audit once.
func (s *Service) BanCreator(ctx context.Context, creatorID, adminID, reason string) error {
	if err := s.users.RevokeCreator(ctx, creatorID); err != nil {
		return err
	}

	ids, err := s.store.FailAllByCreator(ctx, creatorID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.log.WithError(err).Warn("failed to invalidate cache")
		}
	}

	return s.audit.Record(ctx, models.AuditUserBanned, "User", creatorID, adminID, map[string]interface{}{
		"reason":       reason,
		"videosFailed": len(ids),
	})
}

// sanitizeFilename keeps object keys flat and predictable.
func sanitizeFilename(name string) string {
	name = path.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		}
		return '_'
	}, name)
}
