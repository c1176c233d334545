package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Gdheubs/Video-streaming-platform/alert"
	"github.com/Gdheubs/Video-streaming-platform/audit"
	"github.com/Gdheubs/Video-streaming-platform/models"
)

// VideoStore is the slice of the video repository the engine needs. Every
// write is compare-and-set against the expected prior moderation state.
type VideoStore interface {
	ByID(ctx context.Context, id string) (*models.Video, error)
	// SetModeration applies updates iff the video's current moderation
	// status equals expect; models.ErrConflict otherwise.
	SetModeration(ctx context.Context, id string, expect models.ModerationStatus, updates map[string]interface{}) error
	ListPendingModeration(ctx context.Context, limit int) ([]models.Video, error)
}

// RoleStore revokes a creator's elevated privileges during the
// illegal-content cascade.
type RoleStore interface {
	RevokeCreator(ctx context.Context, userID string) error
}

// Result is the outcome of one scan.
type Result struct {
	Decision   models.ModerationStatus
	Confidence float64
	Flags      []Flag
}

// Engine drives the asynchronous classification job and turns its labels
// into a policy decision.
type Engine struct {
	classifier Classifier
	videos     VideoStore
	roles      RoleStore
	audit      audit.Sink
	alerts     alert.Notifier
	log        *logrus.Logger

	pollInterval  time.Duration
	maxAttempts   int
	minConfidence float64
}

func NewEngine(classifier Classifier, videos VideoStore, roles RoleStore, auditSink audit.Sink, alerts alert.Notifier, log *logrus.Logger) *Engine {
	return &Engine{
		classifier:    classifier,
		videos:        videos,
		roles:         roles,
		audit:         auditSink,
		alerts:        alerts,
		log:           log,
		pollInterval:  5 * time.Second,
		maxAttempts:   60,
		minConfidence: 60,
	}
}

// Scan submits the encoded asset for classification, waits for the verdict,
// and applies the decision policy. On any engine error the video is left in
// PENDING so a human reviewer is the fallback; it is never silently approved
// or rejected.
func (e *Engine) Scan(ctx context.Context, videoID, encodedKey string) (*Result, error) {
	video, err := e.videos.ByID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("moderation: %w", err)
	}

	jobID, err := e.classifier.StartJob(ctx, encodedKey)
	if err != nil {
		return nil, fmt.Errorf("moderation: failed to start classification job: %w", err)
	}

	result, err := e.waitForJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("moderation: %w", err)
	}

	var flags []Flag
	var maxConfidence float64
	for _, label := range result.Labels {
		if label.Confidence < e.minConfidence {
			continue
		}
		if label.Confidence > maxConfidence {
			maxConfidence = label.Confidence
		}
		if flag, ok := mapLabel(label.Name); ok && !containsFlag(flags, flag) {
			flags = append(flags, flag)
		}
	}

	res := &Result{Confidence: maxConfidence, Flags: flags}

	switch {
	case containsFlag(flags, FlagIllegalContent):
		res.Decision = models.ModerationRejected
		if err := e.handleIllegalContent(ctx, video, res); err != nil {
			return nil, err
		}
	case len(flags) > 0:
		// Policy flags short of illegal content queue the video for human
		// review; it stays PENDING with the scan outcome attached.
		res.Decision = models.ModerationPending
		err := e.videos.SetModeration(ctx, video.ID, models.ModerationPending, map[string]interface{}{
			"moderation_confidence": maxConfidence,
			"moderation_flags":      flagsToString(flags),
		})
		if err != nil {
			return nil, fmt.Errorf("moderation: %w", err)
		}
	default:
		res.Decision = models.ModerationApproved
		err := e.videos.SetModeration(ctx, video.ID, models.ModerationPending, map[string]interface{}{
			"moderation_status":     models.ModerationApproved,
			"moderation_confidence": maxConfidence,
		})
		if err != nil {
			return nil, fmt.Errorf("moderation: %w", err)
		}
	}

	e.log.WithFields(logrus.Fields{
		"video_id":   videoID,
		"decision":   res.Decision,
		"flags":      flagsToString(flags),
		"confidence": maxConfidence,
	}).Info("moderation scan complete")

	return res, nil
}

// waitForJob polls the classification job with a bounded attempt budget.
// The wait is cancellable through ctx, e.g. when the owning video is
// deleted mid-scan.
func (e *Engine) waitForJob(ctx context.Context, jobID string) (*JobResult, error) {
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		result, err := e.classifier.GetJob(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("classification poll failed: %w", err)
		}

		switch result.Status {
		case JobSucceeded:
			return result, nil
		case JobFailed:
			return nil, fmt.Errorf("classification job %s failed", jobID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.pollInterval):
		}
	}
	return nil, fmt.Errorf("classification job %s exceeded poll budget", jobID)
}

// handleIllegalContent is the irreversible cascade: force-fail the video,
// revoke the creator's privileges, write the audit record, and dispatch
// exactly one critical alert.
func (e *Engine) handleIllegalContent(ctx context.Context, video *models.Video, res *Result) error {
	err := e.videos.SetModeration(ctx, video.ID, models.ModerationPending, map[string]interface{}{
		"moderation_status":     models.ModerationRejected,
		"status":                models.VideoFailed,
		"moderation_confidence": res.Confidence,
		"moderation_flags":      flagsToString(res.Flags),
	})
	if err != nil {
		// A concurrent transition already moved the video on; do not re-run
		// the cascade side effects.
		return fmt.Errorf("moderation: illegal-content transition: %w", err)
	}

	if err := e.roles.RevokeCreator(ctx, video.CreatorID); err != nil {
		e.log.WithError(err).WithField("creator_id", video.CreatorID).Error("failed to revoke creator role")
	}

	if err := e.audit.Record(ctx, models.AuditIllegalContentDetected, "Video", video.ID, "SYSTEM", map[string]interface{}{
		"creatorId": video.CreatorID,
		"action":    "AUTO_BANNED",
		"severity":  "CRITICAL",
	}); err != nil {
		e.log.WithError(err).Error("failed to write illegal-content audit record")
	}

	if err := e.alerts.NotifyCritical(ctx, alert.Event{
		Type:      alert.EventIllegalContent,
		VideoID:   video.ID,
		CreatorID: video.CreatorID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		e.log.WithError(err).Error("failed to dispatch critical alert")
	}

	return nil
}

// Approve is the manual override path. Valid only while the video is
// PENDING; always audited.
func (e *Engine) Approve(ctx context.Context, videoID, adminID string) error {
	err := e.videos.SetModeration(ctx, videoID, models.ModerationPending, map[string]interface{}{
		"moderation_status": models.ModerationApproved,
	})
	if err != nil {
		return err
	}
	return e.audit.Record(ctx, models.AuditVideoApproved, "Video", videoID, adminID, nil)
}

// Reject is the manual override path. Valid only while the video is
// PENDING; forces the video out of circulation and is always audited.
func (e *Engine) Reject(ctx context.Context, videoID, adminID, reason string) error {
	err := e.videos.SetModeration(ctx, videoID, models.ModerationPending, map[string]interface{}{
		"moderation_status": models.ModerationRejected,
		"status":            models.VideoFailed,
	})
	if err != nil {
		return err
	}
	return e.audit.Record(ctx, models.AuditVideoRejected, "Video", videoID, adminID, map[string]interface{}{
		"reason": reason,
	})
}

// PendingQueue lists videos waiting for human review.
func (e *Engine) PendingQueue(ctx context.Context, limit int) ([]models.Video, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return e.videos.ListPendingModeration(ctx, limit)
}

// SetPollPolicy overrides the poll interval and budget. Mainly for tests.
func (e *Engine) SetPollPolicy(interval time.Duration, maxAttempts int) {
	e.pollInterval = interval
	e.maxAttempts = maxAttempts
}
