package models

import (
	"time"
)

// VideoStatus is the processing state of a video. It is owned by the
// lifecycle orchestrator; nothing else writes it.
type VideoStatus string

const (
	VideoProcessing VideoStatus = "PROCESSING"
	VideoReady      VideoStatus = "READY"
	VideoFailed     VideoStatus = "FAILED"
)

// ModerationStatus is the policy state of a video, owned by the moderation
// engine and the admin override path.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "PENDING"
	ModerationApproved ModerationStatus = "APPROVED"
	ModerationRejected ModerationStatus = "REJECTED"
)

// Visibility is chosen by the creator at upload time.
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPremium Visibility = "PREMIUM"
	VisibilityPrivate Visibility = "PRIVATE"
)

type Video struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	CreatorID string `gorm:"not null;index;size:36" json:"creator_id"`

	Title       string     `gorm:"size:255" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Visibility  Visibility `gorm:"size:16;default:'PUBLIC'" json:"visibility"`

	Status           VideoStatus      `gorm:"size:16;default:'PROCESSING';index" json:"status"`
	ModerationStatus ModerationStatus `gorm:"size:16;default:'PENDING';index" json:"moderation_status"`

	// Blob references. OriginalKey is set once at upload-request time; the
	// derived keys are populated only by a successful transcode.
	OriginalKey  string `gorm:"size:512" json:"-"`
	ManifestKey  string `gorm:"size:512" json:"manifest_key,omitempty"`
	ThumbnailKey string `gorm:"size:512" json:"thumbnail_key,omitempty"`
	SpriteKey    string `gorm:"size:512" json:"sprite_key,omitempty"`

	DurationSeconds int `json:"duration_seconds"`

	// Moderation scan outcome, persisted alongside the decision.
	ModerationConfidence float64 `json:"-"`
	ModerationFlags      string  `gorm:"size:512" json:"-"`

	// Monotonic counters. Mutated only through atomic increments in the
	// cache layer plus the periodic flush; never read-modify-write.
	ViewCount int64 `gorm:"default:0" json:"view_count"`
	LikeCount int64 `gorm:"default:0" json:"like_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Video) TableName() string {
	return "videos"
}

// Servable reports whether playback is permitted at all. Every serving code
// path must check this before touching segment bytes.
func (v *Video) Servable() bool {
	return v.Status == VideoReady && v.ModerationStatus == ModerationApproved
}

// StreamPrefix is the object-store prefix that covers the manifest and every
// segment and sprite of this video, and nothing else.
func (v *Video) StreamPrefix() string {
	return "videos/" + v.ID + "/"
}

// View is a best-effort per-request view record, written alongside the
// atomic counter.
type View struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	VideoID  string    `gorm:"not null;index;size:36" json:"video_id"`
	ViewerID *string   `gorm:"size:36" json:"viewer_id,omitempty"`
	ViewedAt time.Time `json:"viewed_at"`
}

func (View) TableName() string {
	return "views"
}
