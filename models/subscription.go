package models

import (
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
)

// Subscription records a viewer's paid access to one creator's premium
// content. Written by the payment collaborator; this core only reads it.
type Subscription struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	SubscriberID string             `gorm:"not null;index;size:36" json:"subscriber_id"`
	CreatorID    string             `gorm:"not null;index;size:36" json:"creator_id"`
	Status       SubscriptionStatus `gorm:"size:16;default:'ACTIVE'" json:"status"`

	// Payment-processor reference, e.g. a Stripe subscription id.
	Processor     string `gorm:"size:32" json:"processor"`
	TransactionID string `gorm:"size:255" json:"transaction_id"`

	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
