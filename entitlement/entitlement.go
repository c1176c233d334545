package entitlement

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/subscription"
	"gorm.io/gorm"

	"github.com/Gdheubs/Video-streaming-platform/models"
)

// Checker answers the single question this core asks the payment
// collaborator: does this viewer hold an active, unexpired subscription to
// this creator?
type Checker interface {
	IsEntitled(ctx context.Context, viewerID, creatorID string) (bool, error)
}

// DBChecker reads the subscriptions table maintained by the payment
// collaborator's webhooks.
type DBChecker struct {
	db *gorm.DB
}

func NewDBChecker(db *gorm.DB) *DBChecker {
	return &DBChecker{db: db}
}

func (c *DBChecker) IsEntitled(ctx context.Context, viewerID, creatorID string) (bool, error) {
	if viewerID == "" {
		return false, nil
	}

	var count int64
	err := c.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("subscriber_id = ? AND creator_id = ? AND status = ? AND expires_at > ?",
			viewerID, creatorID, models.SubscriptionActive, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// StripeChecker cross-checks the stored subscription reference against
// Stripe before trusting it. Used where webhook lag would otherwise let a
// cancelled subscription keep streaming.
type StripeChecker struct {
	db *gorm.DB
}

func NewStripeChecker(db *gorm.DB, apiKey string) *StripeChecker {
	stripe.Key = apiKey
	return &StripeChecker{db: db}
}

func (c *StripeChecker) IsEntitled(ctx context.Context, viewerID, creatorID string) (bool, error) {
	if viewerID == "" {
		return false, nil
	}

	var sub models.Subscription
	err := c.db.WithContext(ctx).
		Where("subscriber_id = ? AND creator_id = ? AND processor = ?", viewerID, creatorID, "STRIPE").
		Order("created_at desc").
		First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}
	if sub.TransactionID == "" {
		return false, nil
	}

	remote, err := subscription.Get(sub.TransactionID, nil)
	if err != nil {
		return false, err
	}
	if remote.Status != stripe.SubscriptionStatusActive && remote.Status != stripe.SubscriptionStatusTrialing {
		return false, nil
	}
	return time.Unix(remote.CurrentPeriodEnd, 0).After(time.Now()), nil
}
