package video

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Gdheubs/Video-streaming-platform/models"
)

// Users is the slice of account data this core reads and the one write it
// performs: revoking creator privileges. Account CRUD itself lives with the
// external auth collaborator.
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

func (u *Users) ByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := u.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// IsApprovedCreator gates who may request an upload slot.
func (u *Users) IsApprovedCreator(ctx context.Context, userID string) (bool, error) {
	user, err := u.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.ApprovedCreator(), nil
}

// RevokeCreator demotes the user to GUEST, removing upload privileges.
// Satisfies the moderation engine's RoleStore.
func (u *Users) RevokeCreator(ctx context.Context, userID string) error {
	return u.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("role", models.RoleGuest).Error
}
