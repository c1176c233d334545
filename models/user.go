package models

import (
	"time"
)

// Role gates what a user may do. Creators upload; a user demoted to guest
// loses that ability.
type Role string

const (
	RoleGuest   Role = "GUEST"
	RoleViewer  Role = "VIEWER"
	RoleCreator Role = "CREATOR"
	RoleAdmin   Role = "ADMIN"
)

// VerificationStatus is the creator-verification outcome for a user.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationApproved VerificationStatus = "APPROVED"
	VerificationRejected VerificationStatus = "REJECTED"
)

type User struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Username string `gorm:"uniqueIndex" json:"username"`
	Role     Role   `gorm:"size:16;default:'VIEWER'" json:"role"`

	// Creator verification. Only APPROVED creators may request upload slots.
	VerificationStatus VerificationStatus `gorm:"size:16;default:'PENDING'" json:"verification_status"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// ApprovedCreator reports whether the user may request an upload slot.
func (u *User) ApprovedCreator() bool {
	return u.IsActive && u.Role == RoleCreator && u.VerificationStatus == VerificationApproved
}
