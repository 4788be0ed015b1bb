package model

import (
	"time"

	"gorm.io/gorm"
)

// Roles within a business, ordered from most to least privileged.
const (
	RoleOwner      = "owner"
	RoleManager    = "manager"
	RoleAccountant = "accountant"
	RoleStaff      = "staff"
)

var roleRank = map[string]int{
	RoleOwner:      4,
	RoleManager:    3,
	RoleAccountant: 2,
	RoleStaff:      1,
}

// User represents an account. A user belongs to exactly one business, except
// superusers which have no business and may act across tenants.
type User struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	Email      string         `json:"email" gorm:"type:varchar(100);uniqueIndex"`
	Password   string         `json:"-" gorm:"type:varchar(255)"`
	BusinessID *uint          `json:"business_id,omitempty" gorm:"index"`
	Role       string         `json:"role" gorm:"type:varchar(20);not null;default:'staff'"`
	Active     bool           `json:"active" gorm:"default:true"`
	Superuser  bool           `json:"superuser" gorm:"default:false"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

// RoleAtLeast reports whether the user's role ranks at or above the given role.
func (u *User) RoleAtLeast(role string) bool {
	return roleRank[u.Role] >= roleRank[role]
}

// MemberOf reports whether the user belongs to the given business.
func (u *User) MemberOf(businessID uint) bool {
	return u.BusinessID != nil && *u.BusinessID == businessID
}
