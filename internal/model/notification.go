package model

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types.
const (
	NotifyUserInvited    = "user_invited"
	NotifyUserJoined     = "user_joined"
	NotifyFinanceCreated = "finance_created"
	NotifyFinanceUpdated = "finance_updated"
	NotifyAnnouncement   = "announcement"
	NotifyActivity       = "activity"
	NotifyChatMessage    = "chat_message"
)

// Notification is a business-scoped event. A nil recipient means a broadcast
// to the whole business. Rows are immutable after creation except IsRead,
// and are never deleted automatically.
type Notification struct {
	ID               uint           `json:"id" gorm:"primaryKey"`
	BusinessID       uint           `json:"business" gorm:"index;not null"`
	RecipientID      *uint          `json:"recipient" gorm:"index"`
	NotificationType string         `json:"notification_type" gorm:"type:varchar(50);default:'announcement'"`
	Verb             string         `json:"verb" gorm:"type:varchar(255)"`
	Data             datatypes.JSON `json:"data"`
	IsRead           bool           `json:"is_read" gorm:"default:false"`
	CreatedAt        time.Time      `json:"created_at"`
}
