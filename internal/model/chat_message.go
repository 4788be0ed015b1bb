package model

import "time"

// ChatMessage is a business-wide chat message. One room per business,
// messages are append-only and permanent.
type ChatMessage struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	BusinessID uint      `json:"business" gorm:"index;not null"`
	SenderID   uint      `json:"sender_id" gorm:"index;not null"`
	Content    string    `json:"content" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
}
