package notifier

import (
	"encoding/json"
	"time"

	"bizledger/internal/model"
)

// ActorView is the compact user representation embedded in pushed events.
type ActorView struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// NotificationView is the wire representation of a notification.
type NotificationView struct {
	ID               uint        `json:"id"`
	Business         uint        `json:"business"`
	Recipient        *uint       `json:"recipient"`
	NotificationType string      `json:"notification_type"`
	Verb             string      `json:"verb"`
	Data             interface{} `json:"data"`
	IsRead           bool        `json:"is_read"`
	CreatedAt        string      `json:"created_at"`
}

// ActivityView is the wire representation of an audit-log entry.
type ActivityView struct {
	ID         uint        `json:"id"`
	Business   uint        `json:"business"`
	Actor      *ActorView  `json:"actor"`
	ActionType string      `json:"action_type"`
	ModelName  string      `json:"model_name"`
	ObjectID   string      `json:"object_id"`
	Before     interface{} `json:"before"`
	After      interface{} `json:"after"`
	Timestamp  string      `json:"timestamp"`
}

// ChatMessageView is the wire representation of a chat message.
type ChatMessageView struct {
	ID        uint      `json:"id"`
	Business  uint      `json:"business"`
	Sender    ActorView `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt string    `json:"created_at"`
}

func actorView(u *model.User) *ActorView {
	if u == nil {
		return nil
	}
	return &ActorView{ID: u.ID, Email: u.Email, Role: u.Role}
}

func isoTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func jsonValue(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// NewNotificationView builds the wire view for a persisted notification.
func NewNotificationView(n *model.Notification) NotificationView {
	return NotificationView{
		ID:               n.ID,
		Business:         n.BusinessID,
		Recipient:        n.RecipientID,
		NotificationType: n.NotificationType,
		Verb:             n.Verb,
		Data:             jsonValue(n.Data),
		IsRead:           n.IsRead,
		CreatedAt:        isoTime(n.CreatedAt),
	}
}

// NewActivityView builds the wire view for a persisted activity entry.
func NewActivityView(a *model.Activity, actor *model.User) ActivityView {
	return ActivityView{
		ID:         a.ID,
		Business:   a.BusinessID,
		Actor:      actorView(actor),
		ActionType: a.ActionType,
		ModelName:  a.ModelName,
		ObjectID:   a.ObjectID,
		Before:     jsonValue(a.Before),
		After:      jsonValue(a.After),
		Timestamp:  isoTime(a.Timestamp),
	}
}

// NewChatMessageView builds the wire view for a persisted chat message.
func NewChatMessageView(m *model.ChatMessage, sender *model.User) ChatMessageView {
	view := ChatMessageView{
		ID:        m.ID,
		Business:  m.BusinessID,
		Content:   m.Content,
		CreatedAt: isoTime(m.CreatedAt),
	}
	if sender != nil {
		view.Sender = *actorView(sender)
	}
	return view
}
