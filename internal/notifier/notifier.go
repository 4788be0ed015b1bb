package notifier

import (
	"context"
	"encoding/json"
	"strings"

	"bizledger/internal/hub"
	"bizledger/internal/model"
	"bizledger/prometheus"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier durably records notifications, activities and chat messages and
// broadcasts them to the matching groups after commit. Persistence always
// completes before publish: a client reading the REST history right after
// receiving a push sees the record. If persistence fails nothing is
// published and the error propagates to the caller.
type Notifier struct {
	db  *gorm.DB
	hub *hub.Hub
}

// New creates a Notifier over the given database and broadcast hub.
func New(db *gorm.DB, h *hub.Hub) *Notifier {
	return &Notifier{db: db, hub: h}
}

type notificationEnvelope struct {
	Type         string           `json:"type"`
	Notification NotificationView `json:"notification"`
}

type activityEnvelope struct {
	Type     string       `json:"type"`
	Activity ActivityView `json:"activity"`
}

type chatEnvelope struct {
	Type    string          `json:"type"`
	Message ChatMessageView `json:"message"`
}

// RecordNotification persists a notification and broadcasts it. A nil
// recipient is a business-wide broadcast; a set recipient is delivered to
// that user's private group only.
func (n *Notifier) RecordNotification(ctx context.Context, businessID uint, verb, notificationType string, data map[string]interface{}, recipient *model.User) (*model.Notification, error) {
	raw, err := marshalNormalized(data)
	if err != nil {
		return nil, err
	}

	notification := &model.Notification{
		BusinessID:       businessID,
		NotificationType: notificationType,
		Verb:             verb,
		Data:             raw,
	}
	if recipient != nil {
		notification.RecipientID = &recipient.ID
	}

	if err := n.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, err
	}

	payload, err := json.Marshal(notificationEnvelope{
		Type:         "notification",
		Notification: NewNotificationView(notification),
	})
	if err != nil {
		zap.L().Error("failed to encode notification envelope", zap.Error(err), zap.Uint("notification_id", notification.ID))
		return notification, nil
	}

	if recipient != nil {
		n.hub.Publish(hub.UserNotifications(recipient.ID), payload)
	} else {
		n.hub.Publish(hub.BusinessNotifications(businessID), payload)
	}
	prometheus.RecordBroadcast("notification")

	return notification, nil
}

// RecordActivity persists an audit-log entry and broadcasts it to the
// business activity group. The actor may be nil.
func (n *Notifier) RecordActivity(ctx context.Context, businessID uint, actor *model.User, actionType, modelName, objectID string, before, after interface{}) (*model.Activity, error) {
	rawBefore, err := marshalNormalized(before)
	if err != nil {
		return nil, err
	}
	rawAfter, err := marshalNormalized(after)
	if err != nil {
		return nil, err
	}

	activity := &model.Activity{
		BusinessID: businessID,
		ActionType: actionType,
		ModelName:  modelName,
		ObjectID:   objectID,
		Before:     rawBefore,
		After:      rawAfter,
	}
	if actor != nil {
		activity.ActorID = &actor.ID
	}

	if err := n.db.WithContext(ctx).Create(activity).Error; err != nil {
		return nil, err
	}

	payload, err := json.Marshal(activityEnvelope{
		Type:     "activity",
		Activity: NewActivityView(activity, actor),
	})
	if err != nil {
		zap.L().Error("failed to encode activity envelope", zap.Error(err), zap.Uint("activity_id", activity.ID))
		return activity, nil
	}

	n.hub.Publish(hub.BusinessActivity(businessID), payload)
	prometheus.RecordBroadcast("activity")

	return activity, nil
}

// PostChatMessage trims, persists and broadcasts a chat message to the
// business chat group. Content that is empty after trimming is ignored and
// no message is created.
func (n *Notifier) PostChatMessage(ctx context.Context, businessID uint, sender *model.User, content string) (*model.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}

	message := &model.ChatMessage{
		BusinessID: businessID,
		SenderID:   sender.ID,
		Content:    content,
	}
	if err := n.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, err
	}

	payload, err := json.Marshal(chatEnvelope{
		Type:    "chat_message",
		Message: NewChatMessageView(message, sender),
	})
	if err != nil {
		zap.L().Error("failed to encode chat envelope", zap.Error(err), zap.Uint("message_id", message.ID))
		return message, nil
	}

	n.hub.Publish(hub.BusinessChat(businessID), payload)
	prometheus.RecordBroadcast("chat")

	return message, nil
}
