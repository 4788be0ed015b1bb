package notifier

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"bizledger/internal/hub"
	"bizledger/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type captureSubscriber struct {
	mu  sync.Mutex
	got [][]byte
}

func (c *captureSubscriber) Enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, payload)
	return true
}

func (c *captureSubscriber) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.got))
	copy(out, c.got)
	return out
}

func newTestDB(t *testing.T, models ...interface{}) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

func allModels() []interface{} {
	return []interface{}{
		&model.Business{},
		&model.User{},
		&model.Notification{},
		&model.Activity{},
		&model.ChatMessage{},
	}
}

func TestBroadcastNotificationGoesToBusinessGroupOnly(t *testing.T) {
	db := newTestDB(t, allModels()...)
	h := hub.New()
	n := New(db, h)

	businessSub := &captureSubscriber{}
	userSub := &captureSubscriber{}
	h.Subscribe(hub.BusinessNotifications(3), businessSub)
	h.Subscribe(hub.UserNotifications(1), userSub)

	notification, err := n.RecordNotification(context.Background(), 3, "quarter closed", model.NotifyAnnouncement,
		map[string]interface{}{"quarter": 2}, nil)
	if err != nil {
		t.Fatalf("RecordNotification failed: %v", err)
	}
	if notification.ID == 0 {
		t.Error("Expected notification to be persisted with an ID")
	}

	got := businessSub.received()
	if len(got) != 1 {
		t.Fatalf("Expected 1 delivery to business group, got %d", len(got))
	}
	if len(userSub.received()) != 0 {
		t.Error("Expected no delivery to user groups for a broadcast notification")
	}

	var envelope struct {
		Type         string           `json:"type"`
		Notification NotificationView `json:"notification"`
	}
	if err := json.Unmarshal(got[0], &envelope); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	if envelope.Type != "notification" {
		t.Errorf("Expected envelope type notification, got %s", envelope.Type)
	}
	if envelope.Notification.Business != 3 {
		t.Errorf("Expected business 3, got %d", envelope.Notification.Business)
	}
	if envelope.Notification.Recipient != nil {
		t.Errorf("Expected nil recipient, got %v", envelope.Notification.Recipient)
	}
	if envelope.Notification.Verb != "quarter closed" {
		t.Errorf("Expected verb, got %s", envelope.Notification.Verb)
	}
}

func TestTargetedNotificationGoesToRecipientGroupOnly(t *testing.T) {
	db := newTestDB(t, allModels()...)
	h := hub.New()
	n := New(db, h)

	recipient := &model.User{Email: "staff@biz.test", Role: model.RoleStaff, Active: true}
	if err := db.Create(recipient).Error; err != nil {
		t.Fatalf("Failed to create recipient: %v", err)
	}

	businessSub := &captureSubscriber{}
	recipientSub := &captureSubscriber{}
	h.Subscribe(hub.BusinessNotifications(3), businessSub)
	h.Subscribe(hub.UserNotifications(recipient.ID), recipientSub)

	if _, err := n.RecordNotification(context.Background(), 3, "you were invited", model.NotifyUserInvited, nil, recipient); err != nil {
		t.Fatalf("RecordNotification failed: %v", err)
	}

	if len(recipientSub.received()) != 1 {
		t.Error("Expected delivery to the recipient's private group")
	}
	if len(businessSub.received()) != 0 {
		t.Error("Expected no delivery to the business broadcast group")
	}
}

func TestRecordActivityPublishesAfterPersist(t *testing.T) {
	db := newTestDB(t, allModels()...)
	h := hub.New()
	n := New(db, h)

	actor := &model.User{Email: "owner@biz.test", Role: model.RoleOwner, Active: true}
	if err := db.Create(actor).Error; err != nil {
		t.Fatalf("Failed to create actor: %v", err)
	}

	sub := &captureSubscriber{}
	h.Subscribe(hub.BusinessActivity(3), sub)

	activity, err := n.RecordActivity(context.Background(), 3, actor, model.ActionUpdate, "Expense", "12",
		map[string]interface{}{"amount": 10}, map[string]interface{}{"amount": 12.5})
	if err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	if activity.ID == 0 {
		t.Error("Expected activity to be persisted with an ID")
	}

	got := sub.received()
	if len(got) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(got))
	}

	var envelope struct {
		Type     string       `json:"type"`
		Activity ActivityView `json:"activity"`
	}
	if err := json.Unmarshal(got[0], &envelope); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	if envelope.Type != "activity" {
		t.Errorf("Expected envelope type activity, got %s", envelope.Type)
	}
	if envelope.Activity.Actor == nil || envelope.Activity.Actor.Email != "owner@biz.test" {
		t.Errorf("Expected actor view, got %v", envelope.Activity.Actor)
	}
	after, ok := envelope.Activity.After.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected after snapshot map, got %T", envelope.Activity.After)
	}
	if after["amount"] != 12.5 {
		t.Errorf("Expected normalized amount 12.5, got %v", after["amount"])
	}
}

func TestActivityPersistenceFailureSuppressesPublish(t *testing.T) {
	// Activity table deliberately not migrated: the insert fails
	db := newTestDB(t, &model.Notification{}, &model.ChatMessage{})
	h := hub.New()
	n := New(db, h)

	sub := &captureSubscriber{}
	h.Subscribe(hub.BusinessActivity(3), sub)

	if _, err := n.RecordActivity(context.Background(), 3, nil, model.ActionCreate, "Expense", "1", nil, nil); err == nil {
		t.Fatal("Expected persistence error")
	}
	if len(sub.received()) != 0 {
		t.Error("Expected no publish after failed persistence")
	}
}

func TestPostChatMessageTrimsAndBroadcasts(t *testing.T) {
	db := newTestDB(t, allModels()...)
	h := hub.New()
	n := New(db, h)

	sender := &model.User{Email: "u@biz.test", Role: model.RoleStaff, Active: true}
	if err := db.Create(sender).Error; err != nil {
		t.Fatalf("Failed to create sender: %v", err)
	}

	sub := &captureSubscriber{}
	h.Subscribe(hub.BusinessChat(7), sub)

	message, err := n.PostChatMessage(context.Background(), 7, sender, "  hi  ")
	if err != nil {
		t.Fatalf("PostChatMessage failed: %v", err)
	}
	if message.Content != "hi" {
		t.Errorf("Expected trimmed content \"hi\", got %q", message.Content)
	}

	var stored model.ChatMessage
	if err := db.First(&stored, message.ID).Error; err != nil {
		t.Fatalf("Failed to load stored message: %v", err)
	}
	if stored.Content != "hi" {
		t.Errorf("Expected stored content \"hi\", got %q", stored.Content)
	}

	got := sub.received()
	if len(got) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(got))
	}
	var envelope struct {
		Type    string          `json:"type"`
		Message ChatMessageView `json:"message"`
	}
	if err := json.Unmarshal(got[0], &envelope); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	if envelope.Type != "chat_message" {
		t.Errorf("Expected envelope type chat_message, got %s", envelope.Type)
	}
	if envelope.Message.Content != "hi" {
		t.Errorf("Expected content \"hi\", got %q", envelope.Message.Content)
	}
	if envelope.Message.Sender.Email != "u@biz.test" {
		t.Errorf("Expected sender view, got %v", envelope.Message.Sender)
	}
}

func TestPostChatMessageIgnoresEmptyContent(t *testing.T) {
	db := newTestDB(t, allModels()...)
	h := hub.New()
	n := New(db, h)

	sender := &model.User{Email: "u@biz.test", Role: model.RoleStaff, Active: true}
	if err := db.Create(sender).Error; err != nil {
		t.Fatalf("Failed to create sender: %v", err)
	}

	sub := &captureSubscriber{}
	h.Subscribe(hub.BusinessChat(7), sub)

	message, err := n.PostChatMessage(context.Background(), 7, sender, "   ")
	if err != nil {
		t.Fatalf("PostChatMessage failed: %v", err)
	}
	if message != nil {
		t.Errorf("Expected no message for blank content, got %v", message)
	}
	if len(sub.received()) != 0 {
		t.Error("Expected no broadcast for blank content")
	}

	var count int64
	db.Model(&model.ChatMessage{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected no persisted messages, got %d", count)
	}
}

func TestNormalizeCollapsesNumericTypes(t *testing.T) {
	type snapshot struct {
		Amount float32 `json:"amount"`
		Count  int     `json:"count"`
	}
	normalized, err := Normalize(snapshot{Amount: 1.5, Count: 2})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	m, ok := normalized.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected map, got %T", normalized)
	}
	if m["amount"] != 1.5 || m["count"] != 2.0 {
		t.Errorf("Expected plain float64 values, got %v", m)
	}
}

func TestSnapshotsEqualAfterNormalization(t *testing.T) {
	a := map[string]interface{}{"amount": 1, "note": "x"}
	b := map[string]interface{}{"amount": 1.0, "note": "x"}
	if !SnapshotsEqual(a, b) {
		t.Error("Expected int 1 and float 1.0 to compare equal after normalization")
	}

	c := map[string]interface{}{"amount": 2, "note": "x"}
	if SnapshotsEqual(a, c) {
		t.Error("Expected differing amounts to compare unequal")
	}

	if !SnapshotsEqual(nil, nil) {
		t.Error("Expected nil snapshots to compare equal")
	}
}
