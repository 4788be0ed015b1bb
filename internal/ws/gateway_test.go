package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bizledger/internal/hub"
	"bizledger/internal/model"
	"bizledger/internal/notifier"
	"bizledger/internal/presence"
	"bizledger/pkg/jwtutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	db    *gorm.DB
	hub   *hub.Hub
	mr    *miniredis.Miniredis
	jwt   *jwtutil.JWTUtil
	srv   *httptest.Server
	wsURL string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&model.Business{}, &model.User{}, &model.Notification{}, &model.Activity{}, &model.ChatMessage{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := hub.New()
	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "test-signing-key", ExpirationHours: 1})
	gateway := NewGateway(db, h, presence.NewStore(rdb), notifier.New(db, h), jwt)

	e := echo.New()
	gateway.Register(e)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &testEnv{
		db:    db,
		hub:   h,
		mr:    mr,
		jwt:   jwt,
		srv:   srv,
		wsURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (env *testEnv) createUser(t *testing.T, email string, businessID *uint, role string, superuser bool) *model.User {
	t.Helper()
	user := &model.User{Email: email, BusinessID: businessID, Role: role, Active: true, Superuser: superuser}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}
	return user
}

func (env *testEnv) token(t *testing.T, user *model.User) string {
	t.Helper()
	token, err := env.jwt.GenerateToken(user.Email, user.ID, user.BusinessID, user.Role, user.Superuser)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}

func (env *testEnv) dial(t *testing.T, path, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := env.wsURL + path
	if token != "" {
		url += "?token=" + token
	}
	return websocket.DefaultDialer.Dial(url, nil)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		t.Fatalf("Failed to decode envelope %s: %v", payload, err)
	}
	return envelope
}

func uintPtr(v uint) *uint { return &v }

func TestMissingTokenIsRejectedWithoutSideEffects(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "u@biz.test", uintPtr(7), model.RoleStaff, false)

	_, resp, err := env.dial(t, "/ws/business/7/chat", "")
	if err == nil {
		t.Fatal("Expected handshake to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %v", resp)
	}

	if size := env.hub.GroupSize(hub.BusinessChat(7)); size != 0 {
		t.Errorf("Expected no subscriptions, got group size %d", size)
	}
	if env.mr.Exists(fmt.Sprintf("presence:7:%d", user.ID)) {
		t.Error("Expected no presence marker for a rejected connection")
	}
}

func TestInvalidTokenIsRejected(t *testing.T) {
	env := newTestEnv(t)

	_, resp, err := env.dial(t, "/ws/notifications", "not-a-token")
	if err == nil {
		t.Fatal("Expected handshake to fail with a bad token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %v", resp)
	}
}

func TestBusinessMismatchIsRejected(t *testing.T) {
	env := newTestEnv(t)
	manager := env.createUser(t, "m@biz.test", uintPtr(7), model.RoleManager, false)

	_, resp, err := env.dial(t, "/ws/business/9/chat", env.token(t, manager))
	if err == nil {
		t.Fatal("Expected handshake to fail for a foreign business")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %v", resp)
	}

	if size := env.hub.GroupSize(hub.BusinessChat(9)); size != 0 {
		t.Errorf("Expected no subscriptions, got group size %d", size)
	}
	var count int64
	env.db.Model(&model.ChatMessage{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected no chat messages, got %d", count)
	}
}

func TestSuperuserMayJoinAnyBusinessChannel(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "admin@root.test", nil, model.RoleOwner, true)

	conn, _, err := env.dial(t, "/ws/business/7/activity", env.token(t, admin))
	if err != nil {
		t.Fatalf("Expected superuser handshake to succeed: %v", err)
	}
	defer conn.Close()

	waitFor(t, "activity subscription", func() bool {
		return env.hub.GroupSize(hub.BusinessActivity(7)) == 1
	})
}

func TestChatMessageIsTrimmedPersistedAndBroadcast(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice@biz.test", uintPtr(7), model.RoleStaff, false)
	bob := env.createUser(t, "bob@biz.test", uintPtr(7), model.RoleStaff, false)

	aliceConn, _, err := env.dial(t, "/ws/business/7/chat", env.token(t, alice))
	if err != nil {
		t.Fatalf("Alice failed to connect: %v", err)
	}
	defer aliceConn.Close()
	bobConn, _, err := env.dial(t, "/ws/business/7/chat", env.token(t, bob))
	if err != nil {
		t.Fatalf("Bob failed to connect: %v", err)
	}
	defer bobConn.Close()

	waitFor(t, "both chat subscriptions", func() bool {
		return env.hub.GroupSize(hub.BusinessChat(7)) == 2
	})

	if err := aliceConn.WriteJSON(map[string]string{"type": "message", "content": "  hi  "}); err != nil {
		t.Fatalf("Failed to send chat message: %v", err)
	}

	envelope := readEnvelope(t, bobConn)
	if string(envelope["type"]) != `"chat_message"` {
		t.Errorf("Expected chat_message envelope, got %s", envelope["type"])
	}
	var view notifier.ChatMessageView
	if err := json.Unmarshal(envelope["message"], &view); err != nil {
		t.Fatalf("Failed to decode message view: %v", err)
	}
	if view.Content != "hi" {
		t.Errorf("Expected trimmed content \"hi\", got %q", view.Content)
	}
	if view.Sender.ID != alice.ID {
		t.Errorf("Expected sender %d, got %d", alice.ID, view.Sender.ID)
	}

	var stored model.ChatMessage
	if err := env.db.First(&stored).Error; err != nil {
		t.Fatalf("Expected a persisted chat message: %v", err)
	}
	if stored.Content != "hi" || stored.BusinessID != 7 {
		t.Errorf("Unexpected stored message: %+v", stored)
	}
}

func TestBlankChatMessageIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice@biz.test", uintPtr(7), model.RoleStaff, false)

	conn, _, err := env.dial(t, "/ws/business/7/chat", env.token(t, alice))
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	waitFor(t, "chat subscription", func() bool {
		return env.hub.GroupSize(hub.BusinessChat(7)) == 1
	})

	if err := conn.WriteJSON(map[string]string{"type": "message", "content": "   "}); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}
	// Malformed frames are dropped silently too; the connection stays open
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("Failed to send malformed frame: %v", err)
	}
	if err := conn.WriteJSON(map[string]string{"type": "message", "content": "real"}); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}

	waitFor(t, "the real message to persist", func() bool {
		var count int64
		env.db.Model(&model.ChatMessage{}).Count(&count)
		return count == 1
	})
	var stored model.ChatMessage
	env.db.First(&stored)
	if stored.Content != "real" {
		t.Errorf("Expected only the real message, got %q", stored.Content)
	}
}

func TestChatPresenceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice@biz.test", uintPtr(7), model.RoleStaff, false)
	presenceKey := fmt.Sprintf("presence:7:%d", alice.ID)

	conn, _, err := env.dial(t, "/ws/business/7/chat", env.token(t, alice))
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	waitFor(t, "presence marker", func() bool {
		return env.mr.Exists(presenceKey)
	})

	conn.Close()

	waitFor(t, "presence marker removal", func() bool {
		return !env.mr.Exists(presenceKey)
	})
	waitFor(t, "subscription teardown", func() bool {
		return env.hub.GroupSize(hub.BusinessChat(7)) == 0
	})
}

func TestNotificationChannelReceivesBusinessBroadcast(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice@biz.test", uintPtr(3), model.RoleStaff, false)
	recorder := notifier.New(env.db, env.hub)

	conn, _, err := env.dial(t, "/ws/notifications", env.token(t, alice))
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	waitFor(t, "notification subscriptions", func() bool {
		return env.hub.GroupSize(hub.BusinessNotifications(3)) == 1 &&
			env.hub.GroupSize(hub.UserNotifications(alice.ID)) == 1
	})

	if _, err := recorder.RecordNotification(context.Background(), 3, "books closed", model.NotifyAnnouncement, nil, nil); err != nil {
		t.Fatalf("RecordNotification failed: %v", err)
	}

	envelope := readEnvelope(t, conn)
	if string(envelope["type"]) != `"notification"` {
		t.Errorf("Expected notification envelope, got %s", envelope["type"])
	}
	var view notifier.NotificationView
	if err := json.Unmarshal(envelope["notification"], &view); err != nil {
		t.Fatalf("Failed to decode notification view: %v", err)
	}
	if view.Business != 3 || view.Verb != "books closed" {
		t.Errorf("Unexpected notification view: %+v", view)
	}
}

func TestActivityChannelReceivesAuditEvents(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice@biz.test", uintPtr(3), model.RoleAccountant, false)
	recorder := notifier.New(env.db, env.hub)

	conn, _, err := env.dial(t, "/ws/business/3/activity", env.token(t, alice))
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	waitFor(t, "activity subscription", func() bool {
		return env.hub.GroupSize(hub.BusinessActivity(3)) == 1
	})

	if _, err := recorder.RecordActivity(context.Background(), 3, alice, model.ActionCreate, "Expense", "8",
		nil, map[string]interface{}{"amount": 19.99}); err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}

	envelope := readEnvelope(t, conn)
	if string(envelope["type"]) != `"activity"` {
		t.Errorf("Expected activity envelope, got %s", envelope["type"])
	}
	var view notifier.ActivityView
	if err := json.Unmarshal(envelope["activity"], &view); err != nil {
		t.Fatalf("Failed to decode activity view: %v", err)
	}
	if view.ModelName != "Expense" || view.ObjectID != "8" {
		t.Errorf("Unexpected activity view: %+v", view)
	}
}
