package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"bizledger/internal/hub"
	"bizledger/internal/model"
	"bizledger/internal/notifier"
	"bizledger/internal/presence"
	"bizledger/pkg/jwtutil"
	"bizledger/pkg/logger"
	"bizledger/prometheus"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Gateway accepts websocket connections, authenticates them, resolves group
// memberships and bridges inbound and group-delivered messages. Every
// failure before authorization rejects the connection with no subscriptions
// and no presence side effects (fail closed).
type Gateway struct {
	db       *gorm.DB
	hub      *hub.Hub
	presence *presence.Store
	notifier *notifier.Notifier
	jwt      *jwtutil.JWTUtil
	upgrader websocket.Upgrader
}

// NewGateway wires a Gateway from its collaborators.
func NewGateway(db *gorm.DB, h *hub.Hub, p *presence.Store, n *notifier.Notifier, jwt *jwtutil.JWTUtil) *Gateway {
	return &Gateway{
		db:       db,
		hub:      h,
		presence: p,
		notifier: n,
		jwt:      jwt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the websocket endpoints on the echo instance.
func (g *Gateway) Register(e *echo.Echo) {
	e.GET("/ws/notifications", g.Notifications)
	e.GET("/ws/business/:business_id/chat", g.Chat)
	e.GET("/ws/business/:business_id/activity", g.Activity)
}

// authenticate extracts the bearer credential (query parameter token
// preferred, else Authorization header) and resolves it to an active user.
func (g *Gateway) authenticate(c echo.Context) (*model.User, error) {
	token := c.QueryParam("token")
	if token == "" {
		authHeader := c.Request().Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		prometheus.RecordAuthError("missing_token")
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authorization token")
	}

	claims, err := g.jwt.ValidateToken(token)
	if err != nil {
		prometheus.RecordAuthError("invalid_token")
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}

	var user model.User
	if err := g.db.First(&user, claims.UserID).Error; err != nil {
		prometheus.RecordAuthError("unknown_user")
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	if !user.Active {
		prometheus.RecordAuthError("inactive_user")
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "account deactivated")
	}
	return &user, nil
}

// authorizeBusiness checks the path business id against the authenticated
// user. Superusers may join any business's channel; everyone else must
// belong to it. Mismatch rejects, never a silent scope downgrade.
func (g *Gateway) authorizeBusiness(c echo.Context, user *model.User) (uint, error) {
	id, err := strconv.ParseUint(c.Param("business_id"), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid business id")
	}
	businessID := uint(id)
	if !user.Superuser && !user.MemberOf(businessID) {
		prometheus.RecordAuthError("business_mismatch")
		return 0, echo.NewHTTPError(http.StatusForbidden, "not a member of this business")
	}
	return businessID, nil
}

// Notifications serves the per-user notification channel. The connection
// always joins the user's private group and additionally the business
// broadcast group when the user belongs to one.
func (g *Gateway) Notifications(c echo.Context) error {
	user, err := g.authenticate(c)
	if err != nil {
		return err
	}

	groups := []string{hub.UserNotifications(user.ID)}
	if user.BusinessID != nil {
		groups = append(groups, hub.BusinessNotifications(*user.BusinessID))
	}

	return g.serve(c, user, "notifications", groups, nil, nil)
}

// Chat serves the business chat channel. Inbound messages of type "message"
// are persisted and broadcast; the connection marks the user present for the
// business while open.
func (g *Gateway) Chat(c echo.Context) error {
	user, err := g.authenticate(c)
	if err != nil {
		return err
	}
	businessID, err := g.authorizeBusiness(c, user)
	if err != nil {
		return err
	}

	inbound := map[string]inboundHandler{
		"message": func(ctx context.Context, content string) {
			if _, err := g.notifier.PostChatMessage(ctx, businessID, user, content); err != nil {
				logger.FromContext(ctx).Error("failed to persist chat message",
					zap.Uint("business_id", businessID),
					zap.Uint("sender_id", user.ID),
					zap.Error(err))
			}
		},
	}

	return g.serve(c, user, "chat", []string{hub.BusinessChat(businessID)}, &businessID, inbound)
}

// Activity serves the business audit feed. Server-push only.
func (g *Gateway) Activity(c echo.Context) error {
	user, err := g.authenticate(c)
	if err != nil {
		return err
	}
	businessID, err := g.authorizeBusiness(c, user)
	if err != nil {
		return err
	}

	return g.serve(c, user, "activity", []string{hub.BusinessActivity(businessID)}, nil, nil)
}

// inboundHandler processes the content of one inbound application message.
type inboundHandler func(ctx context.Context, content string)

type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// serve upgrades the connection and runs it until either pump exits.
// presenceBusiness, when set, marks the user online for that business for
// the lifetime of the connection. Teardown is unconditional and idempotent:
// every joined group is left and the presence marker removed exactly once.
func (g *Gateway) serve(c echo.Context, user *model.User, channel string, groups []string, presenceBusiness *uint, inbound map[string]inboundHandler) error {
	log := logger.FromEcho(c).With(
		zap.String("channel", channel),
		zap.Uint("user_id", user.ID),
	)

	conn, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Error("websocket upgrade failed", zap.Error(err))
		return nil
	}

	cl := newClient(conn)
	for _, group := range groups {
		g.hub.Subscribe(group, cl)
	}
	if presenceBusiness != nil {
		if err := g.presence.MarkOnline(c.Request().Context(), user.ID, presenceBusiness); err != nil {
			// Presence is best-effort and never gates the connection.
			log.Warn("failed to mark user online", zap.Error(err))
		}
	}
	prometheus.WSConnected(channel)
	log.Info("websocket connected", zap.Strings("groups", groups))

	release := func() {
		cl.teardown.Do(func() {
			for _, group := range groups {
				g.hub.Unsubscribe(group, cl)
			}
			cl.closeSend()
			if presenceBusiness != nil {
				if err := g.presence.MarkOffline(context.Background(), user.ID, presenceBusiness); err != nil {
					log.Warn("failed to mark user offline", zap.Error(err))
				}
			}
			prometheus.WSDisconnected(channel)
			log.Info("websocket disconnected")
		})
	}
	defer release()

	go cl.writePump()

	ctx := logger.WithContext(c.Request().Context(), log)
	cl.readPump(func(payload []byte) {
		g.dispatch(ctx, payload, inbound)
	})
	return nil
}

// dispatch routes one inbound frame through the handler table keyed by the
// type discriminator. Malformed frames and unknown types are dropped
// silently; the connection stays open.
func (g *Gateway) dispatch(ctx context.Context, payload []byte, inbound map[string]inboundHandler) {
	if len(inbound) == 0 {
		return
	}
	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return
	}
	handle, ok := inbound[frame.Type]
	if !ok {
		return
	}
	handle(ctx, frame.Content)
}
