package handler

import (
	"net/http"
	"time"

	"bizledger/internal/model"
	"bizledger/pkg/logger"
	"bizledger/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Register handles account creation. When the new account joins an existing
// business a user_joined notification is broadcast to that business.
func (h *Handler) Register(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		BusinessID *uint  `json:"business_id,omitempty"`
		Role       string `json:"role,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	role := req.Role
	if role == "" {
		role = model.RoleStaff
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	user := model.User{
		Email:      req.Email,
		Password:   string(hashed),
		BusinessID: req.BusinessID,
		Role:       role,
		Active:     true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		log.Error("Failed to create user", zap.String("email", req.Email), zap.Error(err))
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}

	if user.BusinessID != nil {
		if _, err := h.notifier.RecordNotification(c.Request().Context(), *user.BusinessID,
			user.Email+" joined the business", model.NotifyUserJoined,
			map[string]interface{}{"user_id": user.ID, "email": user.Email}, nil); err != nil {
			log.Error("Failed to record join notification", zap.Error(err))
		}
	}

	log.Info("User registered", zap.Uint("user_id", user.ID), zap.String("email", user.Email))
	return c.JSON(http.StatusCreated, user)
}

// Login verifies credentials and issues a JWT carrying the user's business
// and role.
func (h *Handler) Login(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var user model.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		prometheus.RecordAuthError("login_failure")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		prometheus.RecordAuthError("login_failure")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if !user.Active {
		prometheus.RecordAuthError("inactive_user")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account deactivated"})
	}

	token, err := h.jwt.GenerateToken(user.Email, user.ID, user.BusinessID, user.Role, user.Superuser)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	log.Info("User logged in", zap.Uint("user_id", user.ID))
	return c.JSON(http.StatusOK, echo.Map{"token": token, "user": user})
}
