package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/sessions"
	"github.com/sashimi3433/Attendance-Check/pkg/response"
	"github.com/sashimi3433/Attendance-Check/pkg/utils"
)

// Gin context keys set by the JWT middleware.
const (
	ContextUserID    = "user_id"
	ContextUserRole  = "user_role"
	ContextSessionID = "session_id"
)

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token     string            `json:"token"`
	User      models.UserPublic `json:"user"`
	ExpiresAt string            `json:"session_expires_at"`
}

// CreateUserRequest is the body for POST /admin/users.
type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	FullName string `json:"full_name"`
	Role     string `json:"role" binding:"required,oneof=student teacher kiosk admin"`
	Grade    string `json:"grade"`
	Major    string `json:"major"`
}

// CreateKioskRequest is the body for POST /admin/kiosks.
type CreateKioskRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Name     string `json:"name" binding:"required"`
	Location string `json:"location" binding:"required"`
}

// IPSource resolves the best-effort client address of a request.
type IPSource interface {
	ClientIP(r *http.Request) string
}

// Handler handles auth HTTP endpoints and admin provisioning.
type Handler struct {
	repo   *Repository
	jwt    *JWTService
	guard  *sessions.Guard
	ips    IPSource
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo *Repository, jwt *JWTService, guard *sessions.Guard, ips IPSource, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, guard: guard, ips: ips, logger: logger}
}

// Login handles POST /auth/login. A successful login ends any other session of the user.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	user, err := h.repo.GetByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			h.logger.Error("login lookup failed", zap.Error(err))
		}
		response.Unauthorized(c, "invalid username or password")
		return
	}
	if !user.IsActive || !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid username or password")
		return
	}

	sess, err := h.guard.Login(c.Request.Context(), user, h.ips.ClientIP(c.Request), c.Request.UserAgent())
	if err != nil {
		h.logger.Error("create session failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		response.Internal(c, "failed to create session")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Username, string(user.Role), sess.ID)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	h.logger.Info("user logged in", zap.String("user_id", user.ID.String()), zap.String("role", string(user.Role)))
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic(), ExpiresAt: sess.ExpiresAt.Format(time.RFC3339)})
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	userID := c.MustGet(ContextUserID).(uuid.UUID)
	if err := h.guard.OnLogout(c.Request.Context(), userID); err != nil {
		response.Internal(c, "failed to log out")
		return
	}
	response.OK(c, gin.H{"logged_out": true})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	userID := c.MustGet(ContextUserID).(uuid.UUID)
	user, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err, "failed to load user")
		return
	}
	response.OK(c, user.ToPublic())
}

// CreateUser handles POST /admin/users.
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	role, ok := models.ParseRole(req.Role)
	if !ok {
		response.BadRequest(c, "invalid role")
		return
	}
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}
	user, err := h.repo.Create(c.Request.Context(), CreateUserParams{
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     req.FullName,
		Role:         role,
		Grade:        req.Grade,
		Major:        req.Major,
	})
	if err != nil {
		response.Error(c, err, "failed to create user")
		return
	}
	response.Created(c, user.ToPublic())
}

// CreateKiosk handles POST /admin/kiosks.
func (h *Handler) CreateKiosk(c *gin.Context) {
	var req CreateKioskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}
	user, kiosk, err := h.repo.CreateKiosk(c.Request.Context(), CreateUserParams{
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     req.Name,
	}, req.Name, req.Location)
	if err != nil {
		response.Error(c, err, "failed to create kiosk")
		return
	}
	response.Created(c, gin.H{"user": user.ToPublic(), "kiosk": kiosk})
}

// ForceLogout handles POST /admin/users/:id/logout.
func (h *Handler) ForceLogout(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	if err := h.guard.ForceLogout(c.Request.Context(), id); err != nil {
		response.Error(c, err, "failed to log out user")
		return
	}
	response.OK(c, gin.H{"logged_out": true})
}
