package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/auth"
	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/sessions"
	"github.com/sashimi3433/Attendance-Check/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = auth.ContextUserID
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = auth.ContextUserRole
	// ContextSessionID is the key for the login session id in gin context.
	ContextSessionID = auth.ContextSessionID
)

// SessionValidator confirms that a session id is the user's live session.
type SessionValidator interface {
	Validate(ctx context.Context, userID uuid.UUID, sessionID string) (*models.User, error)
}

// JWT returns a middleware that validates the JWT, rejects it unless its session is the user's
// live session, and sets user claims in context. The role in context is the stored role.
func JWT(jwtService *auth.JWTService, sessionsGuard SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		authenticate(c, jwtService, sessionsGuard, parts[1])
	}
}

// QueryJWT is JWT for clients that cannot set headers (WebSocket upgrades): the token is read
// from the token query parameter.
func QueryJWT(jwtService *auth.JWTService, sessionsGuard SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			response.Unauthorized(c, "missing token")
			c.Abort()
			return
		}
		authenticate(c, jwtService, sessionsGuard, token)
	}
}

func authenticate(c *gin.Context, jwtService *auth.JWTService, sessionsGuard SessionValidator, token string) {
	claims, err := jwtService.Validate(token)
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		c.Abort()
		return
	}
	user, err := sessionsGuard.Validate(c.Request.Context(), claims.UserID, claims.SessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionInvalid) {
			response.Unauthorized(c, "session is no longer active")
		} else {
			response.Internal(c, "failed to validate session")
		}
		c.Abort()
		return
	}
	c.Set(ContextUserID, user.ID)
	c.Set(ContextUserRole, string(user.Role))
	c.Set(ContextSessionID, claims.SessionID)
	c.Next()
}
