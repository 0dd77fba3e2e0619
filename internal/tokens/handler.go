package tokens

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/middleware"
	"github.com/sashimi3433/Attendance-Check/pkg/response"
)

// IPSource resolves the best-effort client address of a request.
type IPSource interface {
	ClientIP(r *http.Request) string
}

// IssueResponse is the body returned by POST /tokens.
type IssueResponse struct {
	Token     string    `json:"token"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	IsUsed    bool      `json:"is_used"`
}

// GCRequest is the body for POST /admin/tokens/gc.
type GCRequest struct {
	OlderThanMinutes *int `json:"older_than_minutes"`
	DryRun           bool `json:"dry_run"`
}

// Handler handles token endpoints.
type Handler struct {
	svc *Service
	ips IPSource
}

// NewHandler creates a token handler.
func NewHandler(svc *Service, ips IPSource) *Handler {
	return &Handler{svc: svc, ips: ips}
}

// Issue handles POST /tokens (student).
func (h *Handler) Issue(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	tok, err := h.svc.Issue(c.Request.Context(), userID, h.ips.ClientIP(c.Request))
	if err != nil {
		response.Internal(c, "failed to issue token")
		return
	}
	response.Created(c, IssueResponse{
		Token:     tok.Value,
		UserID:    tok.UserID,
		ExpiresAt: tok.ExpiresAt,
		IsUsed:    tok.Used,
	})
}

// Stats handles GET /admin/tokens/stats.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to load token statistics")
		return
	}
	response.OK(c, stats)
}

// GC handles POST /admin/tokens/gc.
func (h *Handler) GC(c *gin.Context) {
	var req GCRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		// An empty body means defaults.
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.BindError(c, err)
			return
		}
	}
	age := DefaultGCAge
	if req.OlderThanMinutes != nil {
		if *req.OlderThanMinutes < 0 {
			response.BadRequest(c, "older_than_minutes must not be negative")
			return
		}
		age = time.Duration(*req.OlderThanMinutes) * time.Minute
	}
	n, err := h.svc.GarbageCollect(c.Request.Context(), age, req.DryRun)
	if err != nil {
		response.Internal(c, "failed to collect tokens")
		return
	}
	response.OK(c, gin.H{"count": n, "dry_run": req.DryRun, "older_than": age.String()})
}
