package attendance

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/middleware"
	"github.com/sashimi3433/Attendance-Check/pkg/response"
)

// IPSource resolves the best-effort client address of a request.
type IPSource interface {
	ClientIP(r *http.Request) string
}

// CheckInRequest is the body for POST /checkin.
type CheckInRequest struct {
	Token    string `json:"token" binding:"required"`
	Status   string `json:"status"`
	Location string `json:"location"`
	Notes    string `json:"notes"`
}

// Handler handles check-in and attendance history endpoints.
type Handler struct {
	svc *Service
	ips IPSource
}

// NewHandler creates an attendance handler.
func NewHandler(svc *Service, ips IPSource) *Handler {
	return &Handler{svc: svc, ips: ips}
}

// CheckIn handles POST /checkin (kiosk).
func (h *Handler) CheckIn(c *gin.Context) {
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	kioskUserID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	rec, err := h.svc.CheckIn(c.Request.Context(), CheckInParams{
		KioskUserID:  kioskUserID,
		Token:        req.Token,
		Status:       req.Status,
		PresentingIP: h.ips.ClientIP(c.Request),
		Location:     req.Location,
		Notes:        req.Notes,
	})
	if err != nil {
		response.Error(c, err, "failed to record attendance")
		return
	}
	response.Created(c, rec)
}

// History handles GET /attendance/history.
func (h *Handler) History(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, total, err := h.svc.History(c.Request.Context(), userID, limit)
	if err != nil {
		response.Internal(c, "failed to load attendance history")
		return
	}
	response.OK(c, gin.H{"records": list, "total_count": total})
}

// Record handles GET /attendance/records/:id.
func (h *Handler) Record(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid record id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	rec, err := h.svc.Record(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err, "failed to load record")
		return
	}
	response.OK(c, rec)
}
