package lessons

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/middleware"
	"github.com/sashimi3433/Attendance-Check/pkg/response"
)

// CreateRequest is the body for POST /lessons.
type CreateRequest struct {
	Subject     string     `json:"subject" binding:"required"`
	Count       int        `json:"count" binding:"omitempty,min=1,max=100"`
	Location    string     `json:"location"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	TargetGrade *string    `json:"target_grade"`
	TargetMajor *string    `json:"target_major"`
}

// UpdateRequest is the body for PATCH /lessons/:id.
type UpdateRequest struct {
	Subject     *string    `json:"subject"`
	Sequence    *int       `json:"sequence" binding:"omitempty,min=1"`
	Location    *string    `json:"location"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	TargetGrade *string    `json:"target_grade"`
	TargetMajor *string    `json:"target_major"`
}

// OpenRequest is the body for POST /lessons/:id/open.
type OpenRequest struct {
	Location string `json:"location" binding:"required"`
}

// Handler handles teacher lesson endpoints and the admin kiosk endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a lesson handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func lessonID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lesson id")
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /lessons.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		response.BadRequest(c, "subject is required")
		return
	}
	teacherID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.svc.Create(c.Request.Context(), teacherID, CreateParams{
		Subject:     req.Subject,
		Count:       req.Count,
		Location:    req.Location,
		ScheduledAt: req.ScheduledAt,
		TargetGrade: req.TargetGrade,
		TargetMajor: req.TargetMajor,
	})
	if err != nil {
		response.Error(c, err, "failed to create lessons")
		return
	}
	response.Created(c, gin.H{"lessons": list})
}

// List handles GET /lessons.
func (h *Handler) List(c *gin.Context) {
	teacherID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.svc.List(c.Request.Context(), teacherID)
	if err != nil {
		response.Internal(c, "failed to list lessons")
		return
	}
	response.OK(c, gin.H{"lessons": list})
}

// Update handles PATCH /lessons/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	teacherID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	l, err := h.svc.Update(c.Request.Context(), teacherID, id, UpdateParams(req))
	if err != nil {
		response.Error(c, err, "failed to update lesson")
		return
	}
	response.OK(c, l)
}

// Delete handles DELETE /lessons/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	teacherID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if err := h.svc.Delete(c.Request.Context(), teacherID, id); err != nil {
		response.Error(c, err, "failed to delete lesson")
		return
	}
	response.NoContent(c)
}

// Open handles POST /lessons/:id/open.
func (h *Handler) Open(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}
	teacherID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	l, err := h.svc.Open(c.Request.Context(), teacherID, id, req.Location)
	if err != nil {
		response.Error(c, err, "failed to open lesson")
		return
	}
	response.OK(c, l)
}

// End handles POST /lessons/:id/end.
func (h *Handler) End(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	teacherID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	l, err := h.svc.End(c.Request.Context(), teacherID, id)
	if err != nil {
		response.Error(c, err, "failed to end lesson")
		return
	}
	response.OK(c, l)
}

// Records handles GET /lessons/:id/records.
func (h *Handler) Records(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	teacherID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.svc.Records(c.Request.Context(), teacherID, id)
	if err != nil {
		response.Error(c, err, "failed to list records")
		return
	}
	response.OK(c, gin.H{"records": list, "count": len(list)})
}

// Resync handles POST /admin/kiosks/resync.
func (h *Handler) Resync(c *gin.Context) {
	n, err := h.svc.ResyncKiosks(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to resync kiosks")
		return
	}
	response.OK(c, gin.H{"bound": n})
}

// Status handles GET /admin/status.
func (h *Handler) Status(c *gin.Context) {
	report, err := h.svc.Status(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to load status")
		return
	}
	response.OK(c, report)
}
