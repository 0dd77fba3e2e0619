package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/sashimi3433/Attendance-Check/internal/models"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err})
}

// BindError sends 400 describing why a request body failed binding.
func BindError(c *gin.Context, err error) {
	BadRequest(c, "invalid request: "+formatBindError(err))
}

func formatBindError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(msgs, "; ")
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Error: err})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Error: err})
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Error: err})
}

// Conflict sends 409.
func Conflict(c *gin.Context, err string) {
	c.JSON(http.StatusConflict, Body{Success: false, Error: err})
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, err string) {
	c.JSON(http.StatusServiceUnavailable, Body{Success: false, Error: err})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: err})
}

type domainError struct {
	err    error
	status int
	code   string
}

var domainErrors = []domainError{
	{models.ErrNotFound, http.StatusNotFound, "not_found"},
	{models.ErrKioskNotFound, http.StatusNotFound, "kiosk_not_found"},
	{models.ErrAlreadyUsed, http.StatusConflict, "already_used"},
	{models.ErrExpired, http.StatusGone, "expired"},
	{models.ErrIPMismatch, http.StatusForbidden, "ip_mismatch"},
	{models.ErrNoActiveLesson, http.StatusConflict, "no_active_lesson"},
	{models.ErrDuplicateCheckIn, http.StatusConflict, "duplicate_check_in"},
	{models.ErrTokenAlreadyRecorded, http.StatusConflict, "token_already_recorded"},
	{models.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{models.ErrUsernameTaken, http.StatusConflict, "username_taken"},
	{models.ErrLessonActive, http.StatusConflict, "lesson_active"},
	{models.ErrLocationRequired, http.StatusBadRequest, "location_required"},
	{models.ErrForbidden, http.StatusForbidden, "forbidden"},
}

// StatusOf returns the HTTP status and error code for a domain error; unknown errors are 500.
func StatusOf(err error) (int, string) {
	if d, ok := lookup(err); ok {
		return d.status, d.code
	}
	return http.StatusInternalServerError, "internal"
}

func lookup(err error) (domainError, bool) {
	for _, d := range domainErrors {
		if errors.Is(err, d.err) {
			return d, true
		}
	}
	return domainError{}, false
}

// Error sends the domain error with its mapped status. Unknown errors send fallback as a 500.
func Error(c *gin.Context, err error, fallback string) {
	d, ok := lookup(err)
	if !ok {
		Internal(c, fallback)
		return
	}
	c.JSON(d.status, Body{Success: false, Error: d.err.Error(), Code: d.code})
}
