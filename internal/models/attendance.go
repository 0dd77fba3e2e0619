package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceStatus is the recorded arrival state.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
)

// ParseAttendanceStatus defaults an empty value to present.
func ParseAttendanceStatus(s string) (AttendanceStatus, error) {
	switch AttendanceStatus(s) {
	case "":
		return StatusPresent, nil
	case StatusPresent, StatusLate:
		return AttendanceStatus(s), nil
	}
	return "", ErrInvalidStatus
}

// AttendanceRecord is an append-only check-in. LessonID is nulled if the lesson is deleted;
// EndTime is stamped once when the lesson closes.
type AttendanceRecord struct {
	ID         uuid.UUID        `json:"id"`
	UserID     uuid.UUID        `json:"user_id"`
	TokenID    uuid.UUID        `json:"token_id"`
	LessonID   *uuid.UUID       `json:"lesson_id,omitempty"`
	KioskID    *uuid.UUID       `json:"kiosk_id,omitempty"`
	AttendedAt time.Time        `json:"attended_at"`
	EndTime    *time.Time       `json:"end_time,omitempty"`
	Status     AttendanceStatus `json:"status"`
	Notes      string           `json:"notes,omitempty"`
	Location   string           `json:"location,omitempty"`
}
