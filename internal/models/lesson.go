package models

import (
	"time"

	"github.com/google/uuid"
)

// Lesson is one occurrence of a teacher's subject. IsActive marks the teacher's single open lesson;
// Reception marks it as accepting check-ins.
type Lesson struct {
	ID          uuid.UUID  `json:"id"`
	TeacherID   uuid.UUID  `json:"teacher_id"`
	Subject     string     `json:"subject"`
	Sequence    int        `json:"sequence"`
	Location    string     `json:"location"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Reception   bool       `json:"reception"`
	IsActive    bool       `json:"is_active"`
	TargetGrade *string    `json:"target_grade,omitempty"`
	TargetMajor *string    `json:"target_major,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Kiosk is a fixed scanning device. CurrentLessonID, when set, references an active lesson.
type Kiosk struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Name            string     `json:"name"`
	Location        string     `json:"location"`
	CurrentLessonID *uuid.UUID `json:"current_lesson_id,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// StatusReport is a snapshot of lesson activation and kiosk bindings.
type StatusReport struct {
	ActiveLessons    []Lesson `json:"active_lessons"`
	ReceptionLessons []Lesson `json:"reception_lessons"`
	Kiosks           []Kiosk  `json:"kiosks"`
}
