package models

import "errors"

// Domain error kinds. They are terminal: callers surface them, nothing retries them.
var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyUsed          = errors.New("token already used")
	ErrExpired              = errors.New("token expired")
	ErrIPMismatch           = errors.New("token presented from a different address")
	ErrNoActiveLesson       = errors.New("kiosk has no active lesson")
	ErrDuplicateCheckIn     = errors.New("already checked in to this lesson")
	ErrTokenAlreadyRecorded = errors.New("attendance already recorded with this token")
	ErrKioskNotFound        = errors.New("kiosk not found")
	ErrInvalidStatus        = errors.New("status must be present or late")
	ErrForbidden            = errors.New("forbidden")
)

// ErrUsernameTaken is returned when provisioning a user whose username already exists.
var ErrUsernameTaken = errors.New("username already taken")

// ErrLessonActive is returned when an edit requires the lesson to be closed first.
var ErrLessonActive = errors.New("lesson is active")

// ErrLocationRequired is returned when a lesson would open with no location for kiosks to match.
var ErrLocationRequired = errors.New("lesson has no location")
