package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the stored account variant. It is resolved once at login and carried in the JWT.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleKiosk   Role = "kiosk"
	RoleAdmin   Role = "admin"
)

// ParseRole returns the Role for s, or false if s names no role.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleStudent, RoleTeacher, RoleKiosk, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// User represents an account. CurrentSessionID is the only live session for the user.
type User struct {
	ID               uuid.UUID `json:"id"`
	Username         string    `json:"username"`
	Password         string    `json:"-"`
	FullName         string    `json:"full_name"`
	Role             Role      `json:"role"`
	Grade            string    `json:"grade,omitempty"`
	Major            string    `json:"major,omitempty"`
	CurrentSessionID *string   `json:"-"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	Grade     string    `json:"grade,omitempty"`
	Major     string    `json:"major,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		Role:      u.Role,
		Grade:     u.Grade,
		Major:     u.Major,
		CreatedAt: u.CreatedAt,
	}
}
