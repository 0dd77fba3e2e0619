// Package store defines the transactional storage contract shared by the services.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/models"
)

// ErrConflict marks a transient conflict (serialization failure, deadlock, lock timeout).
// Run retries the unit once when it sees it.
var ErrConflict = errors.New("store: transient conflict")

// Store runs units of work. fn sees a consistent view and either every write commits or none does.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of storage operations available inside a unit of work.
// Lookups return models.ErrNotFound when no row matches.
type Tx interface {
	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	// LockUser returns the user row and holds it until the unit ends.
	LockUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetCurrentSession(ctx context.Context, userID uuid.UUID, sessionID *string) error
	ListUsersWithSession(ctx context.Context) ([]models.User, error)

	// Tokens
	CreateToken(ctx context.Context, t *models.AttendanceToken) error
	// GetTokenForUpdate returns the token row and holds it until the unit ends.
	GetTokenForUpdate(ctx context.Context, value string) (*models.AttendanceToken, error)
	// MarkTokenUsed flips used to true. It returns models.ErrAlreadyUsed if the token was already used.
	MarkTokenUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	CountStaleTokens(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteStaleTokens(ctx context.Context, cutoff time.Time) (int64, error)
	TokenStats(ctx context.Context, now time.Time) (models.TokenStats, error)

	// Lessons
	CreateLesson(ctx context.Context, l *models.Lesson) error
	GetLesson(ctx context.Context, id uuid.UUID) (*models.Lesson, error)
	// LockLesson returns the lesson and holds a shared lock so it cannot change state until the unit ends.
	LockLesson(ctx context.Context, id uuid.UUID) (*models.Lesson, error)
	ListLessonsByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Lesson, error)
	ListActiveLessonsByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Lesson, error)
	// ListActiveLessons returns every lesson that is active or accepting check-ins.
	ListActiveLessons(ctx context.Context) ([]models.Lesson, error)
	UpdateLesson(ctx context.Context, l *models.Lesson) error
	// DeleteLesson removes the lesson, clears kiosk bindings to it and nulls lesson on its records.
	DeleteLesson(ctx context.Context, id uuid.UUID) error

	// Kiosks
	CreateKiosk(ctx context.Context, k *models.Kiosk) error
	GetKioskByUser(ctx context.Context, userID uuid.UUID) (*models.Kiosk, error)
	ListKiosks(ctx context.Context) ([]models.Kiosk, error)
	SetKioskLesson(ctx context.Context, kioskID uuid.UUID, lessonID *uuid.UUID) error
	ClearKioskBindings(ctx context.Context, lessonIDs []uuid.UUID) (int64, error)
	BindKiosksByLocation(ctx context.Context, location string, lessonID uuid.UUID) (int64, error)

	// Attendance
	// CreateRecord returns models.ErrDuplicateCheckIn or models.ErrTokenAlreadyRecorded on a uniqueness violation.
	CreateRecord(ctx context.Context, r *models.AttendanceRecord) error
	RecordExistsForLesson(ctx context.Context, userID, lessonID uuid.UUID) (bool, error)
	RecordExistsForToken(ctx context.Context, userID, tokenID uuid.UUID) (bool, error)
	GetRecord(ctx context.Context, id uuid.UUID) (*models.AttendanceRecord, error)
	ListRecordsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.AttendanceRecord, int64, error)
	ListRecordsByLesson(ctx context.Context, lessonID uuid.UUID) ([]models.AttendanceRecord, error)
	// CloseRecords stamps end_time on every open record of the lesson.
	CloseRecords(ctx context.Context, lessonID uuid.UUID, at time.Time) (int64, error)
}

// Run executes fn in a unit of work, retrying once if the store reports ErrConflict.
func Run(ctx context.Context, s Store, fn func(tx Tx) error) error {
	err := s.WithTx(ctx, fn)
	if errors.Is(err, ErrConflict) {
		err = s.WithTx(ctx, fn)
	}
	return err
}
