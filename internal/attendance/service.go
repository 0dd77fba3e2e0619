// Package attendance turns redeemed tokens into attendance records.
package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/store"
)

// EventCheckIn is published to a lesson's live feed for each accepted check-in.
const EventCheckIn = "checkin"

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// TokenConsumer validates and consumes a token inside an existing unit of work.
type TokenConsumer interface {
	Consume(ctx context.Context, tx store.Tx, value, presentingIP string) (*models.AttendanceToken, error)
}

// Notifier receives check-in events after they commit.
type Notifier interface {
	Notify(ctx context.Context, lessonID uuid.UUID, event string, data any)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, uuid.UUID, string, any) {}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier publishes check-in events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// Service is the attendance ledger.
type Service struct {
	store    store.Store
	tokens   TokenConsumer
	now      func() time.Time
	notifier Notifier
	logger   *zap.Logger
}

// NewService creates an attendance service.
func NewService(st store.Store, tokens TokenConsumer, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: st, tokens: tokens, now: time.Now, notifier: nopNotifier{}, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckInParams is a redemption request from a kiosk.
type CheckInParams struct {
	KioskUserID  uuid.UUID
	Token        string
	Status       string
	PresentingIP string
	Location     string
	Notes        string
}

// CheckInEvent is the live feed payload for an accepted check-in.
type CheckInEvent struct {
	Record   models.AttendanceRecord `json:"record"`
	Username string                  `json:"username"`
	FullName string                  `json:"full_name"`
}

// CheckIn redeems p.Token at the kiosk for the lesson the kiosk currently serves. Token consumption
// and the record insert commit together or not at all.
func (s *Service) CheckIn(ctx context.Context, p CheckInParams) (*models.AttendanceRecord, error) {
	status, err := models.ParseAttendanceStatus(strings.TrimSpace(p.Status))
	if err != nil {
		return nil, err
	}
	var (
		rec   *models.AttendanceRecord
		kiosk *models.Kiosk
		user  *models.User
	)
	err = store.Run(ctx, s.store, func(tx store.Tx) error {
		var err error
		kiosk, err = tx.GetKioskByUser(ctx, p.KioskUserID)
		if errors.Is(err, models.ErrNotFound) || (err == nil && !kiosk.IsActive) {
			return models.ErrKioskNotFound
		}
		if err != nil {
			return err
		}
		if kiosk.CurrentLessonID == nil {
			return models.ErrNoActiveLesson
		}
		lesson, err := tx.LockLesson(ctx, *kiosk.CurrentLessonID)
		if errors.Is(err, models.ErrNotFound) || (err == nil && !lesson.IsActive) {
			return models.ErrNoActiveLesson
		}
		if err != nil {
			return err
		}

		tok, err := s.tokens.Consume(ctx, tx, p.Token, p.PresentingIP)
		if err != nil {
			return err
		}

		dup, err := tx.RecordExistsForLesson(ctx, tok.UserID, lesson.ID)
		if err != nil {
			return err
		}
		if dup {
			return models.ErrDuplicateCheckIn
		}
		dup, err = tx.RecordExistsForToken(ctx, tok.UserID, tok.ID)
		if err != nil {
			return err
		}
		if dup {
			return models.ErrTokenAlreadyRecorded
		}

		location := strings.TrimSpace(p.Location)
		if location == "" {
			location = kiosk.Location
		}
		lessonID, kioskID := lesson.ID, kiosk.ID
		rec = &models.AttendanceRecord{
			UserID:     tok.UserID,
			TokenID:    tok.ID,
			LessonID:   &lessonID,
			KioskID:    &kioskID,
			AttendedAt: s.now(),
			Status:     status,
			Notes:      strings.TrimSpace(p.Notes),
			Location:   location,
		}
		if err := tx.CreateRecord(ctx, rec); err != nil {
			return err
		}
		user, err = tx.GetUser(ctx, tok.UserID)
		return err
	})
	if err != nil {
		s.logger.Info("check-in rejected",
			zap.String("kiosk_user_id", p.KioskUserID.String()),
			zap.String("ip", p.PresentingIP),
			zap.String("reason", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("check-in accepted",
		zap.String("kiosk_id", kiosk.ID.String()),
		zap.String("user_id", rec.UserID.String()),
		zap.String("lesson_id", rec.LessonID.String()),
		zap.String("status", string(rec.Status)),
	)
	s.notifier.Notify(ctx, *rec.LessonID, EventCheckIn, CheckInEvent{
		Record:   *rec,
		Username: user.Username,
		FullName: user.FullName,
	})
	return rec, nil
}

// History returns the user's most recent records, newest first, and the user's total record count.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit int) ([]models.AttendanceRecord, int64, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	var (
		list  []models.AttendanceRecord
		total int64
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		list, total, err = tx.ListRecordsByUser(ctx, userID, limit)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	if list == nil {
		list = []models.AttendanceRecord{}
	}
	return list, total, nil
}

// Record returns one of the user's own records. Other users' records are ErrNotFound.
func (s *Service) Record(ctx context.Context, userID, recordID uuid.UUID) (*models.AttendanceRecord, error) {
	var rec *models.AttendanceRecord
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		rec, err = tx.GetRecord(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.UserID != userID {
			return models.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
