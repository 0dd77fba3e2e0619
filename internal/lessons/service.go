// Package lessons coordinates which lesson each teacher has open and which kiosks serve it.
package lessons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/store"
)

// Live feed event names.
const (
	EventLessonOpened = "lesson_opened"
	EventLessonClosed = "lesson_closed"
)

// Notifier receives lesson events after they commit.
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

// WithNotifier publishes lesson_opened and lesson_closed events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// Service is the lesson/kiosk coordinator.
type Service struct {
	store    store.Store
	now      func() time.Time
	notifier Notifier
	logger   *zap.Logger
}

// NewService creates a lesson service.
func NewService(st store.Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: st, now: time.Now, notifier: nopNotifier{}, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ownedLesson loads a lesson and hides it from anyone but its teacher.
func ownedLesson(ctx context.Context, tx store.Tx, teacherID, lessonID uuid.UUID) (*models.Lesson, error) {
	l, err := tx.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if l.TeacherID != teacherID {
		return nil, models.ErrNotFound
	}
	return l, nil
}

// closeLesson deactivates l and stamps end_time on its open records.
func closeLesson(ctx context.Context, tx store.Tx, l *models.Lesson, at time.Time) (int64, error) {
	l.IsActive = false
	l.Reception = false
	if err := tx.UpdateLesson(ctx, l); err != nil {
		return 0, err
	}
	return tx.CloseRecords(ctx, l.ID, at)
}

// Open makes lessonID the teacher's only active lesson at location. Any other active lesson of the
// teacher is closed with its open records, kiosks pointed at it are cleared, and kiosks whose
// location equals location are bound to the lesson. An empty location keeps the lesson's own;
// a lesson with neither fails with ErrLocationRequired.
func (s *Service) Open(ctx context.Context, teacherID, lessonID uuid.UUID, location string) (*models.Lesson, error) {
	location = strings.TrimSpace(location)
	var (
		target        *models.Lesson
		closedIDs     []uuid.UUID
		recordsClosed int64
		kiosksBound   int64
	)
	err := store.Run(ctx, s.store, func(tx store.Tx) error {
		closedIDs, recordsClosed, kiosksBound = nil, 0, 0
		if _, err := tx.LockUser(ctx, teacherID); err != nil {
			return err
		}
		var err error
		target, err = ownedLesson(ctx, tx, teacherID, lessonID)
		if err != nil {
			return err
		}
		now := s.now()

		active, err := tx.ListActiveLessonsByTeacher(ctx, teacherID)
		if err != nil {
			return err
		}
		for i := range active {
			if active[i].ID == target.ID {
				continue
			}
			n, err := closeLesson(ctx, tx, &active[i], now)
			if err != nil {
				return fmt.Errorf("close lesson %s: %w", active[i].ID, err)
			}
			recordsClosed += n
			closedIDs = append(closedIDs, active[i].ID)
		}
		if _, err := tx.ClearKioskBindings(ctx, append(closedIDs, target.ID)); err != nil {
			return err
		}

		if location != "" {
			target.Location = location
		}
		if target.Location == "" {
			return models.ErrLocationRequired
		}
		target.Reception = true
		target.IsActive = true
		if err := tx.UpdateLesson(ctx, target); err != nil {
			return err
		}
		kiosksBound, err = tx.BindKiosksByLocation(ctx, target.Location, target.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("lesson opened",
		zap.String("teacher_id", teacherID.String()),
		zap.String("lesson_id", target.ID.String()),
		zap.String("location", target.Location),
		zap.Int("lessons_closed", len(closedIDs)),
		zap.Int64("records_closed", recordsClosed),
		zap.Int64("kiosks_bound", kiosksBound),
	)
	for _, id := range closedIDs {
		s.notifier.Notify(ctx, id, EventLessonClosed, closedEvent(id, "superseded"))
	}
	s.notifier.Notify(ctx, target.ID, EventLessonOpened, target)
	return target, nil
}

// End closes the teacher's active lesson lessonID. Ending a lesson that is not active is ErrNotFound.
func (s *Service) End(ctx context.Context, teacherID, lessonID uuid.UUID) (*models.Lesson, error) {
	var (
		l             *models.Lesson
		recordsClosed int64
		kiosksCleared int64
	)
	err := store.Run(ctx, s.store, func(tx store.Tx) error {
		if _, err := tx.LockUser(ctx, teacherID); err != nil {
			return err
		}
		var err error
		l, err = ownedLesson(ctx, tx, teacherID, lessonID)
		if err != nil {
			return err
		}
		if !l.IsActive {
			return models.ErrNotFound
		}
		if recordsClosed, err = closeLesson(ctx, tx, l, s.now()); err != nil {
			return err
		}
		kiosksCleared, err = tx.ClearKioskBindings(ctx, []uuid.UUID{l.ID})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("lesson ended",
		zap.String("teacher_id", teacherID.String()),
		zap.String("lesson_id", l.ID.String()),
		zap.Int64("records_closed", recordsClosed),
		zap.Int64("kiosks_cleared", kiosksCleared),
	)
	s.notifier.Notify(ctx, l.ID, EventLessonClosed, closedEvent(l.ID, "ended"))
	return l, nil
}

func closedEvent(id uuid.UUID, reason string) map[string]any {
	return map[string]any{"lesson_id": id, "reason": reason}
}

// CreateParams describes a series of lessons.
type CreateParams struct {
	Subject     string
	Count       int
	Location    string
	ScheduledAt *time.Time
	TargetGrade *string
	TargetMajor *string
}

// Create makes Count lessons of Subject numbered 1..Count. All are inactive.
func (s *Service) Create(ctx context.Context, teacherID uuid.UUID, p CreateParams) ([]models.Lesson, error) {
	p.Subject = strings.TrimSpace(p.Subject)
	if p.Subject == "" {
		return nil, errors.New("subject is required")
	}
	if p.Count <= 0 {
		p.Count = 1
	}
	var created []models.Lesson
	err := store.Run(ctx, s.store, func(tx store.Tx) error {
		created = created[:0]
		for seq := 1; seq <= p.Count; seq++ {
			l := models.Lesson{
				TeacherID:   teacherID,
				Subject:     p.Subject,
				Sequence:    seq,
				Location:    strings.TrimSpace(p.Location),
				ScheduledAt: p.ScheduledAt,
				TargetGrade: p.TargetGrade,
				TargetMajor: p.TargetMajor,
			}
			if err := tx.CreateLesson(ctx, &l); err != nil {
				return err
			}
			created = append(created, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// List returns the teacher's lessons, newest first.
func (s *Service) List(ctx context.Context, teacherID uuid.UUID) ([]models.Lesson, error) {
	var list []models.Lesson
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		list, err = tx.ListLessonsByTeacher(ctx, teacherID)
		return err
	})
	return list, err
}

// UpdateParams holds optional edits. Nil fields are left unchanged.
type UpdateParams struct {
	Subject     *string
	Sequence    *int
	Location    *string
	ScheduledAt *time.Time
	TargetGrade *string
	TargetMajor *string
}

// Update edits a lesson. It never changes activation; the location of an active lesson is
// changed by opening it again.
func (s *Service) Update(ctx context.Context, teacherID, lessonID uuid.UUID, p UpdateParams) (*models.Lesson, error) {
	var l *models.Lesson
	err := store.Run(ctx, s.store, func(tx store.Tx) error {
		var err error
		l, err = ownedLesson(ctx, tx, teacherID, lessonID)
		if err != nil {
			return err
		}
		if p.Subject != nil {
			l.Subject = strings.TrimSpace(*p.Subject)
		}
		if p.Sequence != nil {
			l.Sequence = *p.Sequence
		}
		if p.Location != nil && strings.TrimSpace(*p.Location) != l.Location {
			if l.IsActive {
				return models.ErrLessonActive
			}
			l.Location = strings.TrimSpace(*p.Location)
		}
		if p.ScheduledAt != nil {
			l.ScheduledAt = p.ScheduledAt
		}
		if p.TargetGrade != nil {
			l.TargetGrade = emptyToNil(p.TargetGrade)
		}
		if p.TargetMajor != nil {
			l.TargetMajor = emptyToNil(p.TargetMajor)
		}
		return tx.UpdateLesson(ctx, l)
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func emptyToNil(s *string) *string {
	if strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// Delete removes a lesson. Its open records are closed first; records survive with no lesson.
func (s *Service) Delete(ctx context.Context, teacherID, lessonID uuid.UUID) error {
	var wasActive bool
	err := store.Run(ctx, s.store, func(tx store.Tx) error {
		if _, err := tx.LockUser(ctx, teacherID); err != nil {
			return err
		}
		l, err := ownedLesson(ctx, tx, teacherID, lessonID)
		if err != nil {
			return err
		}
		wasActive = l.IsActive
		if _, err := tx.CloseRecords(ctx, l.ID, s.now()); err != nil {
			return err
		}
		return tx.DeleteLesson(ctx, l.ID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("lesson deleted", zap.String("lesson_id", lessonID.String()), zap.Bool("was_active", wasActive))
	if wasActive {
		s.notifier.Notify(ctx, lessonID, EventLessonClosed, closedEvent(lessonID, "deleted"))
	}
	return nil
}

// Records returns the roster of a lesson owned by teacherID.
func (s *Service) Records(ctx context.Context, teacherID, lessonID uuid.UUID) ([]models.AttendanceRecord, error) {
	var list []models.AttendanceRecord
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := ownedLesson(ctx, tx, teacherID, lessonID); err != nil {
			return err
		}
		var err error
		list, err = tx.ListRecordsByLesson(ctx, lessonID)
		return err
	})
	return list, err
}

// CanWatch reports whether a user may follow the live feed of a lesson. Admins see every
// lesson, teachers only their own.
func (s *Service) CanWatch(ctx context.Context, userID uuid.UUID, role models.Role, lessonID uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		if role == models.RoleAdmin {
			_, err := tx.GetLesson(ctx, lessonID)
			return err
		}
		_, err := ownedLesson(ctx, tx, userID, lessonID)
		return err
	})
}

// ResyncKiosks binds every kiosk without a live binding to the active, receiving lesson at its
// location, and clears bindings that point at lessons no longer active. It returns how many
// kiosks were bound.
func (s *Service) ResyncKiosks(ctx context.Context) (int64, error) {
	var bound, cleared int64
	err := store.Run(ctx, s.store, func(tx store.Tx) error {
		bound, cleared = 0, 0
		lessons, err := tx.ListActiveLessons(ctx)
		if err != nil {
			return err
		}
		live := make(map[uuid.UUID]bool, len(lessons))
		byLocation := make(map[string]uuid.UUID)
		for _, l := range lessons {
			if !l.IsActive {
				continue
			}
			live[l.ID] = true
			if _, taken := byLocation[l.Location]; l.Reception && l.Location != "" && !taken {
				byLocation[l.Location] = l.ID
			}
		}
		kiosks, err := tx.ListKiosks(ctx)
		if err != nil {
			return err
		}
		for _, k := range kiosks {
			if k.CurrentLessonID != nil && live[*k.CurrentLessonID] {
				continue
			}
			id, ok := byLocation[k.Location]
			switch {
			case ok:
				if err := tx.SetKioskLesson(ctx, k.ID, &id); err != nil {
					return err
				}
				bound++
			case k.CurrentLessonID != nil:
				if err := tx.SetKioskLesson(ctx, k.ID, nil); err != nil {
					return err
				}
				cleared++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("kiosks resynced", zap.Int64("bound", bound), zap.Int64("cleared", cleared))
	return bound, nil
}

// Status reports active and receiving lessons and every kiosk's binding.
func (s *Service) Status(ctx context.Context) (*models.StatusReport, error) {
	report := &models.StatusReport{ActiveLessons: []models.Lesson{}, ReceptionLessons: []models.Lesson{}}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		lessons, err := tx.ListActiveLessons(ctx)
		if err != nil {
			return err
		}
		for _, l := range lessons {
			if l.IsActive {
				report.ActiveLessons = append(report.ActiveLessons, l)
			}
			if l.Reception {
				report.ReceptionLessons = append(report.ReceptionLessons, l)
			}
		}
		report.Kiosks, err = tx.ListKiosks(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if report.Kiosks == nil {
		report.Kiosks = []models.Kiosk{}
	}
	return report, nil
}
