package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/store"
)

func (t *txn) CreateLesson(_ context.Context, l *models.Lesson) error {
	now := time.Now()
	l.ID = uuid.New()
	l.Reception, l.IsActive = false, false
	l.CreatedAt, l.UpdatedAt = now, now
	t.st.lessons[l.ID] = *l
	return nil
}

func (t *txn) GetLesson(_ context.Context, id uuid.UUID) (*models.Lesson, error) {
	l, ok := t.st.lessons[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &l, nil
}

func (t *txn) LockLesson(ctx context.Context, id uuid.UUID) (*models.Lesson, error) {
	return t.GetLesson(ctx, id)
}

func (t *txn) filterLessons(keep func(models.Lesson) bool) []models.Lesson {
	var list []models.Lesson
	for _, l := range t.st.lessons {
		if keep(l) {
			list = append(list, l)
		}
	}
	return list
}

func byCreated(a, b models.Lesson) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return a.Sequence - b.Sequence
}

func (t *txn) ListLessonsByTeacher(_ context.Context, teacherID uuid.UUID) ([]models.Lesson, error) {
	list := t.filterLessons(func(l models.Lesson) bool { return l.TeacherID == teacherID })
	slices.SortFunc(list, func(a, b models.Lesson) int { return byCreated(b, a) })
	return list, nil
}

func (t *txn) ListActiveLessonsByTeacher(_ context.Context, teacherID uuid.UUID) ([]models.Lesson, error) {
	list := t.filterLessons(func(l models.Lesson) bool { return l.TeacherID == teacherID && l.IsActive })
	slices.SortFunc(list, byCreated)
	return list, nil
}

func (t *txn) ListActiveLessons(_ context.Context) ([]models.Lesson, error) {
	list := t.filterLessons(func(l models.Lesson) bool { return l.IsActive || l.Reception })
	slices.SortFunc(list, byCreated)
	return list, nil
}

func (t *txn) UpdateLesson(_ context.Context, l *models.Lesson) error {
	cur, ok := t.st.lessons[l.ID]
	if !ok {
		return models.ErrNotFound
	}
	if l.IsActive {
		for _, other := range t.st.lessons {
			if other.ID != l.ID && other.TeacherID == cur.TeacherID && other.IsActive {
				return fmt.Errorf("%w: teacher already has an active lesson", store.ErrConflict)
			}
		}
	}
	l.TeacherID = cur.TeacherID
	l.CreatedAt = cur.CreatedAt
	l.UpdatedAt = time.Now()
	t.st.lessons[l.ID] = *l
	return nil
}

func (t *txn) DeleteLesson(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.lessons[id]; !ok {
		return models.ErrNotFound
	}
	delete(t.st.lessons, id)
	for kid, k := range t.st.kiosks {
		if k.CurrentLessonID != nil && *k.CurrentLessonID == id {
			k.CurrentLessonID = nil
			t.st.kiosks[kid] = k
		}
	}
	for rid, r := range t.st.records {
		if r.LessonID != nil && *r.LessonID == id {
			r.LessonID = nil
			t.st.records[rid] = r
		}
	}
	return nil
}
