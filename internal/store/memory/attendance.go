package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/models"
)

func (t *txn) CreateRecord(_ context.Context, r *models.AttendanceRecord) error {
	for _, existing := range t.st.records {
		if existing.UserID != r.UserID {
			continue
		}
		if r.LessonID != nil && existing.LessonID != nil && *existing.LessonID == *r.LessonID {
			return models.ErrDuplicateCheckIn
		}
		if existing.TokenID == r.TokenID {
			return models.ErrTokenAlreadyRecorded
		}
	}
	r.ID = uuid.New()
	r.EndTime = nil
	t.st.records[r.ID] = *r
	return nil
}

func (t *txn) RecordExistsForLesson(_ context.Context, userID, lessonID uuid.UUID) (bool, error) {
	for _, r := range t.st.records {
		if r.UserID == userID && r.LessonID != nil && *r.LessonID == lessonID {
			return true, nil
		}
	}
	return false, nil
}

func (t *txn) RecordExistsForToken(_ context.Context, userID, tokenID uuid.UUID) (bool, error) {
	for _, r := range t.st.records {
		if r.UserID == userID && r.TokenID == tokenID {
			return true, nil
		}
	}
	return false, nil
}

func (t *txn) GetRecord(_ context.Context, id uuid.UUID) (*models.AttendanceRecord, error) {
	r, ok := t.st.records[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &r, nil
}

func (t *txn) ListRecordsByUser(_ context.Context, userID uuid.UUID, limit int) ([]models.AttendanceRecord, int64, error) {
	var list []models.AttendanceRecord
	for _, r := range t.st.records {
		if r.UserID == userID {
			list = append(list, r)
		}
	}
	total := int64(len(list))
	slices.SortFunc(list, func(a, b models.AttendanceRecord) int { return b.AttendedAt.Compare(a.AttendedAt) })
	if limit >= 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, total, nil
}

func (t *txn) ListRecordsByLesson(_ context.Context, lessonID uuid.UUID) ([]models.AttendanceRecord, error) {
	var list []models.AttendanceRecord
	for _, r := range t.st.records {
		if r.LessonID != nil && *r.LessonID == lessonID {
			list = append(list, r)
		}
	}
	slices.SortFunc(list, func(a, b models.AttendanceRecord) int { return a.AttendedAt.Compare(b.AttendedAt) })
	return list, nil
}

func (t *txn) CloseRecords(_ context.Context, lessonID uuid.UUID, at time.Time) (int64, error) {
	var n int64
	for id, r := range t.st.records {
		if r.LessonID != nil && *r.LessonID == lessonID && r.EndTime == nil {
			end := at
			r.EndTime = &end
			t.st.records[id] = r
			n++
		}
	}
	return n, nil
}
