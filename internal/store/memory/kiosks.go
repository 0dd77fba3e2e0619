package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/models"
)

func (t *txn) CreateKiosk(_ context.Context, k *models.Kiosk) error {
	if _, ok := t.st.users[k.UserID]; !ok {
		return fmt.Errorf("kiosk user: %w", models.ErrNotFound)
	}
	for _, existing := range t.st.kiosks {
		if existing.UserID == k.UserID {
			return fmt.Errorf("memory: user %s already has a kiosk", k.UserID)
		}
	}
	now := time.Now()
	k.ID = uuid.New()
	k.IsActive = true
	k.CurrentLessonID = nil
	k.CreatedAt, k.UpdatedAt = now, now
	t.st.kiosks[k.ID] = *k
	return nil
}

func (t *txn) GetKioskByUser(_ context.Context, userID uuid.UUID) (*models.Kiosk, error) {
	for _, k := range t.st.kiosks {
		if k.UserID == userID {
			return &k, nil
		}
	}
	return nil, models.ErrNotFound
}

func (t *txn) ListKiosks(_ context.Context) ([]models.Kiosk, error) {
	list := make([]models.Kiosk, 0, len(t.st.kiosks))
	for _, k := range t.st.kiosks {
		list = append(list, k)
	}
	slices.SortFunc(list, func(a, b models.Kiosk) int {
		if c := cmp.Compare(a.Location, b.Location); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return list, nil
}

func (t *txn) SetKioskLesson(_ context.Context, kioskID uuid.UUID, lessonID *uuid.UUID) error {
	k, ok := t.st.kiosks[kioskID]
	if !ok {
		return models.ErrNotFound
	}
	if lessonID != nil {
		if _, ok := t.st.lessons[*lessonID]; !ok {
			return fmt.Errorf("kiosk lesson: %w", models.ErrNotFound)
		}
		id := *lessonID
		lessonID = &id
	}
	k.CurrentLessonID = lessonID
	k.UpdatedAt = time.Now()
	t.st.kiosks[kioskID] = k
	return nil
}

func (t *txn) ClearKioskBindings(_ context.Context, lessonIDs []uuid.UUID) (int64, error) {
	var n int64
	for id, k := range t.st.kiosks {
		if k.CurrentLessonID != nil && slices.Contains(lessonIDs, *k.CurrentLessonID) {
			k.CurrentLessonID = nil
			k.UpdatedAt = time.Now()
			t.st.kiosks[id] = k
			n++
		}
	}
	return n, nil
}

func (t *txn) BindKiosksByLocation(_ context.Context, location string, lessonID uuid.UUID) (int64, error) {
	if _, ok := t.st.lessons[lessonID]; !ok {
		return 0, fmt.Errorf("kiosk lesson: %w", models.ErrNotFound)
	}
	var n int64
	for id, k := range t.st.kiosks {
		if k.Location == location {
			lid := lessonID
			k.CurrentLessonID = &lid
			k.UpdatedAt = time.Now()
			t.st.kiosks[id] = k
			n++
		}
	}
	return n, nil
}
