package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sashimi3433/Attendance-Check/internal/models"
)

const kioskColumns = `id, user_id, name, location, current_lesson_id, is_active, created_at, updated_at`

func scanKiosk(row pgx.Row) (*models.Kiosk, error) {
	var k models.Kiosk
	err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.Location, &k.CurrentLessonID, &k.IsActive, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &k, nil
}

func (t *txn) CreateKiosk(ctx context.Context, k *models.Kiosk) error {
	const q = `INSERT INTO kiosks (user_id, name, location, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, is_active, created_at, updated_at`
	err := t.tx.QueryRow(ctx, q, k.UserID, k.Name, k.Location).Scan(&k.ID, &k.IsActive, &k.CreatedAt, &k.UpdatedAt)
	return mapError(err)
}

func (t *txn) GetKioskByUser(ctx context.Context, userID uuid.UUID) (*models.Kiosk, error) {
	return scanKiosk(t.tx.QueryRow(ctx, `SELECT `+kioskColumns+` FROM kiosks WHERE user_id = $1`, userID))
}

func (t *txn) ListKiosks(ctx context.Context) ([]models.Kiosk, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+kioskColumns+` FROM kiosks ORDER BY location, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Kiosk
	for rows.Next() {
		k, err := scanKiosk(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *k)
	}
	return list, rows.Err()
}

func (t *txn) SetKioskLesson(ctx context.Context, kioskID uuid.UUID, lessonID *uuid.UUID) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE kiosks SET current_lesson_id = $2, updated_at = NOW() WHERE id = $1`, kioskID, lessonID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (t *txn) ClearKioskBindings(ctx context.Context, lessonIDs []uuid.UUID) (int64, error) {
	if len(lessonIDs) == 0 {
		return 0, nil
	}
	ids := make([]string, len(lessonIDs))
	for i, id := range lessonIDs {
		ids[i] = id.String()
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE kiosks SET current_lesson_id = NULL, updated_at = NOW() WHERE current_lesson_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txn) BindKiosksByLocation(ctx context.Context, location string, lessonID uuid.UUID) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE kiosks SET current_lesson_id = $2, updated_at = NOW() WHERE location = $1`, location, lessonID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
