package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sashimi3433/Attendance-Check/internal/models"
)

const recordColumns = `id, user_id, token_id, lesson_id, kiosk_id, attended_at, end_time, status, notes, location`

func scanRecord(row pgx.Row) (*models.AttendanceRecord, error) {
	var r models.AttendanceRecord
	var status string
	err := row.Scan(&r.ID, &r.UserID, &r.TokenID, &r.LessonID, &r.KioskID, &r.AttendedAt, &r.EndTime,
		&status, &r.Notes, &r.Location)
	if err != nil {
		return nil, notFound(err)
	}
	r.Status = models.AttendanceStatus(status)
	return &r, nil
}

func (t *txn) queryRecords(ctx context.Context, q string, args ...any) ([]models.AttendanceRecord, error) {
	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AttendanceRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *r)
	}
	return list, rows.Err()
}

func (t *txn) CreateRecord(ctx context.Context, r *models.AttendanceRecord) error {
	const q = `INSERT INTO attendance_records (user_id, token_id, lesson_id, kiosk_id, attended_at, status, notes, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := t.tx.QueryRow(ctx, q, r.UserID, r.TokenID, r.LessonID, r.KioskID, r.AttendedAt, string(r.Status),
		r.Notes, r.Location).Scan(&r.ID)
	return mapError(err)
}

func (t *txn) RecordExistsForLesson(ctx context.Context, userID, lessonID uuid.UUID) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM attendance_records WHERE user_id = $1 AND lesson_id = $2)`, userID, lessonID).Scan(&ok)
	return ok, err
}

func (t *txn) RecordExistsForToken(ctx context.Context, userID, tokenID uuid.UUID) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM attendance_records WHERE user_id = $1 AND token_id = $2)`, userID, tokenID).Scan(&ok)
	return ok, err
}

func (t *txn) GetRecord(ctx context.Context, id uuid.UUID) (*models.AttendanceRecord, error) {
	return scanRecord(t.tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE id = $1`, id))
}

func (t *txn) ListRecordsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.AttendanceRecord, int64, error) {
	var total int64
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM attendance_records WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	list, err := t.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM attendance_records WHERE user_id = $1 ORDER BY attended_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (t *txn) ListRecordsByLesson(ctx context.Context, lessonID uuid.UUID) ([]models.AttendanceRecord, error) {
	return t.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM attendance_records WHERE lesson_id = $1 ORDER BY attended_at`, lessonID)
}

func (t *txn) CloseRecords(ctx context.Context, lessonID uuid.UUID, at time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE attendance_records SET end_time = $2 WHERE lesson_id = $1 AND end_time IS NULL`, lessonID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
