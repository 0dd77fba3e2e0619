package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sashimi3433/Attendance-Check/internal/models"
)

const lessonColumns = `id, teacher_id, subject, sequence, location, scheduled_at, reception, is_active,
	target_grade, target_major, created_at, updated_at`

func scanLesson(row pgx.Row) (*models.Lesson, error) {
	var l models.Lesson
	err := row.Scan(&l.ID, &l.TeacherID, &l.Subject, &l.Sequence, &l.Location, &l.ScheduledAt,
		&l.Reception, &l.IsActive, &l.TargetGrade, &l.TargetMajor, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (t *txn) queryLessons(ctx context.Context, q string, args ...any) ([]models.Lesson, error) {
	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *l)
	}
	return list, rows.Err()
}

func (t *txn) CreateLesson(ctx context.Context, l *models.Lesson) error {
	const q = `INSERT INTO lessons (teacher_id, subject, sequence, location, scheduled_at, reception, is_active,
		target_grade, target_major)
		VALUES ($1, $2, $3, $4, $5, FALSE, FALSE, $6, $7)
		RETURNING id, created_at, updated_at`
	err := t.tx.QueryRow(ctx, q, l.TeacherID, l.Subject, l.Sequence, l.Location, l.ScheduledAt,
		l.TargetGrade, l.TargetMajor).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	l.Reception, l.IsActive = false, false
	return nil
}

func (t *txn) GetLesson(ctx context.Context, id uuid.UUID) (*models.Lesson, error) {
	return scanLesson(t.tx.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id))
}

func (t *txn) LockLesson(ctx context.Context, id uuid.UUID) (*models.Lesson, error) {
	return scanLesson(t.tx.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1 FOR SHARE`, id))
}

func (t *txn) ListLessonsByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Lesson, error) {
	return t.queryLessons(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE teacher_id = $1 ORDER BY created_at DESC, sequence DESC`, teacherID)
}

func (t *txn) ListActiveLessonsByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Lesson, error) {
	return t.queryLessons(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE teacher_id = $1 AND is_active ORDER BY created_at FOR UPDATE`, teacherID)
}

func (t *txn) ListActiveLessons(ctx context.Context) ([]models.Lesson, error) {
	return t.queryLessons(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE is_active OR reception ORDER BY created_at`)
}

func (t *txn) UpdateLesson(ctx context.Context, l *models.Lesson) error {
	const q = `UPDATE lessons SET subject = $2, sequence = $3, location = $4, scheduled_at = $5, reception = $6,
		is_active = $7, target_grade = $8, target_major = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := t.tx.QueryRow(ctx, q, l.ID, l.Subject, l.Sequence, l.Location, l.ScheduledAt, l.Reception,
		l.IsActive, l.TargetGrade, l.TargetMajor).Scan(&l.UpdatedAt)
	if err != nil {
		return mapError(notFound(err))
	}
	return nil
}

// DeleteLesson relies on ON DELETE SET NULL for kiosks.current_lesson_id and attendance_records.lesson_id.
func (t *txn) DeleteLesson(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM lessons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
