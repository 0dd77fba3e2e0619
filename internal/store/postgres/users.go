package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sashimi3433/Attendance-Check/internal/models"
)

const userColumns = `id, username, password_hash, full_name, role, COALESCE(grade,''), COALESCE(major,''),
	current_session_id, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.FullName, &role, &u.Grade, &u.Major,
		&u.CurrentSessionID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

func (t *txn) CreateUser(ctx context.Context, u *models.User) error {
	const q = `INSERT INTO users (username, password_hash, full_name, role, grade, major, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), TRUE)
		RETURNING id, is_active, created_at, updated_at`
	err := t.tx.QueryRow(ctx, q, u.Username, u.Password, u.FullName, string(u.Role), u.Grade, u.Major).
		Scan(&u.ID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return mapError(err)
}

func (t *txn) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (t *txn) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (t *txn) LockUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
}

func (t *txn) SetCurrentSession(ctx context.Context, userID uuid.UUID, sessionID *string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE users SET current_session_id = $2, updated_at = NOW() WHERE id = $1`, userID, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (t *txn) ListUsersWithSession(ctx context.Context) ([]models.User, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE current_session_id IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *u)
	}
	return list, rows.Err()
}
