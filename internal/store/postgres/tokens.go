package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/models"
)

func (t *txn) CreateToken(ctx context.Context, tok *models.AttendanceToken) error {
	const q = `INSERT INTO attendance_tokens (token, user_id, issued_at, expires_at, is_used, issued_ip, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, NULLIF($5,''), $3)
		RETURNING id`
	err := t.tx.QueryRow(ctx, q, tok.Value, tok.UserID, tok.IssuedAt, tok.ExpiresAt, tok.IssuedIP).Scan(&tok.ID)
	if err != nil {
		return mapError(err)
	}
	tok.UpdatedAt = tok.IssuedAt
	return nil
}

func (t *txn) GetTokenForUpdate(ctx context.Context, value string) (*models.AttendanceToken, error) {
	const q = `SELECT id, token, user_id, issued_at, expires_at, is_used, COALESCE(issued_ip,''), updated_at
		FROM attendance_tokens WHERE token = $1 FOR UPDATE`
	var tok models.AttendanceToken
	err := t.tx.QueryRow(ctx, q, value).Scan(&tok.ID, &tok.Value, &tok.UserID, &tok.IssuedAt, &tok.ExpiresAt,
		&tok.Used, &tok.IssuedIP, &tok.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &tok, nil
}

func (t *txn) MarkTokenUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE attendance_tokens SET is_used = TRUE, updated_at = $2 WHERE id = $1 AND NOT is_used`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAlreadyUsed
	}
	return nil
}

func (t *txn) CountStaleTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM attendance_tokens WHERE NOT is_used AND expires_at < $1`, cutoff).Scan(&n)
	return n, err
}

func (t *txn) DeleteStaleTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM attendance_tokens WHERE NOT is_used AND expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txn) TokenStats(ctx context.Context, now time.Time) (models.TokenStats, error) {
	const q = `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE is_used),
		COUNT(*) FILTER (WHERE NOT is_used),
		COUNT(*) FILTER (WHERE NOT is_used AND expires_at < $1)
		FROM attendance_tokens`
	var s models.TokenStats
	err := t.tx.QueryRow(ctx, q, now).Scan(&s.Total, &s.Used, &s.Unused, &s.ExpiredUnused)
	return s, err
}
