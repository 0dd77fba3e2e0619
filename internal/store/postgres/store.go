// Package postgres implements store.Store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/store"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// Store is a store.Store backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Postgres store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx runs fn in a READ COMMITTED transaction. Row locks taken by the Tx methods serialize
// competing units; unique indexes catch what the locks do not.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapError(err))
	}
	if err := fn(&txn{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", mapError(err))
	}
	return nil
}

// mapError translates Postgres error codes into store and domain errors.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
	case codeUniqueViolation:
		switch pgErr.ConstraintName {
		case "uq_attendance_user_lesson":
			return models.ErrDuplicateCheckIn
		case "uq_attendance_user_token":
			return models.ErrTokenAlreadyRecorded
		case "uq_lessons_one_active_per_teacher":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		case "users_username_key":
			return models.ErrUsernameTaken
		}
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

type txn struct {
	tx pgx.Tx
}

var _ store.Tx = (*txn)(nil)
