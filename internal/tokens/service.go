// Package tokens issues and redeems short-lived, single-use attendance tokens.
package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/store"
	"github.com/sashimi3433/Attendance-Check/pkg/utils"
)

const (
	// DefaultTTL is long enough to scan a code and short enough to block replay.
	DefaultTTL = 5 * time.Second
	// DefaultGCAge is how long an expired, unused token is kept before collection.
	DefaultGCAge = 10 * time.Minute

	tokenBytes = 32
)

// Option configures a Service.
type Option func(*Service)

// WithTTL sets the validity window of issued tokens. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithIPBinding controls whether a token issued from an address must be redeemed from it.
func WithIPBinding(enabled bool) Option {
	return func(s *Service) { s.bindIP = enabled }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the token store.
type Service struct {
	store  store.Store
	ttl    time.Duration
	bindIP bool
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a token service.
func NewService(st store.Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: st, ttl: DefaultTTL, bindIP: true, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a token for userID pinned to clientIP (which may be empty).
func (s *Service) Issue(ctx context.Context, userID uuid.UUID, clientIP string) (*models.AttendanceToken, error) {
	value, err := utils.RandomToken(tokenBytes)
	if err != nil {
		return nil, err
	}
	now := s.now()
	tok := &models.AttendanceToken{
		Value:     value,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
		IssuedIP:  clientIP,
	}
	err = store.Run(ctx, s.store, func(tx store.Tx) error {
		return tx.CreateToken(ctx, tok)
	})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("attendance token issued",
		zap.String("user_id", userID.String()),
		zap.String("ip", clientIP),
		zap.String("token_prefix", value[:8]),
	)
	return tok, nil
}

// ValidateAndConsume redeems a token in its own unit of work.
func (s *Service) ValidateAndConsume(ctx context.Context, value, presentingIP string) (*models.AttendanceToken, error) {
	var tok *models.AttendanceToken
	err := store.Run(ctx, s.store, func(tx store.Tx) error {
		var err error
		tok, err = s.Consume(ctx, tx, value, presentingIP)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// Consume validates and marks the token used inside tx. The token row stays locked until tx ends,
// so concurrent redemptions of one token see exactly one success.
func (s *Service) Consume(ctx context.Context, tx store.Tx, value, presentingIP string) (*models.AttendanceToken, error) {
	tok, err := tx.GetTokenForUpdate(ctx, value)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch {
	case tok.Used:
		return nil, models.ErrAlreadyUsed
	case tok.Expired(now):
		return nil, models.ErrExpired
	case s.bindIP && tok.IssuedIP != "" && tok.IssuedIP != presentingIP:
		return nil, models.ErrIPMismatch
	}
	if err := tx.MarkTokenUsed(ctx, tok.ID, now); err != nil {
		return nil, err
	}
	tok.Used = true
	tok.UpdatedAt = now
	return tok, nil
}

// GarbageCollect deletes unused tokens that expired more than olderThan ago.
// With dryRun it only counts them.
func (s *Service) GarbageCollect(ctx context.Context, olderThan time.Duration, dryRun bool) (int64, error) {
	if olderThan < 0 {
		olderThan = 0
	}
	cutoff := s.now().Add(-olderThan)
	var n int64
	err := store.Run(ctx, s.store, func(tx store.Tx) error {
		var err error
		if dryRun {
			n, err = tx.CountStaleTokens(ctx, cutoff)
		} else {
			n, err = tx.DeleteStaleTokens(ctx, cutoff)
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("collect tokens: %w", err)
	}
	s.logger.Info("token garbage collection",
		zap.Int64("count", n),
		zap.Bool("dry_run", dryRun),
		zap.Time("cutoff", cutoff),
	)
	return n, nil
}

// Stats returns counts of total, used, unused and expired-unused tokens.
func (s *Service) Stats(ctx context.Context) (models.TokenStats, error) {
	var stats models.TokenStats
	err := store.Run(ctx, s.store, func(tx store.Tx) error {
		var err error
		stats, err = tx.TokenStats(ctx, s.now())
		return err
	})
	return stats, err
}
