// Package sessions keeps at most one live login session per user.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/store"
	"github.com/sashimi3433/Attendance-Check/pkg/utils"
)

// DefaultTTL is the lifetime of a session record.
const DefaultTTL = 24 * time.Hour

// ErrSessionInvalid means the presented session is not the user's live session.
var ErrSessionInvalid = errors.New("session is no longer active")

// Option configures a Guard.
type Option func(*Guard)

// WithTTL sets the session lifetime. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// Guard binds each user to a single live session id.
type Guard struct {
	store   store.Store
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewGuard creates a session guard.
func NewGuard(st store.Store, backend Backend, logger *zap.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{store: st, backend: backend, ttl: DefaultTTL, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Login creates a session record for user and makes it the user's only live session.
func (g *Guard) Login(ctx context.Context, user *models.User, ip, userAgent string) (*models.Session, error) {
	id, err := utils.RandomToken(32)
	if err != nil {
		return nil, err
	}
	now := g.now()
	s := &models.Session{
		ID:        id,
		UserID:    user.ID,
		Role:      user.Role,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}
	if err := g.backend.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := g.OnLogin(ctx, user.ID, id); err != nil {
		_ = g.backend.Delete(ctx, id)
		return nil, err
	}
	return s, nil
}

// OnLogin records sessionID as the user's current session while the user row is locked, then
// destroys the previous session record once that commits.
func (g *Guard) OnLogin(ctx context.Context, userID uuid.UUID, sessionID string) error {
	var superseded string
	err := store.Run(ctx, g.store, func(tx store.Tx) error {
		superseded = ""
		u, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		if u.CurrentSessionID != nil && *u.CurrentSessionID != sessionID {
			superseded = *u.CurrentSessionID
		}
		return tx.SetCurrentSession(ctx, userID, &sessionID)
	})
	if err != nil {
		return err
	}
	if superseded == "" {
		return nil
	}
	// The pointer already moved, so the old record is unreachable even if this delete fails.
	if err := g.backend.Delete(ctx, superseded); err != nil {
		g.logger.Warn("destroy superseded session", zap.String("user_id", userID.String()), zap.Error(err))
	}
	g.logger.Info("session superseded", zap.String("user_id", userID.String()))
	return nil
}

// OnLogout destroys the user's live session record and clears it from the user.
func (g *Guard) OnLogout(ctx context.Context, userID uuid.UUID) error {
	return store.Run(ctx, g.store, func(tx store.Tx) error {
		u, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		if u.CurrentSessionID == nil {
			return nil
		}
		if err := g.backend.Delete(ctx, *u.CurrentSessionID); err != nil {
			return fmt.Errorf("destroy session: %w", err)
		}
		return tx.SetCurrentSession(ctx, userID, nil)
	})
}

// ForceLogout ends another user's session.
func (g *Guard) ForceLogout(ctx context.Context, userID uuid.UUID) error {
	if err := g.OnLogout(ctx, userID); err != nil {
		return err
	}
	g.logger.Info("session force-terminated", zap.String("user_id", userID.String()))
	return nil
}

// Validate reports whether sessionID is the user's live session and its record still exists.
// It returns the user on success and ErrSessionInvalid otherwise.
func (g *Guard) Validate(ctx context.Context, userID uuid.UUID, sessionID string) (*models.User, error) {
	if sessionID == "" {
		return nil, ErrSessionInvalid
	}
	var u *models.User
	err := g.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, userID)
		return err
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive || u.CurrentSessionID == nil || *u.CurrentSessionID != sessionID {
		return nil, ErrSessionInvalid
	}
	if _, err := g.backend.Get(ctx, sessionID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}
	return u, nil
}

// CleanupExpired clears the current session of every user whose session record has expired.
// It returns how many users were cleared.
func (g *Guard) CleanupExpired(ctx context.Context) (int, error) {
	var users []models.User
	err := g.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		users, err = tx.ListUsersWithSession(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	cleared := 0
	for _, u := range users {
		sid := *u.CurrentSessionID
		if _, err := g.backend.Get(ctx, sid); err == nil {
			continue
		} else if !errors.Is(err, models.ErrNotFound) {
			return cleared, err
		}
		var done bool
		err := store.Run(ctx, g.store, func(tx store.Tx) error {
			done = false
			cur, err := tx.LockUser(ctx, u.ID)
			if err != nil {
				return err
			}
			// A login may have replaced the session since the scan.
			if cur.CurrentSessionID == nil || *cur.CurrentSessionID != sid {
				return nil
			}
			done = true
			return tx.SetCurrentSession(ctx, u.ID, nil)
		})
		if err != nil {
			return cleared, err
		}
		if done {
			cleared++
		}
	}
	g.logger.Info("expired sessions cleaned", zap.Int("count", cleared))
	return cleared, nil
}
