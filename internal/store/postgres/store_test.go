package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/store"
	"github.com/sashimi3433/Attendance-Check/internal/store/storetest"
	"github.com/sashimi3433/Attendance-Check/pkg/database"
)

// testPool connects to TEST_DATABASE_URL and applies migrations. Tests sharing it truncate the
// tables first, so they must not run in parallel.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn, database.PoolOptions{}, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := database.Migrate(ctx, pool, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func reset(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(context.Background(),
		`TRUNCATE attendance_records, kiosks, lessons, attendance_tokens, users CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func TestConformance(t *testing.T) {
	pool := testPool(t)
	storetest.Run(t, func(t *testing.T) store.Store {
		reset(t, pool)
		return New(pool)
	})
}

func TestConcurrentMarkTokenUsed(t *testing.T) {
	pool := testPool(t)
	reset(t, pool)
	s := New(pool)
	ctx := context.Background()

	u := &models.User{Username: "racer", Password: "x", Role: models.RoleStudent}
	now := time.Now()
	tok := &models.AttendanceToken{Value: uuid.NewString(), IssuedAt: now, ExpiresAt: now.Add(time.Minute)}
	if err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		tok.UserID = u.ID
		return tx.CreateToken(ctx, tok)
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const n = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Run(ctx, s, func(tx store.Tx) error {
				got, err := tx.GetTokenForUpdate(ctx, tok.Value)
				if err != nil {
					return err
				}
				if got.Used {
					return models.ErrAlreadyUsed
				}
				return tx.MarkTokenUsed(ctx, got.ID, time.Now())
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, models.ErrAlreadyUsed):
			default:
				t.Errorf("consume: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("%d consumers succeeded, want 1", wins)
	}
}
