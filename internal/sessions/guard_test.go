package sessions

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/store"
	"github.com/sashimi3433/Attendance-Check/internal/store/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func setup(t *testing.T) (*Guard, *MemoryBackend, *memory.Store, *models.User, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
	st := memory.New()
	backend := NewMemoryBackend(clk.Now)
	u := &models.User{Username: "alice", Password: "x", Role: models.RoleStudent}
	if err := st.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateUser(context.Background(), u)
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	g := NewGuard(st, backend, nil, WithClock(clk.Now), WithTTL(time.Hour))
	return g, backend, st, u, clk
}

func currentSession(t *testing.T, st *memory.Store, id uuid.UUID) *string {
	t.Helper()
	var sid *string
	_ = st.WithTx(context.Background(), func(tx store.Tx) error {
		u, err := tx.GetUser(context.Background(), id)
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		sid = u.CurrentSessionID
		return nil
	})
	return sid
}

func TestLoginSupersedesPreviousSession(t *testing.T) {
	ctx := context.Background()
	g, backend, st, u, _ := setup(t)

	first, err := g.Login(ctx, u, "1.2.3.4", "phone")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, err := g.Validate(ctx, u.ID, first.ID); err != nil {
		t.Fatalf("first session invalid: %v", err)
	}

	second, err := g.Login(ctx, u, "1.2.3.4", "laptop")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if _, err := g.Validate(ctx, u.ID, first.ID); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("old session: err = %v, want ErrSessionInvalid", err)
	}
	if _, err := backend.Get(ctx, first.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("old session record still exists: %v", err)
	}
	if _, err := g.Validate(ctx, u.ID, second.ID); err != nil {
		t.Fatalf("new session invalid: %v", err)
	}
	if sid := currentSession(t, st, u.ID); sid == nil || *sid != second.ID {
		t.Fatalf("current session = %v, want %s", sid, second.ID)
	}
}

func TestOnLoginSameSessionIsNoop(t *testing.T) {
	ctx := context.Background()
	g, backend, _, u, _ := setup(t)
	s, err := g.Login(ctx, u, "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := g.OnLogin(ctx, u.ID, s.ID); err != nil {
		t.Fatalf("OnLogin: %v", err)
	}
	if _, err := backend.Get(ctx, s.ID); err != nil {
		t.Fatalf("session record destroyed: %v", err)
	}
}

func TestOnLoginMissingPreviousRecord(t *testing.T) {
	ctx := context.Background()
	g, backend, _, u, _ := setup(t)
	s, _ := g.Login(ctx, u, "", "")
	_ = backend.Delete(ctx, s.ID)
	if _, err := g.Login(ctx, u, "", ""); err != nil {
		t.Fatalf("login with vanished previous record: %v", err)
	}
}

// commitFailStore runs every unit of work and then reports a commit failure, rolling it back.
type commitFailStore struct {
	store.Store
}

var errCommit = errors.New("commit failed")

func (s commitFailStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errCommit
	})
}

func TestLoginCommitFailureKeepsPreviousSession(t *testing.T) {
	ctx := context.Background()
	g, backend, st, u, clk := setup(t)
	first, err := g.Login(ctx, u, "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	failing := NewGuard(commitFailStore{st}, backend, nil, WithClock(clk.Now), WithTTL(time.Hour))
	if _, err := failing.Login(ctx, u, "", ""); !errors.Is(err, errCommit) {
		t.Fatalf("Login err = %v, want commit failure", err)
	}
	if _, err := backend.Get(ctx, first.ID); err != nil {
		t.Fatalf("previous session record destroyed by a failed login: %v", err)
	}
	if _, err := g.Validate(ctx, u.ID, first.ID); err != nil {
		t.Fatalf("previous session no longer valid: %v", err)
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	g, _, st, u, _ := setup(t)
	s, _ := g.Login(ctx, u, "", "")
	if err := g.OnLogout(ctx, u.ID); err != nil {
		t.Fatalf("OnLogout: %v", err)
	}
	if sid := currentSession(t, st, u.ID); sid != nil {
		t.Fatalf("current session = %s after logout", *sid)
	}
	if _, err := g.Validate(ctx, u.ID, s.ID); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("err = %v, want ErrSessionInvalid", err)
	}
	if err := g.OnLogout(ctx, u.ID); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if err := g.ForceLogout(ctx, uuid.New()); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unknown user: err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentLoginsLeaveOneLiveSession(t *testing.T) {
	ctx := context.Background()
	g, _, st, u, _ := setup(t)

	const n = 10
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := g.Login(ctx, u, "", "")
			if err != nil {
				t.Errorf("Login: %v", err)
				return
			}
			ids <- s.ID
		}()
	}
	wg.Wait()
	close(ids)

	live := 0
	for id := range ids {
		if _, err := g.Validate(ctx, u.ID, id); err == nil {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("live sessions = %d, want 1", live)
	}
	if currentSession(t, st, u.ID) == nil {
		t.Fatal("no current session")
	}
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	g, _, st, u, clk := setup(t)
	s, _ := g.Login(ctx, u, "", "")

	if n, err := g.CleanupExpired(ctx); err != nil || n != 0 {
		t.Fatalf("CleanupExpired before expiry = %d, %v", n, err)
	}
	clk.Advance(2 * time.Hour)
	if _, err := g.Validate(ctx, u.ID, s.ID); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expired session: err = %v, want ErrSessionInvalid", err)
	}
	n, err := g.CleanupExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CleanupExpired = %d, %v; want 1", n, err)
	}
	if sid := currentSession(t, st, u.ID); sid != nil {
		t.Fatalf("current session = %s after cleanup", *sid)
	}
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	b := NewRedisBackend(client)

	s := &models.Session{ID: uuid.NewString(), UserID: uuid.New(), Role: models.RoleStudent, ExpiresAt: time.Now().Add(time.Minute)}
	if err := b.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := b.Get(ctx, s.ID)
	if err != nil || got.UserID != s.UserID {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if ttl := client.TTL(ctx, keyPrefix+s.ID).Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}
	if err := b.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := b.Get(ctx, s.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("after delete: err = %v, want ErrNotFound", err)
	}
	if err := b.Delete(ctx, s.ID); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}
