package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/lessons"
	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/store"
	"github.com/sashimi3433/Attendance-Check/internal/store/memory"
	"github.com/sashimi3433/Attendance-Check/internal/tokens"
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

type recorder struct {
	mu     sync.Mutex
	events []CheckInEvent
}

func (r *recorder) Notify(_ context.Context, _ uuid.UUID, event string, data any) {
	if event != EventCheckIn {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, data.(CheckInEvent))
	r.mu.Unlock()
}

type fixture struct {
	st      *memory.Store
	clk     *clock
	tokens  *tokens.Service
	lessons *lessons.Service
	svc     *Service
	feed    *recorder

	teacher, student uuid.UUID
	kioskUser        uuid.UUID
	lesson           uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	clk := &clock{t: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
	feed := &recorder{}
	f := &fixture{st: st, clk: clk, feed: feed}
	f.tokens = tokens.NewService(st, nil, tokens.WithClock(clk.Now))
	f.lessons = lessons.NewService(st, nil, lessons.WithClock(clk.Now))
	f.svc = NewService(st, f.tokens, nil, WithClock(clk.Now), WithNotifier(feed))

	f.teacher = f.user(t, "teacher", models.RoleTeacher)
	f.student = f.user(t, "student", models.RoleStudent)
	f.kioskUser = f.user(t, "kiosk-r101", models.RoleKiosk)
	f.seed(t, func(tx store.Tx) error {
		return tx.CreateKiosk(ctx, &models.Kiosk{UserID: f.kioskUser, Name: "R101 front", Location: "R101"})
	})

	list, err := f.lessons.Create(ctx, f.teacher, lessons.CreateParams{Subject: "Networks", Count: 2})
	if err != nil {
		t.Fatalf("Create lessons: %v", err)
	}
	f.lesson = list[0].ID
	if _, err := f.lessons.Open(ctx, f.teacher, f.lesson, "R101"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return f
}

func (f *fixture) seed(t *testing.T, fn func(tx store.Tx) error) {
	t.Helper()
	if err := f.st.WithTx(context.Background(), fn); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (f *fixture) user(t *testing.T, name string, role models.Role) uuid.UUID {
	t.Helper()
	u := &models.User{Username: name, Password: "x", FullName: name + " full", Role: role}
	f.seed(t, func(tx store.Tx) error { return tx.CreateUser(context.Background(), u) })
	return u.ID
}

func (f *fixture) token(t *testing.T, user uuid.UUID, ip string) string {
	t.Helper()
	tok, err := f.tokens.Issue(context.Background(), user, ip)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok.Value
}

func (f *fixture) tokenUsed(t *testing.T, value string) bool {
	t.Helper()
	var used bool
	f.seed(t, func(tx store.Tx) error {
		tok, err := tx.GetTokenForUpdate(context.Background(), value)
		if err != nil {
			return err
		}
		used = tok.Used
		return nil
	})
	return used
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	value := f.token(t, f.student, "10.0.0.5")

	rec, err := f.svc.CheckIn(ctx, CheckInParams{KioskUserID: f.kioskUser, Token: value, PresentingIP: "10.0.0.5"})
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if rec.UserID != f.student || rec.LessonID == nil || *rec.LessonID != f.lesson {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Status != models.StatusPresent || rec.Location != "R101" || rec.EndTime != nil {
		t.Fatalf("status %q location %q end %v", rec.Status, rec.Location, rec.EndTime)
	}
	if !f.tokenUsed(t, value) {
		t.Fatal("token not consumed")
	}
	if len(f.feed.events) != 1 || f.feed.events[0].Username != "student" {
		t.Fatalf("feed events = %+v", f.feed.events)
	}

	if _, err := f.svc.CheckIn(ctx, CheckInParams{KioskUserID: f.kioskUser, Token: value}); !errors.Is(err, models.ErrAlreadyUsed) {
		t.Fatalf("replay err = %v, want ErrAlreadyUsed", err)
	}
}

func TestCheckInLateWithLocationOverride(t *testing.T) {
	f := newFixture(t)
	rec, err := f.svc.CheckIn(context.Background(), CheckInParams{
		KioskUserID: f.kioskUser,
		Token:       f.token(t, f.student, ""),
		Status:      "late",
		Location:    " Lab 2 ",
		Notes:       "bus",
	})
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if rec.Status != models.StatusLate || rec.Location != "Lab 2" || rec.Notes != "bus" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestCheckInRejections(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture) CheckInParams
		want  error
		// whether the presented token must still be unused afterwards
		keepToken bool
	}{
		{
			name: "invalid status",
			setup: func(t *testing.T, f *fixture) CheckInParams {
				return CheckInParams{KioskUserID: f.kioskUser, Token: f.token(t, f.student, ""), Status: "absent"}
			},
			want:      models.ErrInvalidStatus,
			keepToken: true,
		},
		{
			name: "unknown kiosk",
			setup: func(t *testing.T, f *fixture) CheckInParams {
				return CheckInParams{KioskUserID: f.student, Token: f.token(t, f.student, "")}
			},
			want:      models.ErrKioskNotFound,
			keepToken: true,
		},
		{
			name: "no active lesson",
			setup: func(t *testing.T, f *fixture) CheckInParams {
				if _, err := f.lessons.End(ctx, f.teacher, f.lesson); err != nil {
					t.Fatalf("End: %v", err)
				}
				return CheckInParams{KioskUserID: f.kioskUser, Token: f.token(t, f.student, "")}
			},
			want:      models.ErrNoActiveLesson,
			keepToken: true,
		},
		{
			name: "unknown token",
			setup: func(t *testing.T, f *fixture) CheckInParams {
				return CheckInParams{KioskUserID: f.kioskUser, Token: "nope"}
			},
			want: models.ErrNotFound,
		},
		{
			name: "expired token",
			setup: func(t *testing.T, f *fixture) CheckInParams {
				v := f.token(t, f.student, "")
				f.clk.Advance(tokens.DefaultTTL + time.Second)
				return CheckInParams{KioskUserID: f.kioskUser, Token: v}
			},
			want:      models.ErrExpired,
			keepToken: true,
		},
		{
			name: "ip mismatch",
			setup: func(t *testing.T, f *fixture) CheckInParams {
				return CheckInParams{KioskUserID: f.kioskUser, Token: f.token(t, f.student, "10.0.0.5"), PresentingIP: "10.0.0.9"}
			},
			want:      models.ErrIPMismatch,
			keepToken: true,
		},
		{
			name: "second check-in for the lesson rolls back the token",
			setup: func(t *testing.T, f *fixture) CheckInParams {
				if _, err := f.svc.CheckIn(ctx, CheckInParams{KioskUserID: f.kioskUser, Token: f.token(t, f.student, "")}); err != nil {
					t.Fatalf("first CheckIn: %v", err)
				}
				return CheckInParams{KioskUserID: f.kioskUser, Token: f.token(t, f.student, "")}
			},
			want:      models.ErrDuplicateCheckIn,
			keepToken: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := tt.setup(t, f)
			if _, err := f.svc.CheckIn(ctx, p); !errors.Is(err, tt.want) {
				t.Fatalf("CheckIn err = %v, want %v", err, tt.want)
			}
			if tt.keepToken && f.tokenUsed(t, p.Token) {
				t.Fatal("rejected check-in consumed the token")
			}
		})
	}
}

func TestCheckInAfterLessonSwitch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.CheckIn(ctx, CheckInParams{KioskUserID: f.kioskUser, Token: f.token(t, f.student, "")}); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	list, err := f.lessons.List(ctx, f.teacher)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var next uuid.UUID
	for _, l := range list {
		if l.ID != f.lesson {
			next = l.ID
		}
	}
	if _, err := f.lessons.Open(ctx, f.teacher, next, "R101"); err != nil {
		t.Fatalf("Open next: %v", err)
	}
	rec, err := f.svc.CheckIn(ctx, CheckInParams{KioskUserID: f.kioskUser, Token: f.token(t, f.student, "")})
	if err != nil {
		t.Fatalf("CheckIn next lesson: %v", err)
	}
	if *rec.LessonID != next {
		t.Fatalf("recorded against %v, want %v", *rec.LessonID, next)
	}
}

func TestConcurrentCheckInSameStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 8
	values := make([]string, n)
	for i := range values {
		values[i] = f.token(t, f.student, "")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		dups     int
	)
	for _, v := range values {
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			_, err := f.svc.CheckIn(ctx, CheckInParams{KioskUserID: f.kioskUser, Token: v})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, models.ErrDuplicateCheckIn):
				dups++
			default:
				t.Errorf("CheckIn: %v", err)
			}
		}(v)
	}
	wg.Wait()
	if accepted != 1 || dups != n-1 {
		t.Fatalf("accepted %d duplicates %d", accepted, dups)
	}
	roster, err := f.lessons.Records(ctx, f.teacher, f.lesson)
	if err != nil || len(roster) != 1 {
		t.Fatalf("roster = %d records, err %v", len(roster), err)
	}
}

func TestHistoryAndRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	list, err := f.lessons.List(ctx, f.teacher)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []uuid.UUID
	for _, l := range list {
		if _, err := f.lessons.Open(ctx, f.teacher, l.ID, "R101"); err != nil {
			t.Fatalf("Open: %v", err)
		}
		rec, err := f.svc.CheckIn(ctx, CheckInParams{KioskUserID: f.kioskUser, Token: f.token(t, f.student, "")})
		if err != nil {
			t.Fatalf("CheckIn: %v", err)
		}
		ids = append(ids, rec.ID)
		f.clk.Advance(time.Hour)
	}

	recs, total, err := f.svc.History(ctx, f.student, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if total != 2 || len(recs) != 2 || recs[0].ID != ids[1] {
		t.Fatalf("history total %d len %d first %v", total, len(recs), recs)
	}
	recs, total, err = f.svc.History(ctx, f.student, 1)
	if err != nil || total != 2 || len(recs) != 1 {
		t.Fatalf("limited history total %d len %d err %v", total, len(recs), err)
	}
	recs, total, err = f.svc.History(ctx, f.teacher, 0)
	if err != nil || total != 0 || recs == nil || len(recs) != 0 {
		t.Fatalf("empty history = %v %d %v", recs, total, err)
	}

	got, err := f.svc.Record(ctx, f.student, ids[0])
	if err != nil || got.ID != ids[0] {
		t.Fatalf("Record = %+v, %v", got, err)
	}
	if _, err := f.svc.Record(ctx, f.teacher, ids[0]); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("foreign Record err = %v", err)
	}
}
