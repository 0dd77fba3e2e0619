// Package storetest is a conformance suite run against every store.Store implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/models"
	"github.com/sashimi3433/Attendance-Check/internal/store"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Tokens", func(t *testing.T) { testTokens(t, newStore(t)) })
	t.Run("OneActiveLessonPerTeacher", func(t *testing.T) { testOneActiveLesson(t, newStore(t)) })
	t.Run("KioskBindings", func(t *testing.T) { testKioskBindings(t, newStore(t)) })
	t.Run("Records", func(t *testing.T) { testRecords(t, newStore(t)) })
	t.Run("DeleteLesson", func(t *testing.T) { testDeleteLesson(t, newStore(t)) })
}

var base = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func must(t *testing.T, s store.Store, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	ctx := context.Background()
	if err := s.WithTx(ctx, func(tx store.Tx) error { return fn(ctx, tx) }); err != nil {
		t.Fatalf("unit of work: %v", err)
	}
}

func user(t *testing.T, s store.Store, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Username: "u-" + uuid.NewString()[:8], Password: "hash", Role: role}
	must(t, s, func(ctx context.Context, tx store.Tx) error { return tx.CreateUser(ctx, u) })
	return u
}

func token(t *testing.T, s store.Store, userID uuid.UUID, issued time.Time) *models.AttendanceToken {
	t.Helper()
	tok := &models.AttendanceToken{Value: uuid.NewString(), UserID: userID, IssuedAt: issued, ExpiresAt: issued.Add(5 * time.Second)}
	must(t, s, func(ctx context.Context, tx store.Tx) error { return tx.CreateToken(ctx, tok) })
	return tok
}

func lesson(t *testing.T, s store.Store, teacherID uuid.UUID, location string) *models.Lesson {
	t.Helper()
	l := &models.Lesson{TeacherID: teacherID, Subject: "Math", Sequence: 1, Location: location}
	must(t, s, func(ctx context.Context, tx store.Tx) error { return tx.CreateLesson(ctx, l) })
	return l
}

func kiosk(t *testing.T, s store.Store, location string) *models.Kiosk {
	t.Helper()
	k := &models.Kiosk{UserID: user(t, s, models.RoleKiosk).ID, Name: "k-" + location, Location: location}
	must(t, s, func(ctx context.Context, tx store.Tx) error { return tx.CreateKiosk(ctx, k) })
	return k
}

func testRollback(t *testing.T, s store.Store) {
	u := user(t, s, models.RoleStudent)
	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		sid := "sid"
		if err := tx.SetCurrentSession(context.Background(), u.ID, &sid); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx err = %v", err)
	}
	must(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetUser(ctx, u.ID)
		if err != nil {
			return err
		}
		if got.CurrentSessionID != nil {
			t.Fatal("write survived rollback")
		}
		return nil
	})
}

func testUsers(t *testing.T, s store.Store) {
	u := user(t, s, models.RoleTeacher)
	if u.ID == uuid.Nil || !u.IsActive {
		t.Fatalf("created user %+v", u)
	}
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateUser(context.Background(), &models.User{Username: u.Username, Password: "x", Role: models.RoleStudent})
	})
	if !errors.Is(err, models.ErrUsernameTaken) {
		t.Fatalf("duplicate username err = %v", err)
	}
	must(t, s, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetUser(ctx, uuid.New()); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("missing user err = %v", err)
		}
		got, err := tx.GetUserByUsername(ctx, u.Username)
		if err != nil || got.ID != u.ID {
			t.Fatalf("GetUserByUsername = %+v, %v", got, err)
		}
		sid := "s1"
		if err := tx.SetCurrentSession(ctx, u.ID, &sid); err != nil {
			return err
		}
		list, err := tx.ListUsersWithSession(ctx)
		if err != nil {
			return err
		}
		if len(list) != 1 || *list[0].CurrentSessionID != "s1" {
			t.Fatalf("ListUsersWithSession = %+v", list)
		}
		return nil
	})
}

func testTokens(t *testing.T, s store.Store) {
	u := user(t, s, models.RoleStudent)
	fresh := token(t, s, u.ID, base)
	old := token(t, s, u.ID, base.Add(-time.Hour))
	used := token(t, s, u.ID, base.Add(-time.Hour))

	must(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.MarkTokenUsed(ctx, used.ID, base); err != nil {
			return err
		}
		if err := tx.MarkTokenUsed(ctx, used.ID, base); !errors.Is(err, models.ErrAlreadyUsed) {
			t.Fatalf("second MarkTokenUsed err = %v", err)
		}
		return nil
	})
	must(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetTokenForUpdate(ctx, used.Value)
		if err != nil || !got.Used {
			t.Fatalf("used token = %+v, %v", got, err)
		}
		if _, err := tx.GetTokenForUpdate(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("missing token err = %v", err)
		}
		stats, err := tx.TokenStats(ctx, base.Add(time.Minute))
		if err != nil {
			return err
		}
		want := models.TokenStats{Total: 3, Used: 1, Unused: 2, ExpiredUnused: 2}
		if stats != want {
			t.Fatalf("TokenStats = %+v, want %+v", stats, want)
		}
		n, err := tx.CountStaleTokens(ctx, base.Add(-10*time.Minute))
		if err != nil || n != 1 {
			t.Fatalf("CountStaleTokens = %d, %v", n, err)
		}
		n, err = tx.DeleteStaleTokens(ctx, base.Add(-10*time.Minute))
		if err != nil || n != 1 {
			t.Fatalf("DeleteStaleTokens = %d, %v", n, err)
		}
		if _, err := tx.GetTokenForUpdate(ctx, old.Value); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("stale token survived: %v", err)
		}
		if _, err := tx.GetTokenForUpdate(ctx, fresh.Value); err != nil {
			t.Fatalf("fresh token deleted: %v", err)
		}
		return nil
	})
}

func testOneActiveLesson(t *testing.T, s store.Store) {
	teacher := user(t, s, models.RoleTeacher)
	a, b := lesson(t, s, teacher.ID, "R1"), lesson(t, s, teacher.ID, "R2")
	must(t, s, func(ctx context.Context, tx store.Tx) error {
		a.IsActive, a.Reception = true, true
		return tx.UpdateLesson(ctx, a)
	})
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		b.IsActive = true
		return tx.UpdateLesson(context.Background(), b)
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second active lesson err = %v, want ErrConflict", err)
	}
	must(t, s, func(ctx context.Context, tx store.Tx) error {
		active, err := tx.ListActiveLessonsByTeacher(ctx, teacher.ID)
		if err != nil {
			return err
		}
		if len(active) != 1 || active[0].ID != a.ID {
			t.Fatalf("active lessons = %+v", active)
		}
		all, err := tx.ListLessonsByTeacher(ctx, teacher.ID)
		if err != nil || len(all) != 2 {
			t.Fatalf("ListLessonsByTeacher = %d, %v", len(all), err)
		}
		return nil
	})
}

func testKioskBindings(t *testing.T, s store.Store) {
	teacher := user(t, s, models.RoleTeacher)
	l := lesson(t, s, teacher.ID, "R1")
	k1, k2, other := kiosk(t, s, "R1"), kiosk(t, s, "R1"), kiosk(t, s, "R2")

	must(t, s, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.BindKiosksByLocation(ctx, "R1", l.ID)
		if err != nil || n != 2 {
			t.Fatalf("BindKiosksByLocation = %d, %v", n, err)
		}
		got, err := tx.GetKioskByUser(ctx, k1.UserID)
		if err != nil || got.CurrentLessonID == nil || *got.CurrentLessonID != l.ID {
			t.Fatalf("kiosk binding = %+v, %v", got, err)
		}
		n, err = tx.ClearKioskBindings(ctx, []uuid.UUID{l.ID, uuid.New()})
		if err != nil || n != 2 {
			t.Fatalf("ClearKioskBindings = %d, %v", n, err)
		}
		if err := tx.SetKioskLesson(ctx, k2.ID, &l.ID); err != nil {
			return err
		}
		list, err := tx.ListKiosks(ctx)
		if err != nil || len(list) != 3 {
			t.Fatalf("ListKiosks = %d, %v", len(list), err)
		}
		for _, k := range list {
			bound := k.CurrentLessonID != nil
			if bound != (k.ID == k2.ID) {
				t.Fatalf("kiosk %s bound=%v", k.Name, bound)
			}
		}
		if _, err := tx.GetKioskByUser(ctx, other.ID); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("kiosk looked up by kiosk id: %v", err)
		}
		return nil
	})
}

func testRecords(t *testing.T, s store.Store) {
	teacher, student := user(t, s, models.RoleTeacher), user(t, s, models.RoleStudent)
	l := lesson(t, s, teacher.ID, "R1")
	tok1, tok2 := token(t, s, student.ID, base), token(t, s, student.ID, base)

	rec := &models.AttendanceRecord{UserID: student.ID, TokenID: tok1.ID, LessonID: &l.ID, AttendedAt: base, Status: models.StatusPresent, Location: "R1"}
	must(t, s, func(ctx context.Context, tx store.Tx) error { return tx.CreateRecord(ctx, rec) })

	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateRecord(context.Background(), &models.AttendanceRecord{
			UserID: student.ID, TokenID: tok2.ID, LessonID: &l.ID, AttendedAt: base, Status: models.StatusPresent,
		})
	})
	if !errors.Is(err, models.ErrDuplicateCheckIn) {
		t.Fatalf("second record for lesson err = %v", err)
	}
	err = s.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateRecord(context.Background(), &models.AttendanceRecord{
			UserID: student.ID, TokenID: tok1.ID, AttendedAt: base, Status: models.StatusPresent,
		})
	})
	if !errors.Is(err, models.ErrTokenAlreadyRecorded) {
		t.Fatalf("second record for token err = %v", err)
	}

	later := &models.AttendanceRecord{UserID: student.ID, TokenID: tok2.ID, AttendedAt: base.Add(time.Hour), Status: models.StatusLate}
	must(t, s, func(ctx context.Context, tx store.Tx) error { return tx.CreateRecord(ctx, later) })

	must(t, s, func(ctx context.Context, tx store.Tx) error {
		if ok, err := tx.RecordExistsForLesson(ctx, student.ID, l.ID); err != nil || !ok {
			t.Fatalf("RecordExistsForLesson = %v, %v", ok, err)
		}
		if ok, err := tx.RecordExistsForToken(ctx, student.ID, tok2.ID); err != nil || !ok {
			t.Fatalf("RecordExistsForToken = %v, %v", ok, err)
		}
		list, total, err := tx.ListRecordsByUser(ctx, student.ID, 1)
		if err != nil || total != 2 || len(list) != 1 || list[0].ID != later.ID {
			t.Fatalf("ListRecordsByUser = %+v total %d, %v", list, total, err)
		}
		n, err := tx.CloseRecords(ctx, l.ID, base.Add(2*time.Hour))
		if err != nil || n != 1 {
			t.Fatalf("CloseRecords = %d, %v", n, err)
		}
		n, err = tx.CloseRecords(ctx, l.ID, base.Add(3*time.Hour))
		if err != nil || n != 0 {
			t.Fatalf("CloseRecords twice = %d, %v", n, err)
		}
		got, err := tx.GetRecord(ctx, rec.ID)
		if err != nil || got.EndTime == nil || !got.EndTime.Equal(base.Add(2*time.Hour)) {
			t.Fatalf("closed record = %+v, %v", got, err)
		}
		roster, err := tx.ListRecordsByLesson(ctx, l.ID)
		if err != nil || len(roster) != 1 {
			t.Fatalf("ListRecordsByLesson = %d, %v", len(roster), err)
		}
		return nil
	})
}

func testDeleteLesson(t *testing.T, s store.Store) {
	teacher, student := user(t, s, models.RoleTeacher), user(t, s, models.RoleStudent)
	l := lesson(t, s, teacher.ID, "R1")
	k := kiosk(t, s, "R1")
	tok := token(t, s, student.ID, base)
	rec := &models.AttendanceRecord{UserID: student.ID, TokenID: tok.ID, LessonID: &l.ID, AttendedAt: base, Status: models.StatusPresent}
	must(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateRecord(ctx, rec); err != nil {
			return err
		}
		return tx.SetKioskLesson(ctx, k.ID, &l.ID)
	})
	must(t, s, func(ctx context.Context, tx store.Tx) error { return tx.DeleteLesson(ctx, l.ID) })
	must(t, s, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetLesson(ctx, l.ID); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("deleted lesson err = %v", err)
		}
		got, err := tx.GetRecord(ctx, rec.ID)
		if err != nil || got.LessonID != nil {
			t.Fatalf("record after delete = %+v, %v", got, err)
		}
		kk, err := tx.GetKioskByUser(ctx, k.UserID)
		if err != nil || kk.CurrentLessonID != nil {
			t.Fatalf("kiosk after delete = %+v, %v", kk, err)
		}
		if err := tx.DeleteLesson(ctx, l.ID); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("second delete err = %v", err)
		}
		return nil
	})
}
