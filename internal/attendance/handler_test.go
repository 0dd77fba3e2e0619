package attendance

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/middleware"
	"github.com/sashimi3433/Attendance-Check/internal/models"
)

type staticIP string

func (s staticIP) ClientIP(*http.Request) string { return string(s) }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func newRouter(f *fixture, ip string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(f.svc, staticIP(ip))
	r := gin.New()
	r.Use(func(c *gin.Context) {
		id, _ := uuid.Parse(c.GetHeader("X-Test-User"))
		c.Set(middleware.ContextUserID, id)
		c.Next()
	})
	r.POST("/checkin", h.CheckIn)
	r.GET("/attendance/history", h.History)
	r.GET("/attendance/records/:id", h.Record)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, user uuid.UUID, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user.String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %q: %v", w.Body.String(), err)
		}
	}
	return w, env
}

func TestCheckInHandler(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f, "10.0.0.5")
	value := f.token(t, f.student, "10.0.0.5")

	w, env := do(t, r, http.MethodPost, "/checkin", f.kioskUser, gin.H{"token": value, "status": "late"})
	if w.Code != http.StatusCreated || !env.Success {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var rec models.AttendanceRecord
	if err := json.Unmarshal(env.Data, &rec); err != nil || rec.UserID != f.student || rec.Status != models.StatusLate {
		t.Fatalf("record %+v err %v", rec, err)
	}

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{name: "missing token", body: gin.H{}, status: http.StatusBadRequest},
		{name: "replayed token", body: gin.H{"token": value}, status: http.StatusConflict},
		{name: "unknown token", body: gin.H{"token": "missing"}, status: http.StatusNotFound},
		{name: "bad status", body: gin.H{"token": value, "status": "absent"}, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, r, http.MethodPost, "/checkin", f.kioskUser, tt.body)
			if w.Code != tt.status || env.Success || env.Error == "" {
				t.Fatalf("status %d body %s, want %d", w.Code, w.Body.String(), tt.status)
			}
		})
	}
}

func TestCheckInHandlerIPMismatch(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f, "192.0.2.1")
	w, _ := do(t, r, http.MethodPost, "/checkin", f.kioskUser, gin.H{"token": f.token(t, f.student, "10.0.0.5")})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
}

func TestHistoryHandler(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f, "")
	w, env := do(t, r, http.MethodPost, "/checkin", f.kioskUser, gin.H{"token": f.token(t, f.student, "")})
	if w.Code != http.StatusCreated {
		t.Fatalf("checkin status %d", w.Code)
	}
	var rec models.AttendanceRecord
	_ = json.Unmarshal(env.Data, &rec)

	w, env = do(t, r, http.MethodGet, "/attendance/history?limit=5", f.student, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status %d", w.Code)
	}
	var hist struct {
		Records    []models.AttendanceRecord `json:"records"`
		TotalCount int64                     `json:"total_count"`
	}
	if err := json.Unmarshal(env.Data, &hist); err != nil || hist.TotalCount != 1 || len(hist.Records) != 1 {
		t.Fatalf("history %+v err %v", hist, err)
	}

	if w, _ := do(t, r, http.MethodGet, "/attendance/history?limit=zero", f.student, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodGet, "/attendance/records/"+rec.ID.String(), f.student, nil); w.Code != http.StatusOK {
		t.Fatalf("own record status %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodGet, "/attendance/records/"+rec.ID.String(), f.teacher, nil); w.Code != http.StatusNotFound {
		t.Fatalf("foreign record status %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodGet, "/attendance/records/nope", f.student, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status %d", w.Code)
	}
}
