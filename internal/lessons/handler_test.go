package lessons

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

func newRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(f.svc)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		id, _ := uuid.Parse(c.GetHeader("X-Test-User"))
		c.Set(middleware.ContextUserID, id)
		c.Next()
	})
	r.GET("/lessons", h.List)
	r.POST("/lessons", h.Create)
	r.PATCH("/lessons/:id", h.Update)
	r.DELETE("/lessons/:id", h.Delete)
	r.POST("/lessons/:id/open", h.Open)
	r.POST("/lessons/:id/end", h.End)
	r.GET("/lessons/:id/records", h.Records)
	r.POST("/admin/kiosks/resync", h.Resync)
	r.GET("/admin/status", h.Status)
	return r
}

func call(t *testing.T, r http.Handler, method, path string, user uuid.UUID, body any) (int, json.RawMessage) {
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
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env.Data
}

func TestLessonHandlers(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)
	teacher := f.user(t, "tanaka", models.RoleTeacher)
	other := f.user(t, "sato", models.RoleTeacher)
	k := f.kiosk(t, "kiosk-1", "R101")

	code, data := call(t, r, http.MethodPost, "/lessons", teacher, gin.H{"subject": "Networks", "count": 3})
	if code != http.StatusCreated {
		t.Fatalf("create status %d", code)
	}
	var created struct {
		Lessons []models.Lesson `json:"lessons"`
	}
	if err := json.Unmarshal(data, &created); err != nil || len(created.Lessons) != 3 {
		t.Fatalf("created %s err %v", data, err)
	}
	id := created.Lessons[0].ID.String()

	if code, _ := call(t, r, http.MethodPost, "/lessons", teacher, gin.H{"subject": "  "}); code != http.StatusBadRequest {
		t.Fatalf("blank subject status %d", code)
	}

	code, data = call(t, r, http.MethodPost, "/lessons/"+id+"/open", teacher, gin.H{"location": "R101"})
	if code != http.StatusOK {
		t.Fatalf("open status %d", code)
	}
	var opened models.Lesson
	_ = json.Unmarshal(data, &opened)
	if !opened.IsActive || !opened.Reception || opened.Location != "R101" {
		t.Fatalf("opened %+v", opened)
	}

	if code, _ := call(t, r, http.MethodPost, "/lessons/"+id+"/open", other, gin.H{"location": "R101"}); code != http.StatusNotFound {
		t.Fatalf("foreign open status %d", code)
	}
	if code, _ := call(t, r, http.MethodPost, "/lessons/"+id+"/open", teacher, gin.H{}); code != http.StatusBadRequest {
		t.Fatalf("missing location status %d", code)
	}
	if code, _ := call(t, r, http.MethodPatch, "/lessons/"+id, teacher, gin.H{"location": "R202"}); code != http.StatusConflict {
		t.Fatalf("move active lesson status %d", code)
	}

	code, data = call(t, r, http.MethodGet, "/admin/status", uuid.Nil, nil)
	if code != http.StatusOK {
		t.Fatalf("status status %d", code)
	}
	var report models.StatusReport
	_ = json.Unmarshal(data, &report)
	if len(report.ActiveLessons) != 1 || len(report.Kiosks) != 1 ||
		report.Kiosks[0].ID != k.ID || report.Kiosks[0].CurrentLessonID == nil {
		t.Fatalf("report %s", data)
	}

	if code, _ := call(t, r, http.MethodGet, "/lessons/"+id+"/records", teacher, nil); code != http.StatusOK {
		t.Fatalf("records status %d", code)
	}
	if code, _ := call(t, r, http.MethodPost, "/lessons/"+id+"/end", teacher, nil); code != http.StatusOK {
		t.Fatalf("end status %d", code)
	}
	if code, _ := call(t, r, http.MethodPost, "/lessons/"+id+"/end", teacher, nil); code != http.StatusNotFound {
		t.Fatalf("end twice status %d", code)
	}
	if code, _ := call(t, r, http.MethodPost, "/admin/kiosks/resync", uuid.Nil, nil); code != http.StatusOK {
		t.Fatalf("resync status %d", code)
	}
	if code, _ := call(t, r, http.MethodDelete, "/lessons/"+id, teacher, nil); code != http.StatusNoContent {
		t.Fatalf("delete status %d", code)
	}
	if code, _ := call(t, r, http.MethodDelete, "/lessons/nope", teacher, nil); code != http.StatusBadRequest {
		t.Fatalf("bad id status %d", code)
	}

	code, data = call(t, r, http.MethodGet, "/lessons", teacher, nil)
	var listed struct {
		Lessons []models.Lesson `json:"lessons"`
	}
	if err := json.Unmarshal(data, &listed); code != http.StatusOK || err != nil || len(listed.Lessons) != 2 {
		t.Fatalf("list status %d body %s", code, data)
	}
}
