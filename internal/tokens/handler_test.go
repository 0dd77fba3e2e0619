package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sashimi3433/Attendance-Check/internal/ipresolver"
	"github.com/sashimi3433/Attendance-Check/internal/middleware"
	"github.com/sashimi3433/Attendance-Check/internal/models"
)

type staticIP string

func (s staticIP) ClientIP(*http.Request) string { return string(s) }

func serve(t *testing.T, r http.Handler, method, path string, user uuid.UUID, body string) (int, json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
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

func TestTokenHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, clk := newTestService(t)
	h := NewHandler(svc, staticIP("203.0.113.9"))
	r := gin.New()
	r.Use(func(c *gin.Context) {
		id, _ := uuid.Parse(c.GetHeader("X-Test-User"))
		c.Set(middleware.ContextUserID, id)
		c.Next()
	})
	r.POST("/tokens", h.Issue)
	r.GET("/admin/tokens/stats", h.Stats)
	r.POST("/admin/tokens/gc", h.GC)

	student := uuid.New()
	code, data := serve(t, r, http.MethodPost, "/tokens", student, "")
	if code != http.StatusCreated {
		t.Fatalf("issue status %d", code)
	}
	var issued IssueResponse
	if err := json.Unmarshal(data, &issued); err != nil {
		t.Fatal(err)
	}
	if issued.UserID != student || issued.IsUsed || issued.Token == "" || !issued.ExpiresAt.Equal(clk.Now().Add(DefaultTTL)) {
		t.Fatalf("issued %+v", issued)
	}
	if _, err := svc.ValidateAndConsume(context.Background(), issued.Token, "198.51.100.1"); err != models.ErrIPMismatch {
		t.Fatalf("token not pinned to issuing ip: %v", err)
	}

	clk.Advance(time.Hour)
	code, data = serve(t, r, http.MethodGet, "/admin/tokens/stats", uuid.Nil, "")
	var stats models.TokenStats
	_ = json.Unmarshal(data, &stats)
	if code != http.StatusOK || stats.Total != 1 || stats.ExpiredUnused != 1 {
		t.Fatalf("stats status %d body %s", code, data)
	}

	tests := []struct {
		name   string
		body   string
		status int
		count  float64
	}{
		{name: "dry run default age", body: `{"dry_run":true}`, status: http.StatusOK, count: 1},
		{name: "age not reached", body: `{"older_than_minutes":120}`, status: http.StatusOK, count: 0},
		{name: "negative age", body: `{"older_than_minutes":-1}`, status: http.StatusBadRequest},
		{name: "malformed", body: `{`, status: http.StatusBadRequest},
		{name: "collect", body: "", status: http.StatusOK, count: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, data := serve(t, r, http.MethodPost, "/admin/tokens/gc", uuid.Nil, tt.body)
			if code != tt.status {
				t.Fatalf("status %d, want %d", code, tt.status)
			}
			if code != http.StatusOK {
				return
			}
			var got struct {
				Count float64 `json:"count"`
			}
			_ = json.Unmarshal(data, &got)
			if got.Count != tt.count {
				t.Fatalf("count = %v, want %v", got.Count, tt.count)
			}
		})
	}
}

func TestIssuePinsSocketAddressOverForgedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t)
	ips := ipresolver.New(ipresolver.Config{FallbackToHeaders: true, TrustedProxies: []string{"10.0.0.1"}}, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, uuid.New())
		c.Next()
	})
	r.POST("/tokens", NewHandler(svc, ips).Issue)

	req := httptest.NewRequest(http.MethodPost, "/tokens", nil)
	req.RemoteAddr = "203.0.113.50:40000"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("issue status %d", w.Code)
	}
	var env struct {
		Data IssueResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateAndConsume(context.Background(), env.Data.Token, "198.51.100.7"); err != models.ErrIPMismatch {
		t.Fatalf("token redeemed at the forged address: err = %v", err)
	}
	if _, err := svc.ValidateAndConsume(context.Background(), env.Data.Token, "203.0.113.50"); err != nil {
		t.Fatalf("redeem at issuing address: %v", err)
	}
}

func TestGCChunkedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, clk := newTestService(t)
	if _, err := svc.Issue(context.Background(), uuid.New(), ""); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Hour)
	r := gin.New()
	r.POST("/admin/tokens/gc", NewHandler(svc, staticIP("")).GC)

	req := httptest.NewRequest(http.MethodPost, "/admin/tokens/gc", strings.NewReader(`{"dry_run":true}`))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	stats, _ := svc.Stats(context.Background())
	if stats.Total != 1 {
		t.Fatalf("dry run in a chunked body deleted tokens: %+v", stats)
	}
}
