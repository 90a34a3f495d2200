package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestValidateToken(t *testing.T) {
	tests := []struct {
		token string
		ok    bool
	}{
		{"3f2b9c1d4e5f6a7b8c9d0e1f2a3b4c5d", true},
		{"short", false},
		{"", false},
		{"abc/../../etc", false},
		{"with space token", false},
	}
	for _, tt := range tests {
		if err := ValidateToken(tt.token); (err == nil) != tt.ok {
			t.Errorf("ValidateToken(%q) = %v; ok=%v", tt.token, err, tt.ok)
		}
	}
}

func TestValidateOwnerID(t *testing.T) {
	if err := ValidateOwnerID(""); err != nil {
		t.Errorf("empty owner: %v", err)
	}
	if err := ValidateOwnerID("user@example.com"); err != nil {
		t.Errorf("email owner: %v", err)
	}
	if err := ValidateOwnerID("<script>"); err == nil {
		t.Error("expected error for markup")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  cláusula\x00\x07 1\n"); got != "cláusula 1" {
		t.Errorf("SanitizeString = %q", got)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Fatal("third request within the window should be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("other clients have their own bucket")
	}
	now = now.Add(30 * time.Second)
	if !rl.Allow("a") {
		t.Fatal("half a window refills one request")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimit(1, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/analyses", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := do("10.0.0.1:5000"); code != http.StatusOK {
		t.Fatalf("first = %d", code)
	}
	if code := do("10.0.0.1:5001"); code != http.StatusTooManyRequests {
		t.Fatalf("same IP, new port = %d; want 429", code)
	}
	if code := do("10.0.0.2:5000"); code != http.StatusOK {
		t.Fatalf("other IP = %d", code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth([]string{"k1"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"health is public", "/health", nil, http.StatusNoContent},
		{"missing key", "/analyses/x", nil, http.StatusUnauthorized},
		{"bearer", "/analyses/x", map[string]string{"Authorization": "Bearer k1"}, http.StatusNoContent},
		{"x-api-key", "/analyses/x", map[string]string{"X-API-Key": "k1"}, http.StatusNoContent},
		{"wrong key", "/analyses/x", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d; want %d", rec.Code, tt.want)
			}
		})
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connected", nil, true},
		{"store down", errors.New("dial tcp: refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HealthHandler(nil, map[string]HealthChecker{
				"store": pingFunc(func(context.Context) error { return tt.err }),
			})
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var body HealthStatus
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Message == "" || body.DependenciesConnected != tt.want {
				t.Errorf("body = %+v", body)
			}
		})
	}
}
