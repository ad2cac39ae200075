package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIPRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := &ipRateLimiter{
		hits: make(map[string][]time.Time),
		cfg:  &rateLimiterConfig{enabled: true, limit: 2, window: time.Minute},
		now:  func() time.Time { return now },
	}

	if !rl.allow("1.2.3.4") || !rl.allow("1.2.3.4") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("1.2.3.4") {
		t.Fatal("third request inside window should be limited")
	}
	if !rl.allow("5.6.7.8") {
		t.Fatal("other clients have their own budget")
	}

	now = now.Add(61 * time.Second)
	if !rl.allow("1.2.3.4") {
		t.Fatal("request after window should pass")
	}

	now = now.Add(2 * time.Minute)
	rl.cleanup()
	rl.mu.Lock()
	n := len(rl.hits)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("cleanup left %d clients", n)
	}
}

func TestIPRateLimiterDisabled(t *testing.T) {
	rl := &ipRateLimiter{
		hits: make(map[string][]time.Time),
		cfg:  &rateLimiterConfig{enabled: false, limit: 1, window: time.Minute},
		now:  time.Now,
	}
	for i := 0; i < 5; i++ {
		if !rl.allow("1.2.3.4") {
			t.Fatalf("request %d limited while disabled", i)
		}
	}
}

func TestLoadRateLimiterConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "0")
	t.Setenv("RATE_LIMIT_REQUESTS_PER_IP", "7")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "5")
	cfg := loadRateLimiterConfig()
	if cfg.enabled || cfg.limit != 7 || cfg.window != 5*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}

	t.Setenv("RATE_LIMIT_ENABLED", "")
	t.Setenv("RATE_LIMIT_REQUESTS_PER_IP", "nope")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "-1")
	cfg = loadRateLimiterConfig()
	if !cfg.enabled || cfg.limit != 30 || cfg.window != time.Minute {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"remote addr", "", "192.168.1.9:4000", "192.168.1.9"},
		{"forwarded first hop", "203.0.113.5, 10.0.0.1", "10.0.0.1:80", "203.0.113.5"},
		{"no port", "", "unix-socket", "unix-socket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"https://dash.example.com", "*.stream.tv"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://dash.example.com", true},
		{"https://other.example.com", false},
		{"https://overlay.stream.tv", true},
		{"https://stream.tv.evil.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isOriginAllowed(tt.origin, allowed); got != tt.want {
			t.Errorf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("preflight", func(t *testing.T) {
		h := withCORSConfig(next, &corsConfig{permissive: true})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/status", nil))
		if rr.Code != http.StatusNoContent {
			t.Errorf("code = %d", rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("allow origin = %q", got)
		}
	})

	t.Run("restricted", func(t *testing.T) {
		h := withCORSConfig(next, &corsConfig{allowedOrigins: []string{"https://dash.example.com"}})
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Origin", "https://dash.example.com")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
			t.Errorf("allow origin = %q", got)
		}

		req = httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Origin", "https://evil.com")
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("unexpected allow origin %q", got)
		}
	})
}

func TestLoadCORSConfig(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("CORS_PERMISSIVE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com , ,https://b.example.com")
	cfg := loadCORSConfig()
	if cfg.permissive {
		t.Error("production should not be permissive")
	}
	if len(cfg.allowedOrigins) != 2 || cfg.allowedOrigins[1] != "https://b.example.com" {
		t.Errorf("origins = %v", cfg.allowedOrigins)
	}
}
