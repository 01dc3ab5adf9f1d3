package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxline/voxline/pkg/bridge/config"
)

func testConfig() config.Config {
	return config.Config{
		Addr:             ":0",
		PublicHost:       "bridge.example.com",
		AIRealtimeURL:    "wss://ai.example.com/realtime",
		AIAPIKey:         "sk-test",
		AIModel:          "test-model",
		ConnectTimeout:   time.Second,
		HandshakeTimeout: time.Second,
		ToolTimeout:      time.Second,
		WriteTimeout:     time.Second,
		PingInterval:     time.Second,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(testConfig(), slog.Default(), Options{
		Registry: prometheus.NewRegistry(),
	})
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/voice", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tt.status {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, rr.Code, tt.status)
		}
	}
}

func TestHandlerAssignsRequestID(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("response missing X-Request-ID")
	}
}

func TestVoiceRouteReturnsTwiML(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodPost, "/voice", strings.NewReader("From=%2B15551234567"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "wss://bridge.example.com/media?") {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestShutdownDrains(t *testing.T) {
	s := newTestServer(t)
	if s.Draining() {
		t.Fatal("draining before shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	s.Shutdown(ctx)

	if !s.Draining() {
		t.Fatal("not draining after shutdown")
	}

	// new calls are refused while draining
	req := httptest.NewRequest(http.MethodPost, "/voice", strings.NewReader("From=%2B1555"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 while draining", rr.Code)
	}
}
